// Package admin runs the out-of-band gRPC server of sketchrelay-server.
//
// It exposes the standard grpc.health.v1.Health service, reporting SERVING
// while the hub runs and NOT_SERVING once shutdown starts, plus server
// reflection so grpcurl and grpc_health_probe work without protobuf files.
// Every unary call passes through LoggingInterceptor.
package admin
