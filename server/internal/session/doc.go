// Package session holds the peer registry: the single explicit record of
// which peers are currently connected to the relay.
//
// A Registry is created once per server process and handed to the hub. Only
// the hub's dispatch loop mutates it; the REST API and metrics read it
// concurrently, so every method is safe for concurrent use. Entries keep
// their join order, which the elected sync mode uses to pick the
// earliest-connected peer.
package session
