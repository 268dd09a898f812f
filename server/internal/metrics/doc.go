// Package metrics counts relay activity (connects, inbound and relayed events,
// drops by reason) and exposes it both as a Stats struct for the REST API and
// as Prometheus metric families on /metrics.
package metrics
