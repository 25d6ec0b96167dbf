/*
Package server provides the optional HTTP status server.

Routes:

	GET /          service info
	GET /health    liveness plus which probe modes are on
	GET /config    effective configuration as JSON
	GET /stats     per-entry trace durations, counters, queue depths
	GET /metrics   Prometheus exposition
	GET /logs      websocket stream of rendered traces and flat lines

The server is read-only. Requests are rate limited per client IP and, when
a tree.Manager is supplied, traced by the probe itself.
*/
package server
