/*
Package tracing connects request-handling code to the call tree probe.

# Overview

The probe core only knows enter and exit callbacks. This package supplies
them for the two request surfaces Go services usually have: a gin
middleware and gRPC server interceptors. Each request gets its own Tracker,
carried in the request context, so code further down can join the same
tree with Call.

# Usage

	router.Use(tracing.HTTPMiddleware(manager))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.UnaryServerInterceptor(manager)),
		grpc.StreamInterceptor(tracing.StreamServerInterceptor(manager)),
	)

	// inside a handler
	err := tracing.Call(ctx, "orders.Repo", "Load", func(ctx context.Context) error {
		return repo.Load(ctx, id)
	}, id)

# Naming

HTTP requests are recorded as class "HTTP" with method "GET /orders/:id",
so the entry method to configure is "HTTP.GET /orders/:id". gRPC calls are
recorded with the service as class and the RPC as method, e.g.
"orders.v1.OrderService.Place".

Trackers are named after the X-Request-ID header (x-request-id metadata for
gRPC) when present.
*/
package tracing
