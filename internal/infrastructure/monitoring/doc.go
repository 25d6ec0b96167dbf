/*
Package monitoring provides Prometheus metrics for the probe.

# Overview

Metrics are registered on a private registry owned by Metrics rather than the
process-global default, so several engines (and tests) can coexist.

# Metrics

- Queue metrics per worker (submitted, dropped, processed, depth, panics)
- Trace outcomes and root durations per entry method
- Snapshot writes, failures and sizes
- Serialization failures by reason
- Status server HTTP requests

# Usage

	metrics := monitoring.NewMetrics()

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
