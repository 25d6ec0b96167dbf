// Package probe assembles the tracing engine.
//
// An Engine owns the live configuration, the snapshot and render queues, the
// log sinks and the optional status server. Host code obtains one Tracker per
// goroutine and reports every instrumented call through it:
//
//	e, err := probe.New(cfg, probe.Options{})
//	if err != nil {
//		return err
//	}
//	if err := e.Start(); err != nil {
//		return err
//	}
//	defer e.Shutdown(context.Background())
//
//	t := e.Tracker("worker-1")
//	err = t.Do("orders.Service", "Place", func() error { return place(order) }, order)
//
// Shutdown drains both queues within Config.Shutdown.TimeoutMs before closing
// the sinks; anything still queued after that is discarded.
package probe
