// Package tree builds per-goroutine call trees from enter/exit callbacks.
//
// A Manager is shared; each goroutine gets its own Tracker, which needs no
// locking because nothing else touches it. Entering a configured entry
// method starts a tree, calls on included classes attach to it, and the
// root's exit closes it. Closed trees that satisfy the tree trigger are
// handed to a Submitter for rendering. Invocations outside any tree may
// instead produce flat lines.
//
// Nodes eligible for capture get a correlation ID on entry. If the node's
// trigger fires on exit, its arguments and error go to a Capturer keyed by
// that ID, so the rendered line and the snapshot file share a name.
//
//	tr := manager.NewTracker("worker-1")
//	tr.OnEnter("OrderService", "place", order)
//	err := place(order)
//	tr.OnExit("OrderService", "place", err)
package tree
