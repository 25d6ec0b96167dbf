package tree

import (
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/shared/id"
)

// CallNode is one invocation in a call tree. Nodes are built by the Tracker
// that owns them and are read-only once their trace has been handed off.
type CallNode struct {
	class    string
	method   string
	start    time.Time
	end      time.Time
	children []*CallNode
	parent   *CallNode

	args          []any
	correlationID id.CorrelationID
	err           error
}

func newNode(class, method string, start time.Time, parent *CallNode) *CallNode {
	n := &CallNode{class: class, method: method, start: start, parent: parent}
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

// Signature returns "Class.method".
func (n *CallNode) Signature() string { return n.class + "." + n.method }

func (n *CallNode) Class() string  { return n.class }
func (n *CallNode) Method() string { return n.method }

// Start returns the time the invocation was entered.
func (n *CallNode) Start() time.Time { return n.start }

// End returns the exit time, or the zero time while the node is open.
func (n *CallNode) End() time.Time { return n.end }

// Open reports whether the invocation has not exited yet.
func (n *CallNode) Open() bool { return n.end.IsZero() }

// Duration is zero for open nodes.
func (n *CallNode) Duration() time.Duration {
	if n.Open() {
		return 0
	}
	return n.end.Sub(n.start)
}

// DurationMs returns Duration as fractional milliseconds.
func (n *CallNode) DurationMs() float64 {
	return float64(n.Duration()) / float64(time.Millisecond)
}

// Children returns the callees in call order. The slice must not be modified.
func (n *CallNode) Children() []*CallNode { return n.children }

// Parent is nil for the root.
func (n *CallNode) Parent() *CallNode { return n.parent }

// Args returns the captured argument references, nil when capture was off.
func (n *CallNode) Args() []any { return n.args }

// CorrelationID is set only on nodes eligible for snapshot capture.
func (n *CallNode) CorrelationID() id.CorrelationID { return n.correlationID }

// Err returns the error the invocation exited with, if it passed the
// error filter.
func (n *CallNode) Err() error { return n.err }

// Depth is 0 for the root.
func (n *CallNode) Depth() int {
	depth := 0
	for p := n.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Walk visits n and its descendants depth-first, pre-order. last reports
// whether a node is the final child of its parent.
func (n *CallNode) Walk(fn func(node *CallNode, depth int, last bool)) {
	n.walk(fn, 0, true)
}

func (n *CallNode) walk(fn func(*CallNode, int, bool), depth int, last bool) {
	fn(n, depth, last)
	for i, c := range n.children {
		c.walk(fn, depth+1, i == len(n.children)-1)
	}
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *CallNode) Count() int {
	count := 1
	for _, c := range n.children {
		count += c.Count()
	}
	return count
}

// close sets the exit time. It only takes effect once.
func (n *CallNode) close(at time.Time) bool {
	if !n.Open() {
		return false
	}
	if at.Before(n.start) {
		at = n.start
	}
	n.end = at
	return true
}

// Trace is a completed call tree handed to the render worker. Nothing
// mutates it after submission.
type Trace struct {
	ID     id.TraceID
	Thread string
	Root   *CallNode
	// Err is the captured error the root exited with.
	Err error
	// HasError reports whether any node in the tree captured an error.
	HasError bool
}

// Entry returns the root signature.
func (t *Trace) Entry() string { return t.Root.Signature() }

// Duration returns the root's duration.
func (t *Trace) Duration() time.Duration { return t.Root.Duration() }

// FlatLine is a single-invocation record logged outside of any tree.
type FlatLine struct {
	Time          time.Time
	Thread        string
	Class         string
	Method        string
	Duration      time.Duration
	Err           error
	CorrelationID id.CorrelationID
}

// Signature returns "Class.method".
func (l FlatLine) Signature() string { return l.Class + "." + l.Method }
