package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/GriffinCanCode/methodprobe/internal/errdigest"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
)

// TimeLayout formats timestamps in rendered output.
const TimeLayout = "2006-01-02 15:04:05.000"

// Tag printed in flat lines.
const Tag = "MethodProbe"

var (
	ruleTop    = "╔" + strings.Repeat("═", 78) + "\n"
	ruleMiddle = "╠" + strings.Repeat("═", 78) + "\n"
	ruleBottom = "╚" + strings.Repeat("═", 78) + "\n"
)

const (
	branchMid  = "├── "
	branchLast = "└── "
	indentMid  = "│   "
	indentLast = "    "
)

// Trace renders t as a boxed tree, one line per node in pre-order:
//
//	╔══════
//	║ [2026-01-12 09:13:13.000] [worker-1] Method Call Tree
//	║ Trace: 01JH...
//	╠══════
//	║ └── A.run - 170.00 ms [snap:20260112-091313-000-00001]
//	║     └── B.work - 150.00 ms
//	║         └── C.query - 30.00 ms
//	╚══════
func Trace(t *tree.Trace) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(ruleTop)
	fmt.Fprintf(&b, "║ [%s] [%s] Method Call Tree\n", t.Root.Start().Format(TimeLayout), t.Thread)
	if t.ID != "" {
		fmt.Fprintf(&b, "║ Trace: %s\n", t.ID)
	}
	if t.Err != nil {
		fmt.Fprintf(&b, "║ ⚠ Exception: %s\n", errdigest.TypeName(t.Err))
	}
	b.WriteString(ruleMiddle)
	writeNode(&b, t.Root, "", true)
	b.WriteString(ruleBottom)
	return b.String()
}

func writeNode(b *strings.Builder, n *tree.CallNode, prefix string, last bool) {
	branch, indent := branchMid, indentMid
	if last {
		branch, indent = branchLast, indentLast
	}

	b.WriteString("║ ")
	b.WriteString(prefix)
	b.WriteString(branch)
	b.WriteString(n.Signature())
	fmt.Fprintf(b, " - %s", formatMs(n.Duration()))
	if n.Err() != nil {
		fmt.Fprintf(b, " [EXCEPTION: %s]", errdigest.ShortName(errdigest.TypeName(n.Err())))
	}
	if n.CorrelationID() != "" {
		fmt.Fprintf(b, " [snap:%s]", n.CorrelationID())
	}
	b.WriteString("\n")

	children := n.Children()
	for i, c := range children {
		writeNode(b, c, prefix+indent, i == len(children)-1)
	}
}

// Flat renders a single flat-mode line:
//
//	[2026-01-12 09:13:13.000] [MethodProbe] [worker-1] svc.Repo.save - 12.34 ms [EXCEPTION: PathError] [snap:id]
func Flat(l tree.FlatLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] [%s] %s - %s",
		l.Time.Format(TimeLayout), Tag, l.Thread, l.Signature(), formatMs(l.Duration))
	if l.Err != nil {
		fmt.Fprintf(&b, " [EXCEPTION: %s]", errdigest.ShortName(errdigest.TypeName(l.Err)))
	}
	if l.CorrelationID != "" {
		fmt.Fprintf(&b, " [snap:%s]", l.CorrelationID)
	}
	b.WriteString("\n")
	return b.String()
}

func formatMs(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}
