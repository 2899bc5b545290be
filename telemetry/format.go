package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/robinvdvleuten/beancount-mcp/output"
)

// slowOperation marks timings that are highlighted in reports.
const slowOperation = 100 * time.Millisecond

// Report writes every root timer and its children as a tree:
//
//	ledger.load: 125ms
//	├─ parser.parse: 45ms
//	│  └─ parser.lex: 5ms
//	└─ ledger.validate: 80ms
func (c *TimingCollector) Report(w io.Writer, styles *output.Styles) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, root := range c.roots {
		name := root.name
		if styles != nil {
			name = styles.Keyword(name)
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", name, formatDuration(root.duration()))

		for i, child := range root.children {
			formatNode(w, child, "", i == len(root.children)-1, styles)
		}
	}
}

func formatNode(w io.Writer, node *timerNode, prefix string, isLast bool, styles *output.Styles) {
	branch, extension := "├─ ", "│  "
	if isLast {
		branch, extension = "└─ ", "   "
	}

	duration := node.duration()
	timing := formatDuration(duration)
	tree := prefix + branch
	if styles != nil {
		tree = styles.Dim(tree)
		timing = styles.Timing(timing, duration >= slowOperation)
	}
	_, _ = fmt.Fprintf(w, "%s%s: %s\n", tree, node.name, timing)

	for i, child := range node.children {
		formatNode(w, child, prefix+extension, i == len(node.children)-1, styles)
	}
}

// formatDuration shows milliseconds below one second and seconds above.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", float64(d)/float64(time.Second))
}
