// Package telemetry times ledger operations (parse, load, query, submit) as a tree
// of nested timers.
//
// Collectors travel through context.Context, so instrumented code never changes its
// signature and pays nothing when no collector is installed:
//
//	ctx := telemetry.WithCollector(ctx, telemetry.NewTimingCollector())
//
//	timer := telemetry.FromContext(ctx).Start("ledger.load")
//	defer timer.End()
//
//	child := timer.Child("ledger.validate")
//	child.End()
package telemetry

import (
	"context"
	"io"

	"github.com/robinvdvleuten/beancount-mcp/output"
)

type contextKey struct{}

var collectorKey = contextKey{}

// Collector receives timings. Implementations must be safe for concurrent use, since
// the server runs queries and submissions in parallel.
type Collector interface {
	// Start begins timing a top-level operation.
	Start(name string) Timer

	// Report writes the collected timings to w. Styles may be nil.
	Report(w io.Writer, styles *output.Styles)
}

// Timer tracks a single operation's timing.
type Timer interface {
	// End stops the timer and records the duration.
	End()

	// Child creates a timer nested under this one.
	Child(name string) Timer
}

// WithCollector adds a collector to a context.
func WithCollector(ctx context.Context, collector Collector) context.Context {
	return context.WithValue(ctx, collectorKey, collector)
}

// FromContext extracts the collector from context, or a no-op collector when none
// was installed.
func FromContext(ctx context.Context) Collector {
	if collector, ok := ctx.Value(collectorKey).(Collector); ok {
		return collector
	}
	return noOpCollector{}
}
