package telemetry

import (
	"io"
	"time"

	"github.com/robinvdvleuten/beancount-mcp/output"
	"go.uber.org/zap"
)

// LogCollector logs every finished timer as a debug entry instead of building a
// report. The server installs it so slow queries and submissions show up in its logs.
type LogCollector struct {
	logger *zap.Logger
}

// NewLogCollector returns a collector writing to logger.
func NewLogCollector(logger *zap.Logger) *LogCollector {
	return &LogCollector{logger: logger}
}

// Start begins timing a top-level operation.
func (c *LogCollector) Start(name string) Timer {
	return &logTimer{logger: c.logger, name: name, start: time.Now()}
}

// Report is a no-op; entries were logged as timers ended.
func (c *LogCollector) Report(io.Writer, *output.Styles) {}

type logTimer struct {
	logger *zap.Logger
	name   string
	start  time.Time
}

func (t *logTimer) End() {
	elapsed := time.Since(t.start)
	level := zap.DebugLevel
	if elapsed >= slowOperation {
		level = zap.InfoLevel
	}
	if ce := t.logger.Check(level, "timing"); ce != nil {
		ce.Write(zap.String("operation", t.name), zap.Duration("elapsed", elapsed))
	}
}

func (t *logTimer) Child(name string) Timer {
	return &logTimer{logger: t.logger, name: t.name + "/" + name, start: time.Now()}
}
