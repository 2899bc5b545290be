package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/output"
)

type QueryCmd struct {
	Query  string `arg:"" help:"Query to run, for example \"SELECT account, sum(amount) FROM postings GROUP BY account\"."`
	Format string `help:"Output format." enum:"table,json" default:"table" short:"o"`
}

func (cmd *QueryCmd) Run(ctx *kong.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}

	runCtx, reportTelemetry := globals.telemetry(context.Background(), ctx.Stderr, "query")
	defer reportTelemetry()

	b, err := openBackend(runCtx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	result, err := b.svc.RunQuery(runCtx, cmd.Query)
	if err != nil {
		_, _ = fmt.Fprintln(ctx.Stderr, NewErrorRenderer(nil).Render(err))
		return NewCommandError(1)
	}

	if cmd.Format == "json" {
		enc := json.NewEncoder(ctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	_, _ = fmt.Fprintln(ctx.Stdout, output.Table(result.Headers(), result.Strings(), result.NumericColumns()))
	if result.Truncated {
		printInfof(ctx.Stderr, "Showing the first %d rows; raise row_limit to see more", cfg.RowLimit)
	}
	return nil
}
