package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/errors"
)

type CheckCmd struct {
	Format string `help:"Output format for problems." enum:"text,json" default:"text" short:"o"`
}

func (cmd *CheckCmd) Run(ctx *kong.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}

	runCtx, reportTelemetry := globals.telemetry(context.Background(), ctx.Stderr, fmt.Sprintf("check %s", filepath.Base(cfg.LedgerFile)))
	defer reportTelemetry()

	b, err := openBackend(runCtx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	var problems []error
	for _, w := range b.svc.Warnings() {
		problems = append(problems, w)
	}
	problems = append(problems, errors.Flatten(b.svc.Problems())...)

	if cmd.Format == "json" {
		_, _ = fmt.Fprintln(ctx.Stdout, errors.NewJSONFormatter().FormatAll(problems))
		if len(problems) > 0 {
			return NewCommandError(1)
		}
		return nil
	}

	if len(problems) > 0 {
		// Source context only covers the main file; includes are not followed.
		source, _ := os.ReadFile(b.svc.Filename())
		_, _ = fmt.Fprintln(ctx.Stderr, NewErrorRenderer(source).RenderAll(problems))
		_, _ = fmt.Fprintln(ctx.Stderr)
		printError(ctx.Stderr, fmt.Sprintf("%d problem(s) found", len(problems)))

		reportTelemetry()
		return NewCommandError(1)
	}

	snapshot := b.svc.Snapshot()
	printSuccess(ctx.Stdout, "Check passed")
	printInfof(ctx.Stdout, "%d accounts, %d transactions in %s",
		len(snapshot.Accounts()),
		len(snapshot.Transactions()),
		filePath(ctx.Stdout, b.svc.Filename()),
	)

	return nil
}
