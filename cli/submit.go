package cli

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/formatter"
	"github.com/robinvdvleuten/beancount-mcp/service"
)

type SubmitCmd struct {
	File FileOrStdin `help:"File holding one transaction (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
	Yes  bool        `help:"Append without asking for confirmation." short:"y"`
}

func (cmd *SubmitCmd) Run(ctx *kong.Context, globals *Globals) error {
	if err := cmd.File.EnsureContents(); err != nil {
		return err
	}

	cfg, err := globals.load()
	if err != nil {
		return err
	}

	runCtx, reportTelemetry := globals.telemetry(context.Background(), ctx.Stderr, "submit")
	defer reportTelemetry()

	text := string(cmd.File.Contents)
	txn, err := service.ParseTransaction(runCtx, text)
	if err != nil {
		_, _ = fmt.Fprintln(ctx.Stderr, NewErrorRenderer(cmd.File.Contents).Render(err))
		return NewCommandError(1)
	}

	b, err := openBackend(runCtx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer b.Close()

	printInfof(ctx.Stdout, "Appending to %s:", filePath(ctx.Stdout, b.svc.Filename()))
	_, _ = fmt.Fprintln(ctx.Stdout)
	for _, line := range strings.Split(strings.TrimRight(formatter.FormatTransaction(txn), "\n"), "\n") {
		_, _ = fmt.Fprintln(ctx.Stdout, "   "+line)
	}
	_, _ = fmt.Fprintln(ctx.Stdout)

	if !cmd.Yes {
		if !isTerminal() {
			return stdErrors.New("refusing to append without confirmation; pass --yes when not running in a terminal")
		}
		confirmed, err := promptYesNo("Append this transaction?")
		if err != nil {
			return err
		}
		if !confirmed {
			printInfof(ctx.Stdout, "Nothing appended")
			return nil
		}
	}

	result, err := b.svc.SubmitText(runCtx, text)
	if err != nil {
		_, _ = fmt.Fprintln(ctx.Stderr, NewErrorRenderer(nil).Render(err))
		_, _ = fmt.Fprintln(ctx.Stderr)
		printError(ctx.Stderr, fmt.Sprintf("submission rejected (%s)", service.ErrorKind(err)))
		return NewCommandError(1)
	}

	printSuccess(ctx.Stdout, fmt.Sprintf("Appended transaction %s", result.TransactionID))
	printInfof(ctx.Stdout, "Confirmation %s, ledger version %d", result.ConfirmationID, result.Version)
	return nil
}
