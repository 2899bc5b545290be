package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/beancount-mcp/watch"
	"github.com/robinvdvleuten/beancount-mcp/web"
)

type WebCmd struct {
	Addr     string `help:"Address to listen on (default from http_addr)." placeholder:"HOST:PORT"`
	Create   bool   `help:"Automatically create the ledger file if it doesn't exist (no confirmation prompt)."`
	ReadOnly bool   `help:"Enable read-only mode (no submissions accepted)." short:"r"`
	NoWatch  bool   `help:"Do not reload the ledger when files in its directory change." name:"no-watch"`
}

func (cmd *WebCmd) Run(ctx *kong.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}

	ledgerFile, err := filepath.Abs(cfg.LedgerFile)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if err := cmd.ensureLedger(ctx, ledgerFile); err != nil {
		return err
	}

	logger, err := globals.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, reportTelemetry := globals.telemetry(runCtx, ctx.Stderr, "web")
	defer reportTelemetry()

	b, err := openBackend(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var opts []web.Option
	opts = append(opts, web.WithLogger(logger))
	if b.store != nil {
		opts = append(opts, web.WithSubmissions(b.store))
	}
	server := web.New(b.svc, opts...)
	server.Addr = cfg.HTTPAddr
	if cmd.Addr != "" {
		server.Addr = cmd.Addr
	}
	server.Version = version()
	server.ReadOnly = cmd.ReadOnly

	if cfg.Watch && !cmd.NoWatch {
		w := watch.New(filepath.Dir(b.svc.Filename()), func(ctx context.Context) error {
			if err := b.svc.Reload(ctx); err != nil {
				return err
			}
			server.Broadcast("reload")
			return nil
		}, watch.WithDebounce(cfg.Debounce), watch.WithLogger(logger))
		if err := w.Start(runCtx); err != nil {
			return err
		}
	}

	printInfof(ctx.Stdout, "Starting server on %s", server.Addr)
	printInfof(ctx.Stdout, "Serving ledger: %s", filePath(ctx.Stdout, b.svc.Filename()))

	if cmd.ReadOnly {
		printInfof(ctx.Stdout, "Server running in READ-ONLY mode")
	}

	return server.Start(runCtx)
}

// ensureLedger creates a missing ledger file after confirmation or with --create.
func (cmd *WebCmd) ensureLedger(ctx *kong.Context, ledgerFile string) error {
	_, err := os.Stat(ledgerFile)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to access file: %w", err)
	}

	shouldCreate := cmd.Create
	if !shouldCreate {
		confirmed, err := promptYesNo(fmt.Sprintf("File %q does not exist. Create it?", ledgerFile))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		shouldCreate = confirmed
	}

	if !shouldCreate {
		return fmt.Errorf("file does not exist: %s", ledgerFile)
	}

	if err := os.MkdirAll(filepath.Dir(ledgerFile), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(ledgerFile, []byte(""), 0600); err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	printInfof(ctx.Stdout, "Created empty ledger file: %s", filePath(ctx.Stdout, ledgerFile))
	return nil
}
