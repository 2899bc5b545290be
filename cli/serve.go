package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/mcpserver"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
	"github.com/robinvdvleuten/beancount-mcp/watch"
)

type ServeCmd struct {
	NoWatch bool `help:"Do not reload the ledger when files in its directory change." name:"no-watch"`
}

// Run serves MCP over stdio. Stdout carries the protocol, so everything else goes to
// the logger on stderr.
func (cmd *ServeCmd) Run(ctx *kong.Context, globals *Globals) error {
	cfg, err := globals.load()
	if err != nil {
		return err
	}

	logger, err := globals.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if globals.Telemetry {
		runCtx = telemetry.WithCollector(runCtx, telemetry.NewLogCollector(logger))
	}

	b, err := openBackend(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Watch && !cmd.NoWatch {
		w := watch.New(filepath.Dir(b.svc.Filename()), b.svc.Reload,
			watch.WithDebounce(cfg.Debounce),
			watch.WithLogger(logger),
		)
		if err := w.Start(runCtx); err != nil {
			return err
		}
	}

	server := mcpserver.New(b.svc, version(), mcpserver.WithLogger(logger))
	logger.Info("serving MCP over stdio", zap.String("ledger", b.svc.Filename()), zap.String("version", version()))
	return server.Serve(runCtx)
}
