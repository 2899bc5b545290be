package cli

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/robinvdvleuten/beancount-mcp/audit"
	"github.com/robinvdvleuten/beancount-mcp/config"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/output"
	"github.com/robinvdvleuten/beancount-mcp/service"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

var (
	Version   = ""
	CommitSHA = ""
)

// Globals defines global flags available to all commands. Flags override the config
// file and the environment.
type Globals struct {
	Config    string   `help:"YAML config file." short:"c" type:"existingfile" placeholder:"PATH"`
	EnvFile   string   `help:"Env file loaded before reading BEANCOUNT_MCP_* variables (default ./.env)." name:"env-file" placeholder:"PATH"`
	Ledger    string   `help:"Ledger file to serve." short:"f" placeholder:"PATH"`
	Tolerance []string `help:"Balance tolerance as COMMODITY:TOLERANCE; * sets the default." placeholder:"CUR:TOL"`
	AuditDB   string   `help:"SQLite file indexing accepted submissions." name:"audit-db" placeholder:"PATH"`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." name:"log-level"`
	Telemetry bool     `help:"Show timing telemetry for operations."`
}

type Commands struct {
	Globals

	Check  CheckCmd  `cmd:"" help:"Load the ledger and report parse warnings and validation errors."`
	Query  QueryCmd  `cmd:"" help:"Run a query against the ledger."`
	Submit SubmitCmd `cmd:"" help:"Validate a transaction and append it to the ledger."`
	Serve  ServeCmd  `cmd:"" help:"Serve the ledger to MCP clients over stdio."`
	Web    WebCmd    `cmd:"" help:"Start the HTTP API."`
}

// load layers the flags over the config file and the environment.
func (g *Globals) load() (*config.Config, error) {
	cfg, err := config.Load(g.Config, g.EnvFile)
	if cfg == nil {
		return nil, err
	}

	if g.Ledger != "" {
		cfg.LedgerFile = g.Ledger
	}
	if len(g.Tolerance) > 0 {
		cfg.Tolerance = g.Tolerance
	}
	if g.AuditDB != "" {
		cfg.AuditDB = g.AuditDB
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.LedgerFile == "" {
		return nil, stdErrors.New("no ledger file: pass --ledger or set BEANCOUNT_MCP_LEDGER_FILE")
	}
	return cfg, nil
}

// logger builds the configured logger. Terminals get the development encoder.
func (g *Globals) logger(cfg *config.Config) (*zap.Logger, error) {
	return cfg.Logger(term.IsTerminal(int(os.Stderr.Fd())))
}

// telemetry installs a timing collector when --telemetry is set. The returned
// function reports the timings once; it is safe to call more than once.
func (g *Globals) telemetry(ctx context.Context, w io.Writer, name string) (context.Context, func()) {
	if !g.Telemetry {
		return ctx, func() {}
	}

	collector := telemetry.NewTimingCollector()
	ctx = telemetry.WithCollector(ctx, collector)
	timer := collector.Start(name)

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			timer.End()
			_, _ = fmt.Fprintln(w)
			collector.Report(w, output.NewStyles(w))
		})
	}
}

// backend is the service together with the resources it owns.
type backend struct {
	svc   *service.Service
	store *audit.Store
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	lc, err := cfg.LedgerConfig()
	if err != nil {
		return nil, err
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithRowLimit(cfg.RowLimit),
		service.WithLedgerOptions(ledger.WithTolerance(lc.Tolerance)),
	}

	b := &backend{}
	if cfg.AuditDB != "" {
		if b.store, err = audit.Open(cfg.AuditDB); err != nil {
			return nil, err
		}
		opts = append(opts, service.WithRecorder(b.store))
		logger.Info("recording submissions", zap.String("audit_db", b.store.Path()))
	}

	if b.svc, err = service.New(ctx, cfg.LedgerFile, opts...); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backend) Close() {
	if b.store != nil {
		_ = b.store.Close()
	}
}

func version() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if CommitSHA != "" {
		v += "+" + CommitSHA
	}
	return v
}
