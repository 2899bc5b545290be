// Package service owns the current ledger snapshot and serializes writes to it.
//
// Readers load the current snapshot without locking. A submission holds the write
// lock while it validates the transaction, applies it to a fork of the snapshot,
// appends it to the ledger file and publishes the fork, so two racing submissions are
// validated one after the other. The fork is only published once the append is
// durable.
//
// If an append fails and the journal cannot confirm that the file is back at its size
// before the append, memory and disk may disagree. The service then rejects every
// write with ErrWritesHalted until Reload rebuilds the snapshot from disk.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/ast"
	"github.com/robinvdvleuten/beancount-mcp/audit"
	"github.com/robinvdvleuten/beancount-mcp/formatter"
	"github.com/robinvdvleuten/beancount-mcp/journal"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/loader"
	"github.com/robinvdvleuten/beancount-mcp/parser"
	"github.com/robinvdvleuten/beancount-mcp/query"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// DefaultRowLimit caps the rows a query returns unless configured otherwise.
const DefaultRowLimit = 200

// Recorder keeps an index of accepted submissions.
type Recorder interface {
	Record(ctx context.Context, sub audit.Submission) error
}

// Service serves queries and submissions against one ledger file.
type Service struct {
	filename string
	journal  journal.Journal
	recorder Recorder
	loader   *loader.Loader
	logger   *zap.Logger
	rowLimit int
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex // held by submissions and reloads
	halted  atomic.Bool
	current atomic.Pointer[state]
}

// state is one published snapshot together with what is known about the file it was
// built from.
type state struct {
	ledger   *ledger.Ledger
	warnings []*parser.ParseWarning
	problems error // validation errors found while loading
	lines    int   // newlines in the ledger file
	base     uint64
}

func (st *state) version() uint64 {
	return st.base + st.ledger.Version()
}

// Option configures a Service.
type Option func(*Service)

// WithJournal replaces the file journal appending to the ledger file.
func WithJournal(j journal.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithRecorder records every accepted submission.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRowLimit caps the rows RunQuery returns. Zero or less disables the cap.
func WithRowLimit(n int) Option {
	return func(s *Service) {
		s.rowLimit = n
	}
}

// WithLedgerOptions configures how the ledger is validated on load and reload.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(s *Service) {
		s.loader = loader.New(loader.WithLedgerOptions(opts...))
	}
}

// WithClock sets the clock used for submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New loads filename and returns a service serving it. A file that cannot be read is
// an error; validation errors are logged and reported by Problems, and the ledger is
// served without the invalid directives.
func New(ctx context.Context, filename string, opts ...Option) (*Service, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", filename, err)
	}

	s := &Service{
		filename: abs,
		loader:   loader.New(),
		logger:   zap.NewNop(),
		rowLimit: DefaultRowLimit,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal == nil {
		s.journal = journal.NewFileJournal(abs)
	}

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Filename returns the absolute path of the ledger file.
func (s *Service) Filename() string {
	return s.filename
}

// Snapshot returns the current ledger snapshot.
func (s *Service) Snapshot() *ledger.Ledger {
	return s.current.Load().ledger
}

// Version returns the version of the current snapshot. It increases with every
// accepted submission and every reload.
func (s *Service) Version() uint64 {
	return s.current.Load().version()
}

// Warnings returns the parse warnings of the last load.
func (s *Service) Warnings() []*parser.ParseWarning {
	return s.current.Load().warnings
}

// Problems returns the validation errors of the last load, or nil.
func (s *Service) Problems() error {
	return s.current.Load().problems
}

// Halted reports whether writes are rejected until the next reload.
func (s *Service) Halted() bool {
	return s.halted.Load()
}

// Reload rebuilds the snapshot from the ledger file and lifts a write halt. On a read
// failure the current snapshot stays in place.
func (s *Service) Reload(ctx context.Context) error {
	timer := telemetry.FromContext(ctx).Start("service.reload")
	defer timer.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.loader.Load(ctx, s.filename)
	if result == nil {
		s.logger.Error("failed to load ledger", zap.String("file", s.filename), zap.Error(err))
		return err
	}

	next := &state{
		ledger:   result.Ledger,
		warnings: result.Warnings,
		problems: err,
		lines:    result.Lines,
	}
	if prev := s.current.Load(); prev != nil {
		next.base = prev.version()
	}

	for _, w := range result.Warnings {
		s.logger.Warn("skipped ledger line", zap.String("position", w.Pos.String()), zap.String("reason", w.Message))
	}
	if err != nil {
		s.logger.Warn("ledger has validation errors", zap.Error(err))
	}

	s.current.Store(next)
	if s.halted.Swap(false) {
		s.logger.Info("writes resumed after reload")
	}
	s.logger.Info("ledger loaded",
		zap.String("file", s.filename),
		zap.Int("transactions", len(result.Ledger.Transactions())),
		zap.Uint64("version", next.version()),
	)
	return nil
}

// QueryResult is a query table capped at the configured row limit.
type QueryResult struct {
	*query.Table
	Truncated bool   `json:"truncated"`
	Version   uint64 `json:"version"`
}

// RunQuery runs a query against the current snapshot.
func (s *Service) RunQuery(ctx context.Context, text string) (*QueryResult, error) {
	st := s.current.Load()

	table, err := query.Run(ctx, text, st.ledger)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Table: table, Version: st.version()}
	if s.rowLimit > 0 {
		result.Truncated = table.Truncate(s.rowLimit)
	}
	return result, nil
}

// Accounts returns the opened accounts of the current snapshot sorted by name.
func (s *Service) Accounts() []*ledger.Account {
	return s.Snapshot().Accounts()
}

// Transaction looks up a transaction of the current snapshot by ID.
func (s *Service) Transaction(id string) (*ledger.Transaction, bool) {
	return s.Snapshot().Transaction(id)
}

// Files lists the ledger files in the ledger file's directory, relative to it.
func (s *Service) Files() ([]string, error) {
	return loader.ListFiles(filepath.Dir(s.filename))
}

// Result confirms an accepted submission.
type Result struct {
	ConfirmationID string `json:"confirmation_id"`
	TransactionID  string `json:"transaction_id"`
	Version        uint64 `json:"version"`
	Text           string `json:"text"`
}

// SubmitTransaction validates draft, appends it to the ledger file and publishes the
// snapshot that includes it.
func (s *Service) SubmitTransaction(ctx context.Context, draft *TransactionDraft) (*Result, error) {
	txn, err := draft.Transaction()
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, txn)
}

// SubmitText submits beancount text holding exactly one transaction.
func (s *Service) SubmitText(ctx context.Context, text string) (*Result, error) {
	txn, err := ParseTransaction(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, txn)
}

func (s *Service) submit(ctx context.Context, txn *ast.Transaction) (*Result, error) {
	timer := telemetry.FromContext(ctx).Start("service.submit")
	defer timer.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted.Load() {
		return nil, ErrWritesHalted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := s.current.Load()
	next, err := current.ledger.ApplyTransaction(ctx, txn)
	if err != nil {
		s.logger.Info("transaction rejected", zap.String("date", txn.Date.String()), zap.Error(err))
		return nil, err
	}

	text := formatter.FormatTransaction(txn)
	entry, err := s.journal.Append(ctx, text)
	if err != nil {
		return nil, s.appendFailed(err)
	}

	// The pending snapshot is still private, so the directive can learn where it
	// was written.
	prefix := int(entry.Size) - len(text)
	txn.Pos = ast.Position{
		Filename: s.journal.Path(),
		Offset:   int(entry.Offset),
		Line:     current.lines + prefix + 1,
		Column:   1,
	}

	booked, _ := next.Booked(txn)
	published := &state{
		ledger:   next,
		warnings: current.warnings,
		problems: current.problems,
		lines:    current.lines + prefix + strings.Count(text, "\n"),
		base:     current.base,
	}
	s.current.Store(published)

	result := &Result{
		ConfirmationID: s.newID(),
		TransactionID:  booked.ID,
		Version:        published.version(),
		Text:           text,
	}
	s.logger.Info("transaction appended",
		zap.String("confirmation_id", result.ConfirmationID),
		zap.String("transaction_id", result.TransactionID),
		zap.Int64("offset", entry.Offset),
		zap.Uint64("version", result.Version),
	)
	s.record(ctx, txn, result, entry)
	return result, nil
}

// appendFailed halts writes unless the journal confirmed its rollback.
func (s *Service) appendFailed(err error) error {
	var serr *journal.StorageError
	if errors.As(err, &serr) && serr.RolledBack {
		s.logger.Error("append failed, ledger file unchanged", zap.Error(err))
		return err
	}
	s.halted.Store(true)
	s.logger.Error("append failed, writes halted until reload", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrWritesHalted, err)
}

// record indexes an accepted submission. The transaction is already durable, so a
// failure here is only logged.
func (s *Service) record(ctx context.Context, txn *ast.Transaction, result *Result, entry journal.Entry) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, audit.Submission{
		ConfirmationID: result.ConfirmationID,
		TransactionID:  result.TransactionID,
		Date:           txn.Date.String(),
		Narration:      txn.Narration,
		File:           s.journal.Path(),
		Offset:         entry.Offset,
		Version:        result.Version,
		SubmittedAt:    s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record submission",
			zap.String("confirmation_id", result.ConfirmationID),
			zap.Error(err),
		)
	}
}
