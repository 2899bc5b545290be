package service

import (
	"context"
	"errors"

	"github.com/robinvdvleuten/beancount-mcp/journal"
	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/query"
)

// ErrWritesHalted is returned for every submission after an append left the ledger
// file in an unknown state. Reload clears it.
var ErrWritesHalted = errors.New("writes are halted until the ledger is reloaded from disk")

// ErrorKind names the class of err for clients: structural, lifecycle, balance,
// query, storage, halted, canceled or internal.
func ErrorKind(err error) string {
	var (
		kinded  interface{ Kind() ledger.ErrorKind }
		compile *query.CompileError
		runtime *query.RuntimeError
		storage *journal.StorageError
	)
	switch {
	case errors.Is(err, ErrWritesHalted):
		return "halted"
	case errors.As(err, &storage):
		return "storage"
	case errors.As(err, &compile), errors.As(err, &runtime):
		return "query"
	case errors.As(err, &kinded):
		return kinded.Kind().String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
