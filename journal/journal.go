// Package journal appends submitted transactions to the ledger file.
//
// The ledger file is append-only: the only write is a serialized transaction preceded
// by a blank line. Every append is flushed with fsync before it is reported as done.
// When a write or flush fails the journal truncates the file back to its size before
// the append and reports whether it could confirm that rollback.
package journal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// Journal appends serialized transactions to durable storage.
type Journal interface {
	Append(ctx context.Context, text string) (Entry, error)
	Path() string
}

// Entry locates an appended transaction in the ledger file.
type Entry struct {
	Offset int64 // byte offset of the transaction text
	Size   int64 // bytes written, including the separating blank line
}

// file is the subset of *os.File the journal writes through.
type file interface {
	io.Writer
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// FileJournal appends to a single ledger file on disk.
type FileJournal struct {
	path string
	mu   sync.Mutex
	open func(path string) (file, error)
}

var _ Journal = (*FileJournal)(nil)

// NewFileJournal returns a journal appending to path. The file must exist.
func NewFileJournal(path string) *FileJournal {
	return &FileJournal{
		path: path,
		open: func(path string) (file, error) {
			return os.OpenFile(path, os.O_APPEND|os.O_RDWR, 0)
		},
	}
}

// Path returns the ledger file the journal appends to.
func (j *FileJournal) Path() string {
	return j.path
}

// Append writes text to the end of the file, separated from what precedes it by a
// blank line, and flushes it to disk. ctx is only checked before the write starts.
//
// On failure the returned error is a *StorageError. Its RolledBack field reports
// whether the file is known to be back at its size before the append.
func (j *FileJournal) Append(ctx context.Context, text string) (Entry, error) {
	timer := telemetry.FromContext(ctx).Start("journal.append")
	defer timer.End()

	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.open(j.path)
	if err != nil {
		return Entry{}, &StorageError{Op: "open", Path: j.path, Err: err, RolledBack: true}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Entry{}, &StorageError{Op: "stat", Path: j.path, Err: err, RolledBack: true}
	}
	size := info.Size()

	prefix, err := separator(f, size)
	if err != nil {
		return Entry{}, &StorageError{Op: "read", Path: j.path, Err: err, RolledBack: true}
	}
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	payload := prefix + text

	if _, err := io.WriteString(f, payload); err != nil {
		return Entry{}, j.rollback(f, size, "write", err)
	}
	if err := f.Sync(); err != nil {
		return Entry{}, j.rollback(f, size, "sync", err)
	}

	return Entry{
		Offset: size + int64(len(prefix)),
		Size:   int64(len(payload)),
	}, nil
}

// separator returns what has to precede an append so that a blank line separates it
// from the existing content.
func separator(f io.ReaderAt, size int64) (string, error) {
	switch {
	case size == 0:
		return "", nil
	case size == 1:
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, 0); err != nil {
			return "", err
		}
		if last[0] == '\n' {
			return "\n", nil
		}
		return "\n\n", nil
	}

	tail := make([]byte, 2)
	if _, err := f.ReadAt(tail, size-2); err != nil {
		return "", err
	}
	switch {
	case tail[0] == '\n' && tail[1] == '\n':
		return "", nil
	case tail[1] == '\n':
		return "\n", nil
	default:
		return "\n\n", nil
	}
}

// rollback truncates f back to size after a failed append and checks that it worked.
func (j *FileJournal) rollback(f file, size int64, op string, cause error) error {
	serr := &StorageError{Op: op, Path: j.path, Err: cause}
	if err := f.Truncate(size); err != nil {
		return serr
	}
	if err := f.Sync(); err != nil {
		return serr
	}
	info, err := f.Stat()
	if err != nil || info.Size() != size {
		return serr
	}
	serr.RolledBack = true
	return serr
}

// StorageError reports a failed append.
type StorageError struct {
	Op         string
	Path       string
	Err        error
	RolledBack bool // the file is confirmed to be back at its size before the append
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
	if !e.RolledBack {
		msg += " (the file may hold a partial write)"
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
