package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func startWatcher(t *testing.T, dir string, reload ReloadFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	w := New(dir, reload, WithDebounce(100*time.Millisecond))
	assert.NoError(t, w.Start(ctx))
}

func counter() (ReloadFunc, chan struct{}) {
	reloads := make(chan struct{}, 10)
	return func(context.Context) error {
		reloads <- struct{}{}
		return nil
	}, reloads
}

func TestReloadsAfterLedgerChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.beancount")
	assert.NoError(t, os.WriteFile(path, []byte("2024-01-01 open Assets:Bank\n"), 0o644))

	reload, reloads := counter()
	startWatcher(t, dir, reload)

	// A burst of writes collapses into one reload.
	for i := 0; i < 3; i++ {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		assert.NoError(t, err)
		_, err = f.WriteString("2024-01-02 open Expenses:Food\n")
		assert.NoError(t, err)
		assert.NoError(t, f.Close())
	}

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("ledger was not reloaded")
	}

	select {
	case <-reloads:
		t.Fatal("burst of writes reloaded more than once")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()

	reload, reloads := counter()
	startWatcher(t, dir, reload)

	assert.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	select {
	case <-reloads:
		t.Fatal("reloaded for a file that is not a ledger")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestReloadErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.bean")

	calls := make(chan struct{}, 10)
	startWatcher(t, dir, func(context.Context) error {
		calls <- struct{}{}
		return errors.New("broken ledger")
	})

	for i := 0; i < 2; i++ {
		assert.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatal("ledger was not reloaded")
		}
	}
}

func TestStartMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), func(context.Context) error { return nil })
	err := w.Start(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}
