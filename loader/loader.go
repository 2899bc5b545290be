// Package loader reads a Beancount ledger file and builds the validated ledger
// snapshot from it.
//
// The ledger is read as one logical stream of directives: include directives are
// reported as parse warnings and not followed.
//
// Example usage:
//
//	ldr := loader.New(loader.WithLedgerOptions(ledger.WithTolerance(tolerance)))
//	result, err := ldr.Load(ctx, "main.beancount")
//	if err != nil {
//	    var verrs *ledger.ValidationErrors
//	    if !errors.As(err, &verrs) {
//	        return err // the file could not be read
//	    }
//	}
//	fmt.Println(len(result.Ledger.Transactions()))
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/parser"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// Extensions lists the file extensions of ledger files.
var Extensions = []string{".beancount", ".bean"}

// Loader reads ledger files. Configure it using functional options passed to New.
type Loader struct {
	// LedgerOptions are passed to ledger.Load and override the ledger config taken
	// from the context.
	LedgerOptions []ledger.Option
}

// Option configures how files are loaded.
type Option func(*Loader)

// WithLedgerOptions configures how the ledger validates the loaded directives.
func WithLedgerOptions(opts ...ledger.Option) Option {
	return func(l *Loader) {
		l.LedgerOptions = append(l.LedgerOptions, opts...)
	}
}

// New creates a new Loader with the given options.
func New(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is a loaded ledger file.
type Result struct {
	// Filename is the absolute path of the ledger file.
	Filename string
	// Size is the number of bytes the ledger was built from.
	Size     int64
	// Lines is the number of newline characters in the file.
	Lines    int
	Ledger   *ledger.Ledger
	Warnings []*parser.ParseWarning
}

// Load reads and validates the ledger in filename. A file that cannot be read is an
// error without a result. Validation errors come back as *ledger.ValidationErrors
// together with a usable result holding every valid directive.
func (l *Loader) Load(ctx context.Context, filename string) (*Result, error) {
	timer := telemetry.FromContext(ctx).Start("loader.load")
	defer timer.End()

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", filename, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	snapshot, warnings, err := LoadLedgerText(ctx, filename, data, l.LedgerOptions...)
	if snapshot == nil {
		return nil, err
	}
	return &Result{
		Filename: absPath,
		Size:     int64(len(data)),
		Lines:    bytes.Count(data, []byte("\n")),
		Ledger:   snapshot,
		Warnings: warnings,
	}, err
}

// LoadLedgerText parses raw and builds a ledger from it. Positions in warnings and
// errors refer to filename. Parse warnings never fail the load; the error is either
// *ledger.ValidationErrors, returned together with the usable ledger, or a context
// error.
func LoadLedgerText(ctx context.Context, filename string, raw []byte, opts ...ledger.Option) (*ledger.Ledger, []*parser.ParseWarning, error) {
	directives, warnings := parser.Parse(ctx, filename, raw)

	l, err := ledger.Load(ctx, directives, opts...)
	if err != nil && ctx.Err() != nil {
		return nil, warnings, err
	}
	return l, warnings, err
}

// IsLedgerFile reports whether path has a ledger file extension.
func IsLedgerFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListFiles returns the ledger files below dir as slash-separated paths relative to
// dir, sorted. Hidden directories are skipped.
func ListFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsLedgerFile(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger files in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
