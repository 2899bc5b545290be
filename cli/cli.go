// Package cli provides the command-line interface of beancount-mcp.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/robinvdvleuten/beancount-mcp/output"
)

const (
	successSymbol = "✓"
	errorSymbol   = "✗"
	infoSymbol    = "→"
)

func printSuccess(w io.Writer, message string) {
	styles := output.NewStyles(w)
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Success(successSymbol), message)
}

func printError(w io.Writer, message string) {
	styles := output.NewStyles(w)
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Error(errorSymbol), styles.Error(message))
}

func printInfof(w io.Writer, format string, args ...any) {
	styles := output.NewStyles(w)
	_, _ = fmt.Fprintf(w, "%s %s\n", styles.Info(infoSymbol), fmt.Sprintf(format, args...))
}

// filePath styles path for w.
func filePath(w io.Writer, path string) string {
	return output.NewStyles(w).FilePath(path)
}

// promptYesNo prompts the user with a yes/no question.
// Returns false by default if stdin is not a terminal.
func promptYesNo(question string) (bool, error) {
	if !isTerminal() {
		return false, nil
	}

	var confirm bool

	form := huh.NewConfirm().
		Title(question).
		WithButtonAlignment(lipgloss.Left).
		Value(&confirm)

	err := form.Run()
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	return confirm, nil
}

// isTerminal reports whether stdin is attached to a terminal.
var isTerminal = defaultIsTerminal

func defaultIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// FileOrStdin accepts either a file path or "-" for stdin.
type FileOrStdin struct {
	Filename string
	Contents []byte
}

// Decode implements kong.MapperValue.
func (f *FileOrStdin) Decode(ctx *kong.DecodeContext) error {
	var filename string
	if err := ctx.Scan.PopValueInto("filename", &filename); err != nil {
		return err
	}

	if filename == "-" || filename == "" {
		return f.readStdin()
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	f.Filename = filename
	f.Contents = contents

	return nil
}

// EnsureContents populates Contents from stdin if Filename is empty.
func (f *FileOrStdin) EnsureContents() error {
	if f.Filename == "" {
		return f.readStdin()
	}
	return nil
}

func (f *FileOrStdin) readStdin() error {
	contents, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}
	f.Filename = "<stdin>"
	f.Contents = contents
	return nil
}
