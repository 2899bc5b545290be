package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestCommandError(t *testing.T) {
	t.Run("ReturnsExitCode", func(t *testing.T) {
		err := NewCommandError(42)
		assert.Equal(t, 42, err.ExitCode())
		assert.EqualError(t, err, "command failed")
	})

	t.Run("SurvivesWrapping", func(t *testing.T) {
		err := fmt.Errorf("check: %w", NewCommandError(1))
		var cmdErr *CommandError
		assert.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, 1, cmdErr.ExitCode())
	})
}
