package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplingError(t *testing.T) {
	cause := os.ErrNotExist
	err := NewSamplingError(SourceGPU, cause)

	assert.Equal(t, "failed to sample gpu: file does not exist", err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, SourceGPU, SourceOf(err))

	wrapped := fmt.Errorf("snapshot: %w", err)
	assert.Equal(t, SourceGPU, SourceOf(wrapped))
	assert.Equal(t, "", SourceOf(errors.New("plain")))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"config", NewStartupError(nil, "missing port"), ExitErrorConfig},
		{"listen", NewListenError(":80", errors.New("permission denied")), ExitErrorGeneric},
		{"wrapped config", fmt.Errorf("run: %w", NewStartupError(nil, "bad")), ExitErrorConfig},
		{"other", errors.New("boom"), ExitErrorGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestStartupErrorMessage(t *testing.T) {
	err := NewStartupError(errors.New("not a number"), "invalid port %q", "abc")
	assert.Equal(t, `invalid port "abc": not a number`, err.Error())

	err = NewStartupError(nil, "port argument is required")
	assert.Equal(t, "port argument is required", err.Error())
}
