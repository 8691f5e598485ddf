package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"command timeout", ErrCommandTimeout, true},
		{"transport", ErrTransport, true},
		{"wrapped transport", fmt.Errorf("dial: %w", ErrTransport), true},
		{"context deadline", context.DeadlineExceeded, true},
		{"backend unavailable", ErrBackendUnavailable, false},
		{"malformed response", ErrMalformedResponse, false},
		{"refused pattern", stderrors.New("dial tcp 127.0.0.1:29999: connection refused"), true},
		{"plain error", stderrors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	// Timeouts retry; a missing backend or garbage reply does not.
	assert.True(t, IsRetryable(ErrCommandTimeout))
	assert.True(t, IsRetryable(ErrTransport))
	assert.False(t, IsRetryable(ErrBackendUnavailable))
	assert.False(t, IsRetryable(ErrMalformedResponse))
	assert.False(t, IsRetryable(ErrUnknownCommand))
	assert.False(t, IsRetryable(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrBackendUnavailable))
	assert.Equal(t, ErrorInvalid, Classify(ErrMalformedResponse))
	assert.Equal(t, ErrorTransient, Classify(ErrCommandTimeout))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("unknown")))
}

func TestWrap_Format(t *testing.T) {
	err := Wrap(ErrTransport, "Manager", "Connect", "dial command port")
	assert.EqualError(t, err, "Manager.Connect: dial command port failed: transport error")
	assert.True(t, stderrors.Is(err, ErrTransport))

	assert.NoError(t, Wrap(nil, "Manager", "Connect", "dial"))
}

func TestWrapClassified_PreservesChain(t *testing.T) {
	err := WrapTransient(ErrCommandTimeout, "Executor", "Execute", "RobotMode")

	var ce *ClassifiedError
	assert.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ErrorTransient, ce.Class)
	assert.Equal(t, "Executor", ce.Component)
	assert.True(t, stderrors.Is(err, ErrCommandTimeout))

	fatal := WrapFatal(ErrBackendUnavailable, "Manager", "Connect", "resolve backend")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsRetryable(fatal))

	invalid := WrapInvalid(ErrMalformedResponse, "Executor", "classify", "parse reply")
	assert.True(t, IsInvalid(invalid))
	assert.False(t, IsRetryable(invalid))
}
