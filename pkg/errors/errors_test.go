package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeData, "bad row")
	assert.Equal(t, "data: bad row", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, ErrorTypeFile, "failed to write output")

	assert.Equal(t, "file: failed to write output: disk full", err.Error())
	assert.True(t, stderrors.Is(err, cause))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "missing setting").
		WithDetail("key", "api_key").
		WithDetail("source", "env")

	assert.Equal(t, "api_key", err.Details["key"])
	assert.Equal(t, "env", err.Details["source"])
}

func TestIsUnwrapsChain(t *testing.T) {
	inner := New(ErrorTypeNotFound, "no such group")
	outer := fmt.Errorf("pull failed: %w", inner)

	assert.True(t, Is(outer, ErrorTypeNotFound))
	assert.True(t, IsNotFound(outer))
	assert.False(t, Is(outer, ErrorTypeConnection))
	assert.False(t, Is(stderrors.New("plain"), ErrorTypeNotFound))
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeInternal}
	for _, typ := range retryable {
		assert.True(t, IsRetryable(New(typ, "x")), "type %s", typ)
	}

	terminal := []ErrorType{ErrorTypeNotFound, ErrorTypeValidation, ErrorTypeConfig, ErrorTypeData, ErrorTypeFile}
	for _, typ := range terminal {
		assert.False(t, IsRetryable(New(typ, "x")), "type %s", typ)
	}

	require.True(t, IsRetryable(stderrors.New("unknown")), "unknown errors are assumed transient")
}
