package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk gone")

	// When: wrapping with Error
	err := New(ErrCodeIndexIO, "open index blog", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "no cause",
			err:      New(ErrCodeQuerySyntax, "cannot parse query", nil),
			expected: "[ERR_402_QUERY_SYNTAX] cannot parse query",
		},
		{
			name:     "with cause",
			err:      New(ErrCodeIndexIO, "commit blog", errors.New("short write")),
			expected: "[ERR_201_INDEX_IO] commit blog: short write",
		},
		{
			name:     "wrapped keeps single message",
			err:      Wrap(ErrCodeInternal, errors.New("boom")),
			expected: "[ERR_501_INTERNAL] boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: an error wrapped by fmt
	err := fmt.Errorf("acquire blog: %w", New(ErrCodeResourceUnavailable, "lock held", nil))

	// Then: code matching works through the chain
	assert.True(t, HasCode(err, ErrCodeResourceUnavailable))
	assert.False(t, HasCode(err, ErrCodeIndexIO))
	assert.Equal(t, ErrCodeResourceUnavailable, GetCode(err))
	assert.Equal(t, CategoryResource, GetCategory(err))
}

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityFatal, false},
		{ErrCodeIndexIO, CategoryIO, SeverityError, false},
		{ErrCodeIndexLocked, CategoryResource, SeverityWarning, true},
		{ErrCodeResourceUnavailable, CategoryResource, SeverityError, false},
		{ErrCodeMalformedEntry, CategoryValidation, SeverityInfo, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ConfigError("bad listen address", nil)))
	assert.False(t, IsFatal(IndexIOError("read failed", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestWithDetail_AddsDetails(t *testing.T) {
	err := New(ErrCodeIndexIO, "commit failed", nil).
		WithDetail("index", "blog").
		WithDetail("stage", "commit")

	assert.Equal(t, "blog", err.Details["index"])
	assert.Equal(t, "commit", err.Details["stage"])
}
