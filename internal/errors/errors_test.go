package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmanError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an underlying error
	cause := stderrors.New("disk I/O error")

	// When: wrapping it in a store error
	err := StoreError("upsert failed", cause)

	// Then: the chain reaches the cause
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "[ERR_204_STORE_WRITE] upsert failed", err.Error())
}

func TestAmanError_CategoryAndSeverityFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStoreWrite, CategoryIO, SeverityWarning, true},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeModelTimeout, CategoryModel, SeverityWarning, true},
		{ErrCodeDimensionMismatch, CategoryModel, SeverityWarning, false},
		{ErrCodePathDenied, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestAmanError_Is_MatchesByCodeThroughWrapping(t *testing.T) {
	// Given: a coded error wrapped with fmt.Errorf
	err := fmt.Errorf("index pass: %w", New(ErrCodeStoreBusy, "database is locked", nil))

	// Then: errors.Is matches a sentinel with the same code
	assert.True(t, stderrors.Is(err, New(ErrCodeStoreBusy, "", nil)))
	assert.False(t, stderrors.Is(err, New(ErrCodeStoreOpen, "", nil)))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrCodeStoreBusy, GetCode(err))
}

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeContainerAbsent, "container \"Work\" not found", nil).
		WithSuggestion("run 'amanfind containers list'")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: container \"Work\" not found")
	assert.Contains(t, out, "Hint: run 'amanfind containers list'")
	assert.Contains(t, out, "Code: ERR_104_CONTAINER_NOT_FOUND")
	assert.Equal(t, "Error: plain\n", FormatForCLI(stderrors.New("plain")))
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return StoreError("busy", nil)
		}
		return nil
	}

	// When: retrying with three retries
	err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1}, fn)

	// Then: it succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAndWrapsLastError(t *testing.T) {
	last := stderrors.New("still failing")
	calls := 0

	err := Retry(context.Background(), RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 2}, func() error {
		calls++
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, ShouldRetry: IsRetryable}

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return ValidationError("bad row", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAfterMaxFailuresAndRecovers(t *testing.T) {
	// Given: a breaker with a controllable clock
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("ollama", WithMaxFailures(2), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	boom := stderrors.New("connection refused")

	// When: two calls fail
	_ = cb.Execute(func() error { return boom })
	_ = cb.Execute(func() error { return boom })

	// Then: the circuit is open and short-circuits
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	// When: the reset timeout elapses and a probe succeeds
	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
	v, err := Call(cb, func() (int, error) { return 7, nil })

	// Then: the circuit closes again
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, StateClosed, cb.State())
}
