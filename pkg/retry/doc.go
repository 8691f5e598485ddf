// Package retry provides exponential backoff retry logic shared by the
// connection manager and the command executor.
//
// The backoff law is attempt-indexed: after failed attempt n (1-indexed) the
// delay is BaseDelay × Multiplier^n, capped at MaxDelay. With a 1s base and
// multiplier 2 the sequence is 2s, 4s, 8s.
//
// Basic usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return adapter.Connect(ctx)
//	})
//
// Failures that retrying cannot fix are wrapped so the loop stops at once:
//
//	return retry.NonRetryable(errors.ErrBackendUnavailable)
//
// Every retryable failure is logged with the attempt number and the computed
// delay before sleeping. All waits respect context cancellation.
//
// The package is intentionally minimal: no jitter, no circuit breaker, no
// error classification. The caller decides what is retryable by wrapping with
// NonRetryable; see the errors package for the policy predicates.
package retry
