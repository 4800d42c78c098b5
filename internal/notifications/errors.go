package notifications

import "errors"

// Repository errors.
var (
	ErrQueueItemNotFound = errors.New("notification queue item not found")
)

// Delivery errors.
var (
	ErrNoSender    = errors.New("no sender for channel type")
	ErrEmptyTarget = errors.New("notification target is empty")
)

// RetryableError tells the worker whether a failed delivery is worth retrying.
// Senders wrap transport failures in it; unwrapped errors are retried.
type RetryableError struct {
	Err       error
	Retryable bool
}

// NewRetryableError marks err as transient.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError marks err as permanent.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the delivery may be attempted again.
func (e *RetryableError) IsRetryable() bool { return e.Retryable }

// isRetryable consults the first error in the chain that classifies itself.
func isRetryable(err error) bool {
	var c interface{ IsRetryable() bool }
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return true
}
