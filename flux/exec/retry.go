package exec

import "time"

// retryDelay computes the sleep before attempt i (0-based) of maxRetries,
// honoring the node's backoff flag (linear backoff: i*delay). Grounded on
// the teacher's handleRetry (runtime/executor.go), which computes the
// identical `time.Duration(i*step.Retry.Delay) * time.Millisecond` when
// backoff is set.
func retryDelay(i, delayMillis int, backoff bool) time.Duration {
	if backoff {
		return time.Duration(i*delayMillis) * time.Millisecond
	}
	return time.Duration(delayMillis) * time.Millisecond
}
