// Package keeper implements the off-chain scheduling loop that drives the
// on-chain validator-history and steward programs: a single-threaded tick
// clock that fires a priority-ordered set of operations at configurable
// intervals, preempting on epoch advance (spec §4.7, §5).
package keeper

import "errors"

// Sentinel errors classifying why a tick or operation failed (spec §7).
var (
	// ErrOperationFailed wraps the non-transient errors an OperationFunc
	// returns (transient ones are marked with MarkRetryable instead). Any
	// error from an operation, wrapped or not, stops the tick's drain,
	// but the scheduler itself keeps running.
	ErrOperationFailed = errors.New("keeper: operation failed")

	// ErrEpochPollFailed means the RPC call used to detect epoch
	// advance did not succeed; the tick aborts without running any
	// operation, since every due-interval decision depends on a known
	// current epoch.
	ErrEpochPollFailed = errors.New("keeper: failed to poll epoch info")

	// ErrNoOperations means a Scheduler was constructed with an empty
	// operation set, which can never make progress.
	ErrNoOperations = errors.New("keeper: no operations registered")

	// ErrUnknownOperation is returned when a caller references an
	// OperationKind the scheduler has no registered Operation for.
	ErrUnknownOperation = errors.New("keeper: unknown operation kind")
)

// Retryable reports whether err represents a transient failure (network
// hiccup, RPC timeout, account-not-yet-created) worth retrying on the next
// tick rather than escalating. The scheduler does not consult it: any
// operation error stops the tick's drain, and the scheduler itself keeps
// running. It only records how an operation classified its own error.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var re retryableError
	return errors.As(err, &re)
}

type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

// MarkRetryable wraps err so Retryable reports true for it. Operations use
// this for failures expected to resolve on their own (RPC timeout, account
// not yet rent-exempt, transaction not yet confirmed).
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}
