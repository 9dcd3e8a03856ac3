package orchestrator

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// NodeStatus is one point in a node's PENDING → RUNNING → (DONE | FAILED)
// lifecycle, with BLOCKED standing in for "never ran because a
// dependency failed" (§4.9's state machine).
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusRunning NodeStatus = "running"
	StatusDone    NodeStatus = "done"
	StatusFailed  NodeStatus = "failed"
	StatusBlocked NodeStatus = "blocked"
)

// NodeResult is one DAG node's outcome, returned as part of a
// BuildReport so a caller can see exactly which products succeeded,
// were skipped via the fingerprint cache, or failed and why.
type NodeResult struct {
	Kind        Kind
	Status      NodeStatus
	Fingerprint string
	Cached      bool
	Attempts    int
	Err         error
}

// DefaultNodeTimeout bounds a single node's build, so one stuck PDAL
// invocation can't stall an entire region (§4.9: "default 10 minutes").
const DefaultNodeTimeout = 10 * time.Minute

// DefaultMaxRetries bounds how many additional attempts a retryable
// failure gets beyond the first (§4.9: "bounded retries, default 2").
const DefaultMaxRetries = 2

// runNode runs kind's producer under a per-node deadline, retrying
// retryable failures (ErrExternalFailure, ErrIOTransient) with
// exponential backoff up to maxRetries additional attempts — the same
// backoff.RetryNotify idiom sr.go uses around its job-submission calls,
// bounded here with backoff.WithMaxRetries since node retries must not
// run forever the way sr.go's unbounded job resubmission does.
func runNode(parent context.Context, bc *buildContext, kind Kind, timeout time.Duration, maxRetries uint64) (int, error) {
	if timeout <= 0 {
		timeout = DefaultNodeTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	producer := registry[kind].producer

	attempts := 0
	op := func() error {
		attempts++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(kindError(kind, ErrCancelled, "node context ended before running", err))
		}
		err := producer(ctx, bc)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	err := backoff.RetryNotify(op, b, func(error, time.Duration) {})
	if ctx.Err() == context.DeadlineExceeded && err != nil {
		err = kindError(kind, ErrNodeTimeout, "node exceeded its deadline", err)
	}
	return attempts, err
}

// isRetryable inspects the ErrKind family a producer's error carries,
// matched textually since this module's errors are plain %w-wrapped
// strings rather than a typed error hierarchy (matching kindError's own
// style) — every kindError call embeds its ErrKind's string verbatim,
// so a retryable kind's name always appears in err.Error().
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, k := range []ErrKind{ErrExternalFailure, ErrIOTransient} {
		if !k.retryable() {
			continue
		}
		if containsErrKind(err.Error(), k) {
			return true
		}
	}
	return false
}

func containsErrKind(msg string, k ErrKind) bool {
	return len(msg) >= len(string(k)) && indexOf(msg, string(k)) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
