package orchestrator

import "fmt"

// ErrKind is the typed sentinel taxonomy of §7, wrapped with
// fmt.Errorf("...: %w", ...) at the point of failure rather than
// carried as a distinct error package, matching InMAP's plain-stdlib
// error style.
type ErrKind string

const (
	ErrCloudNotFound         ErrKind = "cloud_not_found"
	ErrCRSMissing            ErrKind = "crs_missing"
	ErrUnsupportedLASVersion ErrKind = "unsupported_las_version"
	ErrDependencyFailed      ErrKind = "dependency_failed"
	ErrEmptyFootprint        ErrKind = "empty_footprint"
	ErrFootprintDegenerate   ErrKind = "footprint_degenerate"
	ErrExternalFailure       ErrKind = "external_failure"
	ErrIOTransient           ErrKind = "io_transient"
	ErrNodeTimeout           ErrKind = "node_timeout"
	ErrCancelled             ErrKind = "cancelled"
	ErrInvariantViolation    ErrKind = "invariant_violation"
	ErrUnsupportedAlgorithm  ErrKind = "unsupported_algorithm"
	ErrInsufficientPoints    ErrKind = "insufficient_points"
	ErrEmptyOutput           ErrKind = "empty_output"
)

// kindError wraps a node's Kind and ErrKind into one error whose message
// embeds both, letting callers log.Printf("%v") it and match the ErrKind
// textually (see isRetryable); ErrKind is not an error value, so
// errors.Is/As cannot match it. A non-nil cause stays reachable through
// %w, same as the rest of this module's plain %w-wrapped error style.
func kindError(kind Kind, errKind ErrKind, detail string, cause error) error {
	if cause != nil {
		return fmt.Errorf("orchestrator: %s: %s: %s: %w", kind, errKind, detail, cause)
	}
	return fmt.Errorf("orchestrator: %s: %s: %s", kind, errKind, detail)
}

// retryable reports whether a failure of this ErrKind should be retried
// at node granularity (bounded attempts, default 2, per §4.9).
func (k ErrKind) retryable() bool {
	switch k {
	case ErrExternalFailure, ErrIOTransient:
		return true
	default:
		return false
	}
}
