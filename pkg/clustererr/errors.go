// Package clustererr carries the error taxonomy from spec.md §7 as a typed
// result instead of as distinct exception classes, so callers branch on an
// enumerated Kind rather than on a thrown value.
package clustererr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories a caller needs to distinguish.
type Kind int

const (
	// KindConfigInconsistent is cluster-fatal at join; never recovered.
	KindConfigInconsistent Kind = iota
	// KindLeadershipStale means the caller must re-route to the new leader.
	KindLeadershipStale
	// KindTimeout means forwarding exhausted a group's nodes or a quorum
	// wait expired.
	KindTimeout
	// KindPathNotExist may trigger an auto-create-and-retry.
	KindPathNotExist
	// KindStorageGroupNotSet triggers a single leader-sync-then-retry.
	KindStorageGroupNotSet
	// KindConsistencyCheckFailed is surfaced with the underlying message.
	KindConsistencyCheckFailed
	// KindCompactionIO is rolled back within the task and logged; it must
	// not poison the scheduler.
	KindCompactionIO
	// KindRecoveryLogCorruption means the log is abandoned and any partial
	// target is deleted; sources remain untouched.
	KindRecoveryLogCorruption
)

func (k Kind) String() string {
	switch k {
	case KindConfigInconsistent:
		return "config-inconsistent"
	case KindLeadershipStale:
		return "leadership-stale"
	case KindTimeout:
		return "timeout"
	case KindPathNotExist:
		return "path-not-exist"
	case KindStorageGroupNotSet:
		return "storage-group-not-set"
	case KindConsistencyCheckFailed:
		return "consistency-check-failed"
	case KindCompactionIO:
		return "compaction-io-failure"
	case KindRecoveryLogCorruption:
		return "recovery-log-corruption"
	default:
		return "unknown"
	}
}

// ClusterError wraps a cause with an enumerated kind.
type ClusterError struct {
	Kind  Kind
	Cause error
}

func (e *ClusterError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *ClusterError) Unwrap() error {
	return e.Cause
}

// New builds a ClusterError of the given kind wrapping cause.
func New(kind Kind, cause error) *ClusterError {
	return &ClusterError{Kind: kind, Cause: cause}
}

// Newf builds a ClusterError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *ClusterError {
	return &ClusterError{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Is reports whether err is a ClusterError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *ClusterError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
