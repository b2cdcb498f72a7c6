package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies recoverable failures by their recovery policy.
type FailureKind string

const (
	// FailureResolution: a version or ref could not be mapped to a commit.
	// Recorded in the result, processing continues.
	FailureResolution FailureKind = "resolution"
	// FailureOperational: a clone/checkout/diff invocation failed. The
	// (issue, version) unit is skipped, siblings proceed.
	FailureOperational FailureKind = "operational"
	// FailureConfiguration: no repository mapping for a project, or the
	// local path is missing. Fatal for that project's batch only.
	FailureConfiguration FailureKind = "configuration"
	// FailureParse: a malformed diff or hunk header. Local to the offending
	// chunk.
	FailureParse FailureKind = "parse"
)

// Failure is a classified error. Callers branch on Kind with errors.As
// rather than relying on a cross-cutting wrapper.
type Failure struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s failure: %s", f.Kind, f.Op)
	}
	return fmt.Sprintf("%s failure: %s: %v", f.Kind, f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err as a classified failure for operation op.
func NewFailure(kind FailureKind, op string, err error) *Failure {
	return &Failure{Kind: kind, Op: op, Err: err}
}

// FailureIs reports whether err carries the given failure kind.
func FailureIs(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
