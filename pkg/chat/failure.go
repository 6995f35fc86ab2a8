package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

type FailureKind string

const (
	// PersistedStateCorrupt is recovered locally and only ever logged.
	PersistedStateCorrupt FailureKind = "PersistedStateCorrupt"
	RequestFailed         FailureKind = "RequestFailed"
	ListFailed            FailureKind = "ListFailed"
	UploadFailed          FailureKind = "UploadFailed"
	DeleteFailed          FailureKind = "DeleteFailed"
)

// Failure is the outcome reported to callers when an operation did not succeed.
// Message is meant for display; Err keeps the underlying cause.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func NewFailure(kind FailureKind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil || f.Err.Error() == f.Message {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf returns the failure kind carried by err, or "" if err is not a Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the display message of a Failure, or err.Error() otherwise.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}
