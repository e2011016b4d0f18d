package media

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a merge produced no artifact.
type FailureKind string

const (
	FailureEmptyInput      FailureKind = "empty-input"
	FailureUnsupportedType FailureKind = "unsupported-type"
	FailureDecode          FailureKind = "decode-failure"
	FailureEncode          FailureKind = "encode-failure"
)

// Failure is the error returned by Engine.Process.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserError reports whether the failure is caused by what the user queued
// rather than by a codec or the filesystem.
func (f *Failure) UserError() bool {
	return f.Kind == FailureEmptyInput || f.Kind == FailureUnsupportedType
}

func fail(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// FailureKindOf extracts the FailureKind from err, or "" if err is not a *Failure.
func FailureKindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
