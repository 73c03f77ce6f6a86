// Package fault defines the error taxonomy shared by the validation pipeline.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Recovery decisions are made by looking up the kind.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindParsing        Kind = "parsing"
	KindPermission     Kind = "permission"
	KindNotFound       Kind = "not_found"
	KindAPIUnavailable Kind = "api_unavailable"
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindQuota          Kind = "quota"
	KindConfiguration  Kind = "configuration"
	KindInternal       Kind = "internal"
)

// Error is a classified failure with structured context for diagnostics.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e with key=value added to its context.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is checks if err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Retryable reports whether failures of this kind are transient.
func Retryable(kind Kind) bool {
	switch kind {
	case KindAPIUnavailable, KindNetwork, KindTimeout, KindQuota, KindInternal:
		return true
	default:
		return false
	}
}

// ContextOf returns the structured context of the first *Error in err's chain.
func ContextOf(err error) map[string]any {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Context
	}
	return nil
}
