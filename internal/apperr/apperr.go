package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindCapacityExceeded Kind = "CAPACITY_EXCEEDED"
	KindOverlap          Kind = "SCHEDULE_OVERLAP"
	KindUnavailable      Kind = "TECHNICIAN_UNAVAILABLE"
	KindConflict         Kind = "INVALID_TRANSITION"
	KindStore            Kind = "STORE_UNAVAILABLE"
)

// Error is the typed failure returned across package boundaries. Op names
// the operation that failed, e.g. "schedules.create".
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op, message string) error {
	return New(KindValidation, op, message)
}

func NotFound(op, message string) error {
	return New(KindNotFound, op, message)
}

// KindOf returns the kind of the outermost *Error in the chain, or "" for
// untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
