package safe

import (
	"errors"
	"fmt"
)

const (
	KindInvalidInput    = "invalid_input"
	KindInvalidRound    = "invalid_round"
	KindProbabilityMass = "probability_mass"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
	ErrInvalidRound    = &Error{Kind: KindInvalidRound}
	ErrProbabilityMass = &Error{Kind: KindProbabilityMass}
)

type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NewError builds a modeling error of the given kind.
func NewError(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalidInput(format string, args ...any) error {
	return NewError(KindInvalidInput, format, args...)
}

func invalidRound(format string, args ...any) error {
	return NewError(KindInvalidRound, format, args...)
}

func probabilityMass(format string, args ...any) error {
	return NewError(KindProbabilityMass, format, args...)
}

// KindOf returns the error kind carried by err, or "" when err is not a
// modeling error.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
