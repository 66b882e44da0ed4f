package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/joelkehle/safe-negotiator/internal/safe"
	"github.com/joelkehle/safe-negotiator/internal/termstore"
)

const (
	CodeInvalidInput    = safe.KindInvalidInput
	CodeInvalidRound    = safe.KindInvalidRound
	CodeProbabilityMass = safe.KindProbabilityMass
	CodeNotFound        = "not_found"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidJSON(err error) *Error {
	return &Error{Code: CodeInvalidInput, Message: "invalid json: " + err.Error(), Status: http.StatusBadRequest}
}

func invalidQuery(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

// toAPIError maps domain errors onto wire codes and statuses.
func toAPIError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, termstore.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error(), Status: http.StatusNotFound}
	}
	switch safe.KindOf(err) {
	case safe.KindInvalidInput:
		return &Error{Code: CodeInvalidInput, Message: err.Error(), Status: http.StatusBadRequest}
	case safe.KindInvalidRound:
		return &Error{Code: CodeInvalidRound, Message: err.Error(), Status: http.StatusBadRequest}
	case safe.KindProbabilityMass:
		return &Error{Code: CodeProbabilityMass, Message: err.Error(), Status: http.StatusUnprocessableEntity}
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Status: http.StatusInternalServerError}
}
