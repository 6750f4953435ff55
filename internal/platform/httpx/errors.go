// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("malformed request")
)

// StatusFor maps an error kind to its HTTP status family.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindUnbalancedEntry, shared.KindInvalidLedgerType:
		return http.StatusUnprocessableEntity
	case shared.KindEntryLocked, shared.KindAlreadyMigrated, shared.KindAlreadyProcessed, shared.KindInsufficientQuantity:
		return http.StatusConflict
	case shared.KindMissingLedgerMapping:
		return http.StatusFailedDependency
	case shared.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Persistence failures never leak their detail.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "", "")
		return
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error(), string(shared.KindValidation))
		return
	case errors.As(err, &verrs):
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verrs.Error(), string(shared.KindValidation))
		return
	}
	kind := shared.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "", string(kind))
		return
	}
	Problem(w, status, http.StatusText(status), err.Error(), string(kind))
}
