package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"rollbook/internal/ledger"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeLedgerError maps the ledger error taxonomy onto HTTP statuses. The
// error text is surfaced verbatim; user-facing translation is the
// caller's concern, not the managers'.
func writeLedgerError(w http.ResponseWriter, err error) {
	var validation *ledger.ValidationError
	var conflict *ledger.ConflictError
	var notFound *ledger.NotFoundError
	var destructive *ledger.DestructiveChangeError
	var unavailable *ledger.UnavailableError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.As(err, &destructive):
		writeError(w, http.StatusConflict, destructive.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusServiceUnavailable, unavailable.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
