package server

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type bindMessages map[string]map[string]string

// bindJSON decodes and validates a request body, writing a 400 with a
// field-specific message on failure.
func bindJSON(w http.ResponseWriter, r *http.Request, req any, messages bindMessages, fallback string) bool {
	if err := readJSON(r.Body, req); err != nil {
		writeError(w, http.StatusBadRequest, fallback)
		return false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, resolveBindError(err, messages, fallback))
		return false
	}
	return true
}

func resolveBindError(err error, messages bindMessages, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			if fieldMsgs, ok := messages[verr.Field()]; ok {
				if msg, ok := fieldMsgs[verr.Tag()]; ok {
					return msg
				}
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "invalid request"
}
