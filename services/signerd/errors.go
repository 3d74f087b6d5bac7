package signerd

import (
	"encoding/json"
	"errors"
	"net/http"

	"eragonauth/crypto"
	"eragonauth/ledger"
	"eragonauth/message"
	"eragonauth/verifier"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func statusFor(err error) int {
	var fieldErr *message.FieldError
	switch {
	case errors.Is(err, message.ErrUnknownKind):
		return http.StatusNotFound
	case errors.As(err, &fieldErr),
		errors.Is(err, message.ErrMissingField),
		errors.Is(err, message.ErrFieldType),
		errors.Is(err, crypto.ErrInvalidSignature),
		errors.Is(err, ledger.ErrImpliedMismatch),
		errors.Is(err, ledger.ErrUnknownExtra):
		return http.StatusBadRequest
	case errors.Is(err, verifier.ErrStaleSignature), errors.Is(err, verifier.ErrReplayedSignature):
		return http.StatusConflict
	case errors.Is(err, verifier.ErrSignerMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var fieldErr *message.FieldError
	if errors.As(err, &fieldErr) {
		resp.Field = fieldErr.Field
	}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
