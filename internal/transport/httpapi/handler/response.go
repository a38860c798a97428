package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/avoronkov/hearthshare/internal/shared/errors"
)

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondAppError maps application error codes to HTTP status codes.
// Store-level failures surface as an opaque server error.
func respondAppError(w http.ResponseWriter, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch appErr.Code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeBadRequest, apperrors.ErrCodeImmutableRecord:
		respondWithError(w, http.StatusBadRequest, appErr.Message)
	case apperrors.ErrCodeNotFound:
		respondWithError(w, http.StatusNotFound, appErr.Message)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
