package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error payload returned by every route.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code string) {
	JSON(w, status, ErrorBody{Error: code})
}

// WriteError renders err. AppErrors keep their code and status; anything else is a 500.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		JSONError(w, http.StatusInternalServerError, CodeInternal)
		return
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	JSONError(w, status, appErr.Code)
}
