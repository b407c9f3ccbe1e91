// Package httpx provides JSON response helpers shared by all HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the uniform error envelope returned by the API.
type ErrorBody struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an error envelope with the given status code.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// ValidationError sends a 400 with a structured issue list.
func ValidationError(w http.ResponseWriter, issues []string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Error: "Validation failed", Issues: issues})
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
