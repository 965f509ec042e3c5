package netx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse represents error responses
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a JSON response with the specified status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response
func WriteError(w http.ResponseWriter, statusCode int, message string, err error) error {
	response := ErrorResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	return WriteJSON(w, statusCode, response)
}

// WriteMethodNotAllowed writes a method not allowed response
func WriteMethodNotAllowed(w http.ResponseWriter, allowed ...string) error {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	return WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// WriteNotFound writes a not found response
func WriteNotFound(w http.ResponseWriter) error {
	return WriteError(w, http.StatusNotFound, "Not found", nil)
}

// WriteUnauthorized writes an unauthorized response with a basic auth challenge
func WriteUnauthorized(w http.ResponseWriter, realm string) error {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	return WriteError(w, http.StatusUnauthorized, "Unauthorized", nil)
}

// WriteInternalServerError writes an internal server error response
func WriteInternalServerError(w http.ResponseWriter, message string, err error) error {
	return WriteError(w, http.StatusInternalServerError, message, err)
}
