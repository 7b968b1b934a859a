// Package httputil holds the JSON response helpers shared by the admin API
// and the mock handler's not-found response.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodySize bounds request bodies read by DecodeJSON.
const DefaultMaxBodySize = 10 << 20

// Error codes carried in ErrorResponse.Error.
const (
	CodeBadRequest      = "bad_request"
	CodeInvalidJSON     = "invalid_json"
	CodeBodyTooLarge    = "body_too_large"
	CodeValidationError = "validation_error"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes data as JSON with the given status. A nil data writes only the status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// WriteErrorWithDetails writes an ErrorResponse carrying extra detail, such as field errors.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

// DecodeError is returned by DecodeJSON. Status and Code describe the response to send.
type DecodeError struct {
	Status int
	Code   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ReadBody reads at most maxBytes of r's body. maxBytes <= 0 uses DefaultMaxBodySize.
func ReadBody(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &DecodeError{Status: http.StatusRequestEntityTooLarge, Code: CodeBodyTooLarge, Err: err}
		}
		return nil, &DecodeError{Status: http.StatusBadRequest, Code: CodeBadRequest, Err: err}
	}
	return body, nil
}

// DecodeJSON reads a size-limited body and unmarshals it into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	body, err := ReadBody(w, r, maxBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &DecodeError{Status: http.StatusBadRequest, Code: CodeInvalidJSON, Err: err}
	}
	return nil
}

// WriteDecodeError renders err from DecodeJSON or ReadBody.
func WriteDecodeError(w http.ResponseWriter, err error) {
	var de *DecodeError
	if errors.As(err, &de) {
		WriteError(w, de.Status, de.Code, de.Err.Error())
		return
	}
	WriteError(w, http.StatusBadRequest, CodeInvalidJSON, err.Error())
}
