// Package httputil holds the JSON response helpers shared by the mock
// services and the admin API, so every error body has the same shape.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBodyLimit caps request bodies read by DecodeJSON.
const DefaultBodyLimit = 64 << 10

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes data and writes it with the given status. A nil data
// writes only the status. When data cannot be encoded the client gets a
// 500 instead of a truncated body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	if data == nil {
		w.WriteHeader(status)
		return
	}
	buf, err := json.Marshal(data)
	if err != nil {
		status = http.StatusInternalServerError
		buf, _ = json.Marshal(ErrorBody{Error: "encode_error", Message: err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(buf, '\n'))
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Error: code, Message: message})
}

func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteBadRequest(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusBadRequest, code, message)
}

func WriteNotFound(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusNotFound, code, message)
}

func WriteInternalError(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusInternalServerError, code, message)
}

func WriteServiceUnavailable(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusServiceUnavailable, code, message)
}

func WriteTooManyRequests(w http.ResponseWriter, code, message string) {
	WriteError(w, http.StatusTooManyRequests, code, message)
}

// DecodeJSON reads a single JSON value from the request body into v,
// reading at most limit bytes (DefaultBodyLimit when limit <= 0).
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body holds more than one JSON value")
	}
	return nil
}
