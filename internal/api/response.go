package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/obelisk-core/obelisk/internal/failure"
)

type Response struct {
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Kind    failure.Kind `json:"kind,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Data: data})
}

func JSONErrorKind(w http.ResponseWriter, status int, kind failure.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{Error: message, Kind: kind})
}

// DecodeJSON decodes the request body into v, rejecting unknown fields.
// An empty body, declared or chunked, leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return NewBadRequestError("invalid JSON body: " + err.Error())
	}
	return nil
}
