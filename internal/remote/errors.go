package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoValues is returned when an input object has nothing to ingest.
var ErrNoValues = errors.New("input object needs at least one value")

// ErrNotObject is returned when a retrieved payload is not a JSON object.
var ErrNotObject = errors.New("response is not a JSON object")

// Error is a non-2xx answer from the service. Detail carries the service's
// own explanation when it sent one.
type Error struct {
	Op       string
	Method   string
	Endpoint string
	Status   int
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s %s returned %d: %s", e.Op, e.Method, e.Endpoint, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s %s returned %d", e.Op, e.Method, e.Endpoint, e.Status)
}

// TransportError is a failure to complete the HTTP round trip at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// detailFrom extracts the "detail" field of an error payload. A structured
// detail (validation errors, for example) is returned as compact JSON.
func detailFrom(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(payload.Detail) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload.Detail); err != nil {
		return string(payload.Detail)
	}
	return buf.String()
}

// errorPayload renders err as the JSON response recorded for an exchange that
// never got a usable answer.
func errorPayload(err error) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return b
}
