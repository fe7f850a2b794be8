package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"trip-planner/internal/domain"
)

// FallbackMessage is shown when the backend gave no usable message
const FallbackMessage = "Une erreur est survenue"

// APIError is a non-2xx backend response
type APIError struct {
	StatusCode int
	Message    string
	// Fields holds per-field validation messages, when the backend sent any
	Fields map[string]string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is maps backend statuses onto the domain sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

// StatusCode returns the backend status carried by err, 0 when err is not an APIError
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// NetworkMessage is shown when the backend could not be reached
const NetworkMessage = "Impossible de contacter le serveur"

// Message turns err into the string stored as a component's last error:
// the backend's own message, the local validation summary, or a generic
// network message.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetworkMessage
	}
	return err.Error()
}

// parseAPIError builds an APIError from a failed response body. The message
// comes from the error, detail or message field, then from the first field
// error, then falls back to FallbackMessage.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: FallbackMessage}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	for _, key := range []string{"error", "detail", "message"} {
		if msg := firstString(payload[key]); msg != "" {
			apiErr.Message = msg
			break
		}
	}

	fields := make(map[string]string)
	for key, raw := range payload {
		switch key {
		case "error", "detail", "message", "code", "status":
			continue
		}
		if msg := firstString(raw); msg != "" {
			fields[key] = msg
		}
	}
	if len(fields) > 0 {
		apiErr.Fields = fields
		if apiErr.Message == FallbackMessage {
			apiErr.Message = joinFieldMessages(fields)
		}
	}

	return apiErr
}

// firstString reads a string or the first string of a list
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if s := firstString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func joinFieldMessages(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "non_field_errors" {
			parts = append(parts, fields[k])
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}
