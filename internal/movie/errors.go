package movie

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"storyreel/internal/services"
)

// APIError is a non-2xx backend response with its user-facing message.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
}

// Unwrap classifies the status into the service error taxonomy.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return services.ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return services.ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity:
		return services.ErrValidation
	default:
		return services.ErrTransient
	}
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	detail := extractDetail(body)
	return &APIError{
		Method:  method,
		Path:    path,
		Status:  status,
		Message: statusMessage(status, detail),
		Detail:  detail,
	}
}

func statusMessage(status int, detail string) string {
	switch status {
	case http.StatusUnauthorized:
		return "session expired, sign in again"
	case http.StatusForbidden:
		return "no permission to access this resource"
	case http.StatusNotFound:
		return "requested resource does not exist"
	case http.StatusUnprocessableEntity:
		if detail != "" {
			return detail
		}
		return "invalid request parameters"
	case http.StatusInternalServerError:
		return "internal server error, try again later"
	default:
		if detail != "" {
			return detail
		}
		return fmt.Sprintf("request failed (%d)", status)
	}
}

// extractDetail reads a FastAPI-style error body: detail is either a string
// or a list of {msg} validation entries.
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if m := strings.TrimSpace(item.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, ", ")
	}
	return ""
}

// transportError classifies a failed round trip.
func transportError(method, path string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, "backend", method+" "+path, "request timed out, check the network connection", err)
	}
	return services.Wrap(services.ErrTransient, "backend", method+" "+path, "network error, check the network connection", err)
}
