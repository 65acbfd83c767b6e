package synthesis

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ServiceError describes a failed call to the speech service: a non-success
// status, or a transport-level failure (including request timeout expiry).
type ServiceError struct {
	StatusCode int
	Status     string
	Detail     string
	Err        error
}

// Error formats the failure with whatever detail the service provided.
func (e *ServiceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("speech service error (%s): %s", e.Status, e.Detail)
	}

	if e.Err != nil {
		return fmt.Sprintf("speech service unreachable: %v", e.Err)
	}

	return fmt.Sprintf("speech service error (%s)", e.Status)
}

// Unwrap exposes the underlying transport error, if any.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// transportError wraps a failed round trip as a ServiceError.
func transportError(target string, err error) *ServiceError {
	return &ServiceError{
		StatusCode: 0,
		Status:     "",
		Detail:     "",
		Err:        fmt.Errorf("request to %s failed: %w", target, err),
	}
}

// statusError builds a ServiceError from a non-success response, extracting
// a human-readable reason from the body when one is present.
func statusError(resp *http.Response) *ServiceError {
	body, _ := io.ReadAll(resp.Body)

	return &ServiceError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Detail:     extractDetail(body),
		Err:        nil,
	}
}

// errorBody matches the service's failure body shape:
// {"detail": "reason"} or {"detail": [{"msg": "reason"}, ...]}.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// extractDetail pulls the failure reason out of an error response body.
// An empty string means the body carried no recognizable detail; callers
// then fall back to the status line text.
func extractDetail(body []byte) string {
	var parsed errorBody

	err := json.Unmarshal(body, &parsed)
	if err != nil || len(parsed.Detail) == 0 {
		return ""
	}

	var message string
	if json.Unmarshal(parsed.Detail, &message) == nil {
		return message
	}

	var items []struct {
		Msg string `json:"msg"`
	}

	if json.Unmarshal(parsed.Detail, &items) == nil {
		messages := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				messages = append(messages, item.Msg)
			}
		}

		return strings.Join(messages, "; ")
	}

	return ""
}
