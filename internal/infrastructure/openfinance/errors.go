package openfinance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnauthorized is matched by any 401/403 from the provider.
	ErrUnauthorized = errors.New("open finance provider rejected the access token")
	// ErrInvalidPayment is returned before any call when a payment request is malformed.
	ErrInvalidPayment = errors.New("invalid payment request")
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("open finance %s %s returned %d", e.Method, e.Path, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsServerError makes 5xx responses retryable.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// errorBody covers both the Open Banking `errors` array and flat `error/message` bodies.
type errorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = truncate(strings.TrimSpace(string(body)), 200)
		return apiErr
	}

	switch {
	case len(eb.Errors) > 0:
		apiErr.Code = eb.Errors[0].Code
		apiErr.Message = eb.Errors[0].Detail
		if apiErr.Message == "" {
			apiErr.Message = eb.Errors[0].Title
		}
	default:
		apiErr.Code = eb.Error
		apiErr.Message = eb.Message
		if apiErr.Message == "" {
			apiErr.Message = eb.ErrorDescription
		}
	}
	return apiErr
}

// truncate keeps at most n bytes of s, backing off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
