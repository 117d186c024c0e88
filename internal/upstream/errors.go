// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyResponseBody indicates a successful status with no answer to stream.
	ErrEmptyResponseBody = errors.New("upstream returned an empty response body")

	// ErrMalformedResponse indicates a successful status with an unparseable body.
	ErrMalformedResponse = errors.New("upstream returned a malformed response")

	// ErrResponseTooLarge indicates the body exceeded the configured size limit.
	ErrResponseTooLarge = errors.New("upstream response exceeded size limit")
)

// NetworkError wraps a failure to send the request or read the response.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a structured error returned by the answer service.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
	Status  int    `json:"status"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error [%s] %s (HTTP %d): %s", e.Code, e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream error %s (HTTP %d): %s", e.Type, e.Status, e.Message)
}

// StatusError is a non-200 response without a structured error body.
type StatusError struct {
	Status     int
	StatusText string
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream returned HTTP %d %s: %s", e.Status, e.StatusText, e.Body)
	}
	return fmt.Sprintf("upstream returned HTTP %d %s", e.Status, e.StatusText)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status == http.StatusTooManyRequests
	}
	return false
}

// HTTPStatus returns the status an error should map to when relayed to a
// browser client.
func HTTPStatus(err error) int {
	var apiErr *APIError
	var statusErr *StatusError
	var netErr *NetworkError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status
	case errors.As(err, &statusErr):
		return statusErr.Status
	case errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.Is(err, ErrEmptyResponseBody), errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrResponseTooLarge):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
