// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upstream is the client for the external answer service.
//
// The service takes a single text query and answers with one JSON payload:
//
//	POST {endpoint}
//	Content-Type: application/json
//
//	{"query": "..."}
//
//	200 {"answer": "..."}
//	4xx/5xx {"error": {"message": "...", "type": "...", "param": null, "code": "..."}}
//
// Each Send makes exactly one outbound request. Retries are left to callers.
//
// # Errors
//
//   - *NetworkError: the request could not be sent or its body not read
//   - *APIError: a non-200 status with a structured error object
//   - *StatusError: a non-200 status without one
//   - ErrEmptyResponseBody: a 200 status with nothing to stream
//   - ErrMalformedResponse: a 200 status whose body is not a JSON answer
package upstream
