// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/tasks"
	"github.com/jeranaias/wiserchat/internal/upstream"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// ErrorBody is the payload of every error response and SSE error event.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// errorEnvelope wraps ErrorBody as {"error": {...}}.
type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// errBadRequest marks client mistakes found while decoding a request.
var errBadRequest = errors.New("bad request")

// classify maps an error to a status and body. Upstream API errors are
// relayed as the service reported them.
func classify(err error) (int, ErrorBody) {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, ErrorBody{
			Message: apiErr.Message,
			Type:    apiErr.Type,
			Param:   apiErr.Param,
			Code:    apiErr.Code,
		}
	}

	var statusErr *upstream.StatusError
	var netErr *upstream.NetworkError
	switch {
	case errors.As(err, &statusErr):
		return statusErr.Status, ErrorBody{Message: err.Error(), Type: "upstream_error"}
	case errors.As(err, &netErr),
		errors.Is(err, upstream.ErrEmptyResponseBody),
		errors.Is(err, upstream.ErrMalformedResponse),
		errors.Is(err, upstream.ErrResponseTooLarge):
		return upstream.HTTPStatus(err), ErrorBody{Message: err.Error(), Type: "upstream_error"}

	case errors.Is(err, tasks.ErrBusy):
		return http.StatusConflict, ErrorBody{Message: err.Error(), Type: "conflict"}

	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, workspace.ErrFolderNotFound),
		errors.Is(err, workspace.ErrPromptNotFound):
		return http.StatusNotFound, ErrorBody{Message: err.Error(), Type: "not_found"}

	case errors.Is(err, errBadRequest),
		errors.Is(err, workspace.ErrEmptyName),
		errors.Is(err, workspace.ErrWrongFolderType),
		errors.Is(err, workspace.ErrInvalidImport),
		errors.Is(err, forwarder.ErrInvalidMessage),
		errors.Is(err, forwarder.ErrNothingToRegenerate),
		errors.Is(err, forwarder.ErrNotEditable),
		errors.Is(err, model.ErrInvalidFolderType):
		return http.StatusBadRequest, ErrorBody{Message: err.Error(), Type: "invalid_request_error"}
	}

	return http.StatusInternalServerError, ErrorBody{Message: "internal error", Type: "server_error"}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErrorBody writes {"error": {...}} with the given fields.
func writeErrorBody(w http.ResponseWriter, status int, message, errType, code string) {
	writeJSON(w, status, errorEnvelope{Error: ErrorBody{Message: message, Type: errType, Code: code}})
}

// writeError classifies err and writes it.
func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, errorEnvelope{Error: body})
}
