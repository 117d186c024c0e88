// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the wiserchat HTTP API and browser UI.
//
// Endpoints:
//   - GET  /                          - browser UI (assets under /static/)
//   - GET  /health                    - health check with current forward settings
//   - GET  /stats                     - forward counts by outcome
//   - POST /api/chat                  - forward a message; answer streams as server-sent events
//   - POST /api/chat/stop             - stop the running answer for a conversation
//   - GET  /api/tasks                 - finished forwards and running count
//   - /api/conversations[/{id}]       - list, create, clear, get, patch, delete
//   - /api/selected                   - get or set the selected conversation
//   - /api/folders[/{id}], /api/prompts[/{id}]
//   - GET  /api/export, POST /api/import - whole workspace as JSON or YAML
//
// # Chat Events
//
// POST /api/chat responds with text/event-stream:
//
//	event: start   {"conversation": {...}, "taskId": "..."}
//	event: update  {"content": "full assistant text so far"}
//	event: done    {"conversation": {...}, "stopped": false, "titleChanged": true}
//	event: error   {"message": "...", "type": "rate_limit", "code": "..."}
//
// The conversation is saved only when the forward finishes or is stopped.
//
// # Middleware
//
// Every request passes recovery, security headers, CORS, access logging,
// per-IP rate limiting and, when configured, bearer token authentication
// with an IP allowlist.
package server
