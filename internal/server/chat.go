// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/tasks"
)

// ============================================================================
// CHAT TYPES
// ============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// ConversationID selects the conversation. Empty starts a new one.
	ConversationID string `json:"conversationId"`

	// Message is the user's text. Ignored for regenerate.
	Message string `json:"message"`

	// DeleteCount trailing messages are dropped before Message is appended.
	DeleteCount int `json:"deleteCount"`

	// Kind is "send" (default), "regenerate" or "edit".
	Kind string `json:"kind,omitempty"`

	// Index is the user message replaced by an edit.
	Index int `json:"index,omitempty"`
}

// StopRequest is the body of POST /api/chat/stop.
type StopRequest struct {
	ConversationID string `json:"conversationId"`
}

// StartEvent carries the conversation with the new user message in place.
type StartEvent struct {
	Conversation *model.Conversation `json:"conversation"`
	TaskID       string              `json:"taskId"`
}

// UpdateEvent carries the full assistant content so far.
type UpdateEvent struct {
	Content string `json:"content"`
}

// DoneEvent carries the saved conversation.
type DoneEvent struct {
	Conversation *model.Conversation `json:"conversation"`
	Stopped      bool                `json:"stopped"`
	TitleChanged bool                `json:"titleChanged"`
}

// ============================================================================
// SSE WRITER
// ============================================================================

// sseWriter writes named server-sent events and flushes after each.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	broken  bool
}

func (e *sseWriter) send(event string, v interface{}) {
	if e.broken {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("SSE_ENCODE_FAILED | event=%s error=%v", event, err)
		return
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		e.broken = true
		return
	}
	e.flusher.Flush()
}

// ============================================================================
// CHAT HANDLERS
// ============================================================================

// handleChat handles POST /api/chat. Validation failures are plain JSON
// errors; once the stream is open, the outcome is reported as a "done" or
// "error" event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	kind := tasks.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if kind == "" {
		kind = tasks.KindSend
	}
	switch kind {
	case tasks.KindSend, tasks.KindEdit:
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, fmt.Errorf("%w: message must not be empty", errBadRequest))
			return
		}
		if len(req.Message) > MaxMessageLength {
			writeError(w, fmt.Errorf("%w: message exceeds maximum length of %d", errBadRequest, MaxMessageLength))
			return
		}
	case tasks.KindRegenerate:
	default:
		writeError(w, fmt.Errorf("%w: unknown kind %q", errBadRequest, req.Kind))
		return
	}
	if req.DeleteCount < 0 {
		writeError(w, fmt.Errorf("%w: deleteCount cannot be negative", errBadRequest))
		return
	}

	conv, err := s.chatConversation(req.ConversationID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorBody(w, http.StatusInternalServerError, "Streaming not supported", "server_error", "")
		return
	}

	// A client disconnect does not stop the answer; it is still saved.
	// Explicit stops and shutdown go through the registry.
	task, err := s.tasks.Start(context.WithoutCancel(r.Context()), conv.ID, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	events := &sseWriter{w: w, flusher: flusher}

	opts := forwarder.Options{
		DeleteCount: req.DeleteCount,
		OnStart: func(c *model.Conversation) {
			events.send("start", StartEvent{Conversation: c, TaskID: task.ID})
		},
		OnUpdate: func(t model.Transcript) {
			if last, ok := t.Last(); ok {
				events.send("update", UpdateEvent{Content: last.Content})
			}
		},
	}

	var res *forwarder.Result
	switch kind {
	case tasks.KindRegenerate:
		res, err = s.forwarder.Regenerate(task.Token(), conv, opts)
	case tasks.KindEdit:
		res, err = s.forwarder.Edit(task.Token(), conv, req.Index, req.Message, opts)
	default:
		res, err = s.forwarder.Forward(task.Token(), conv, model.UserMessage(req.Message), opts)
	}

	if err == nil {
		err = s.persist(res.Conversation)
	}

	stopped := res != nil && res.Stopped
	s.tasks.Finish(task, stopped, err)

	if err != nil {
		_, body := classify(err)
		events.send("error", body)
		return
	}
	events.send("done", DoneEvent{
		Conversation: res.Conversation,
		Stopped:      res.Stopped,
		TitleChanged: res.TitleChanged,
	})
}

// chatConversation loads the target conversation, or creates one.
func (s *Server) chatConversation(id string) (*model.Conversation, error) {
	if id == "" {
		return s.workspace.NewConversation()
	}
	return s.workspace.Conversation(id)
}

// persist saves a finished conversation and selects it.
func (s *Server) persist(conv *model.Conversation) error {
	if err := s.workspace.UpdateConversation(conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	if _, err := s.workspace.Select(conv.ID); err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}
	return nil
}

// handleStop handles POST /api/chat/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ConversationID == "" {
		writeError(w, fmt.Errorf("%w: conversationId is required", errBadRequest))
		return
	}

	stopped := s.tasks.Stop(req.ConversationID)
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// TaskInfo describes a task for GET /api/tasks.
type TaskInfo struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversationId"`
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	DurationSecs   float64 `json:"durationSeconds"`
}

// handleTasks handles GET /api/tasks: finished tasks, newest last, and the
// running count.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	history := s.tasks.History()
	infos := make([]TaskInfo, 0, len(history))
	for _, t := range history {
		infos = append(infos, TaskInfo{
			ID:             t.ID,
			ConversationID: t.ConversationID,
			Kind:           string(t.Kind),
			Status:         t.GetStatus().String(),
			Error:          t.GetError(),
			DurationSecs:   t.Duration().Seconds(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.tasks.RunningCount(),
		"history": infos,
	})
}

// ============================================================================
// REQUEST DECODING
// ============================================================================

// decodeBody reads a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body exceeds %d bytes", errBadRequest, MaxRequestBodySize)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		default:
			log.Printf("INVALID_REQUEST_BODY | path=%s error=%v", r.URL.Path, err)
			return fmt.Errorf("%w: invalid request format", errBadRequest)
		}
	}
	return nil
}
