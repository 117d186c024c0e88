// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/wiserchat/internal/stream"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a forward task.
type TaskStatus string

const (
	// TaskStatusRunning indicates the request or stream is in progress
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the full answer was received
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusStopped indicates the user stopped the answer
	TaskStatusStopped TaskStatus = "Stopped"

	// TaskStatusFailed indicates the forward returned an error
	TaskStatusFailed TaskStatus = "Failed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusComplete || s == TaskStatusStopped || s == TaskStatusFailed
}

// Kind names the operation a task performs.
type Kind string

const (
	KindSend       Kind = "send"
	KindRegenerate Kind = "regenerate"
	KindEdit       Kind = "edit"
)

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is a single forward operation against one conversation.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// ConversationID is the conversation being answered
	ConversationID string

	// Kind is the operation that started the task
	Kind Kind

	// Status is the current state of the task
	Status TaskStatus

	// StartTime is when the task started running
	StartTime time.Time

	// EndTime is when the task finished
	EndTime time.Time

	// Error is the error message if the task failed
	Error string

	token *stream.Token
	mu    sync.RWMutex
}

// NewTask creates a running task whose token derives from ctx.
func NewTask(ctx context.Context, conversationID string, kind Kind) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Kind:           kind,
		Status:         TaskStatusRunning,
		StartTime:      time.Now(),
		token:          stream.NewToken(ctx),
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// Token returns the stop token the forward should observe.
func (t *Task) Token() *stream.Token {
	return t.token
}

// SetStatus updates the task status (thread-safe).
// Valid transitions: Running -> Complete/Stopped/Failed
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}

	if t.Status != status && status.Terminal() {
		t.EndTime = time.Now()
	}
	t.Status = status
	return nil
}

func isValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	return from == TaskStatusRunning && to.Terminal()
}

// GetStatus returns the current task status (thread-safe).
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// SetError records err and marks the task failed (thread-safe).
func (t *Task) SetError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status.Terminal() {
		return
	}
	t.Error = err.Error()
	t.Status = TaskStatusFailed
	t.EndTime = time.Now()
}

// GetError returns the error message (thread-safe).
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Stop asks the forward to stop.
// Returns false if the task had already finished.
func (t *Task) Stop() bool {
	if t.GetStatus().Terminal() {
		return false
	}
	t.token.Stop()
	return true
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// IsRunning returns true if the task is still in progress.
func (t *Task) IsRunning() bool {
	return t.GetStatus() == TaskStatusRunning
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	status := t.GetStatus()

	summary := fmt.Sprintf("[%s] %s %s - %s", t.ID[:8], t.Kind, t.ConversationID, status)
	if d := t.Duration(); d > 0 {
		summary += fmt.Sprintf(" (%s)", d.Round(time.Millisecond))
	}
	if errMsg := t.GetError(); errMsg != "" {
		summary += ": " + errMsg
	}
	return summary
}

// Clone returns a snapshot of the task without its token.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Task{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Kind:           t.Kind,
		Status:         t.Status,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Error:          t.Error,
	}
}
