// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrBusy is returned by Start when the conversation already has a running task.
var ErrBusy = errors.New("conversation already has an answer in progress")

// DefaultMaxHistory is the number of finished tasks kept for inspection.
const DefaultMaxHistory = 100

// =============================================================================
// REGISTRY
// =============================================================================

// Registry tracks running forward tasks, one per conversation.
type Registry struct {
	// running maps conversation ID to its in-flight task
	running map[string]*Task

	// history holds finished tasks, oldest first
	history []*Task

	// maxHistory is the maximum number of finished tasks to keep
	maxHistory int

	mu sync.RWMutex

	// onFinish hooks run after every Finish, outside the lock
	onFinish []func(TaskNotification)
}

// TaskNotification describes a finished task.
type TaskNotification struct {
	TaskID         string
	ConversationID string
	Status         TaskStatus
	Error          string
	Duration       time.Duration
}

// NewRegistry creates an empty registry.
// maxHistory sets the number of finished tasks to keep (0 = DefaultMaxHistory).
func NewRegistry(maxHistory int) *Registry {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Registry{
		running:    make(map[string]*Task),
		maxHistory: maxHistory,
	}
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Start registers a new running task for the conversation.
func (r *Registry) Start(ctx context.Context, conversationID string, kind Kind) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.running[conversationID]; ok {
		return nil, fmt.Errorf("%w: task %s", ErrBusy, existing.ID)
	}

	task := NewTask(ctx, conversationID, kind)
	r.running[conversationID] = task
	return task, nil
}

// Stop stops the running task for the conversation.
// Returns true if a task was signaled.
func (r *Registry) Stop(conversationID string) bool {
	r.mu.RLock()
	task, ok := r.running[conversationID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	log.Printf("FORWARD_STOP_REQUESTED | conversation=%s task=%s", conversationID, task.ID)
	return task.Stop()
}

// StopAll stops every running task. Used on shutdown.
func (r *Registry) StopAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, task := range r.running {
		if task.Stop() {
			n++
		}
	}
	return n
}

// Finish records the outcome of a task and frees its conversation.
// A nil err with stopped set marks the task Stopped.
func (r *Registry) Finish(task *Task, stopped bool, err error) {
	if task == nil {
		return
	}

	switch {
	case err != nil:
		task.SetError(err)
	case stopped:
		_ = task.SetStatus(TaskStatusStopped)
	default:
		_ = task.SetStatus(TaskStatusComplete)
	}
	task.token.Release()

	r.mu.Lock()
	if current, ok := r.running[task.ConversationID]; ok && current == task {
		delete(r.running, task.ConversationID)
	}
	r.history = append(r.history, task)
	r.cleanupLocked()
	hooks := r.onFinish
	r.mu.Unlock()

	log.Printf("TASK_FINISHED | %s", task.Summary())

	n := TaskNotification{
		TaskID:         task.ID,
		ConversationID: task.ConversationID,
		Status:         task.GetStatus(),
		Error:          task.GetError(),
		Duration:       task.Duration(),
	}
	for _, fn := range hooks {
		fn(n)
	}
}

// =============================================================================
// REGISTRY QUERIES
// =============================================================================

// IsBusy reports whether the conversation has a running task.
func (r *Registry) IsBusy(conversationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.running[conversationID]
	return ok
}

// RunningCount returns the number of running tasks.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.running)
}

// History returns snapshots of finished tasks, oldest first.
func (r *Registry) History() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Task, len(r.history))
	for i, task := range r.history {
		result[i] = task.Clone()
	}
	return result
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// OnFinish registers fn to run after every Finish. Hooks run synchronously
// on the finishing goroutine and must not call back into Finish.
func (r *Registry) OnFinish(fn func(TaskNotification)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFinish = append(r.onFinish, fn)
}

// cleanupLocked trims history to maxHistory, dropping the oldest first.
func (r *Registry) cleanupLocked() {
	if over := len(r.history) - r.maxHistory; over > 0 {
		r.history = append([]*Task(nil), r.history[over:]...)
	}
}
