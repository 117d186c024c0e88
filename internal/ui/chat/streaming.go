// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/tasks"
)

// =============================================================================
// LIVE TRANSCRIPT
// =============================================================================

// liveTranscript holds the latest transcript published by a running
// forward. The forward writes from its goroutine; the Update loop reads on
// every tick and redraws only when the version moved.
//
// Must be used as a pointer so Bubble Tea's model copies share it.
type liveTranscript struct {
	mu       sync.Mutex
	messages model.Transcript
	version  int
}

func newLiveTranscript() *liveTranscript {
	return &liveTranscript{}
}

// Set publishes a copy of t.
func (l *liveTranscript) Set(t model.Transcript) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = t.Clone()
	l.version++
}

// Snapshot returns the latest transcript and its version.
func (l *liveTranscript) Snapshot() (model.Transcript, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.messages.Clone(), l.version
}

// Reset drops the published transcript.
func (l *liveTranscript) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
	l.version = 0
}

// =============================================================================
// COMMANDS
// =============================================================================

// streamTickCmd redraws the in-flight answer at 30fps.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}

// forwardRequest captures everything a forward needs so the command never
// touches the model from its goroutine.
type forwardRequest struct {
	fwd     *forwarder.Forwarder
	task    *tasks.Task
	conv    *model.Conversation
	content string
	live    *liveTranscript
}

// forwardCmd runs the forward for req.task.Kind and reports the outcome.
func forwardCmd(req forwardRequest) tea.Cmd {
	return func() tea.Msg {
		opts := forwarder.Options{
			OnStart:  func(c *model.Conversation) { req.live.Set(c.Messages) },
			OnUpdate: req.live.Set,
		}

		var (
			res *forwarder.Result
			err error
		)
		switch req.task.Kind {
		case tasks.KindRegenerate:
			res, err = req.fwd.Regenerate(req.task.Token(), req.conv, opts)
		default:
			res, err = req.fwd.Forward(req.task.Token(), req.conv, model.UserMessage(req.content), opts)
		}
		return ForwardDoneMsg{Task: req.task, Result: res, Err: err}
	}
}
