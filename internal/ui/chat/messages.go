// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/tasks"
)

// StreamTickMsg triggers a redraw of the in-flight answer.
type StreamTickMsg struct {
	Time time.Time
}

// ForwardDoneMsg carries the outcome of a forward.
type ForwardDoneMsg struct {
	Task   *tasks.Task
	Result *forwarder.Result
	Err    error
}

// ConversationMsg switches the view to a conversation.
type ConversationMsg struct {
	Conversation *model.Conversation
	Err          error
}
