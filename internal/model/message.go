// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// UserMessage creates a new user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates a new assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the ordered sequence of messages belonging to one conversation.
//
// It is append-only except for TrimTail (regenerate / edit) and SetLastContent
// (the in-progress assistant message while an answer is streaming). Role
// alternation is not enforced.
type Transcript []Message

// Append returns the transcript with msg added at the end.
func (t Transcript) Append(msg Message) Transcript {
	return append(t, msg)
}

// TrimTail returns the transcript without its last n messages.
// A count larger than the transcript empties it.
func (t Transcript) TrimTail(n int) Transcript {
	if n <= 0 {
		return t
	}
	if n >= len(t) {
		return t[:0]
	}
	return t[:len(t)-n]
}

// SetLastContent replaces the content of the last message.
// It is a no-op on an empty transcript.
func (t Transcript) SetLastContent(content string) {
	if len(t) == 0 {
		return
	}
	t[len(t)-1].Content = content
}

// Last returns the most recent message and whether one exists.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// LastIndexOf returns the index of the most recent message with the given
// role, or -1.
func (t Transcript) LastIndexOf(role Role) int {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Role == role {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}
