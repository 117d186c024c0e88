// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultConversationName is the name given to conversations before the
	// first exchange renames them.
	DefaultConversationName = "New Conversation"

	// TitleMaxLength is the number of characters kept from the first user
	// message when deriving a conversation title.
	TitleMaxLength = 30
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat transcript with its identity and placement.
type Conversation struct {
	// Identity
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`

	// Messages
	Messages Transcript `json:"messages" yaml:"messages"`

	// FolderID is nil when the conversation is not in a folder.
	FolderID *string `json:"folderId" yaml:"folderId"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Name:      DefaultConversationName,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  Transcript{},
	}
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = c.Messages.Clone()
	if c.FolderID != nil {
		id := *c.FolderID
		out.FolderID = &id
	}
	return &out
}

// Touch updates the modification time.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
}

// InFolder reports whether the conversation is assigned to folderID.
func (c *Conversation) InFolder(folderID string) bool {
	return c.FolderID != nil && *c.FolderID == folderID
}

// Clean repairs a conversation loaded from storage or an import.
// Messages with unknown roles are dropped and missing fields get defaults.
func (c *Conversation) Clean() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Name == "" {
		c.Name = DefaultConversationName
	}
	if c.FolderID != nil && *c.FolderID == "" {
		c.FolderID = nil
	}

	cleaned := make(Transcript, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Role.Valid() {
			cleaned = append(cleaned, msg)
		}
	}
	c.Messages = cleaned
}

// DeriveTitle builds a conversation name from the first user message: the
// content itself when it has at most TitleMaxLength characters, otherwise its
// first TitleMaxLength characters followed by "...".
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= TitleMaxLength {
		return content
	}
	return string(runes[:TitleMaxLength]) + "..."
}
