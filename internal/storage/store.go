// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeranaias/wiserchat/internal/model"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// ParseBackend converts a config value to a Backend. Empty means file.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendFile:
		return BackendFile, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q (want %q or %q)", s, BackendFile, BackendSQLite)
	}
}

// Store is key-value persistence by ID.
type Store interface {
	// SaveConversation inserts or replaces one conversation.
	SaveConversation(conv *model.Conversation) error

	// SaveConversations replaces the whole stored set.
	SaveConversations(convs []*model.Conversation) error

	// LoadConversation returns ErrNotFound for an unknown ID.
	LoadConversation(id string) (*model.Conversation, error)

	// ListConversations returns all conversations, most recently updated first.
	ListConversations() ([]*model.Conversation, error)

	// DeleteConversation returns ErrNotFound for an unknown ID.
	DeleteConversation(id string) error

	// ClearConversations removes every conversation and the selection.
	ClearConversations() error

	SaveFolders(folders []model.Folder) error
	ListFolders() ([]model.Folder, error)

	SavePrompts(prompts []model.Prompt) error
	ListPrompts() ([]model.Prompt, error)

	// SetSelected records the selected conversation. Empty clears it.
	SetSelected(id string) error

	// Selected returns the selected conversation ID, or "".
	Selected() (string, error)

	Close() error
}

// Open creates the store for backend rooted at dir.
func Open(backend Backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(DatabasePath(dir))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StoreError{Message: "conversation not found"}

// StoreError represents a storage error that can be compared using errors.Is.
type StoreError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return e.Message + ": " + e.ID
	}
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func notFound(id string) error {
	return &StoreError{Message: ErrNotFound.Message, ID: id}
}

// =============================================================================
// HELPERS
// =============================================================================

// sortByRecent orders conversations most recently updated first.
func sortByRecent(convs []*model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}

// Search returns conversations whose name or any message contains query,
// case-insensitively. An empty query returns everything.
func Search(store Store, query string) ([]*model.Conversation, error) {
	all, err := store.ListConversations()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}

	var results []*model.Conversation
	for _, conv := range all {
		if strings.Contains(strings.ToLower(conv.Name), query) {
			results = append(results, conv)
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, conv)
				break
			}
		}
	}
	return results, nil
}
