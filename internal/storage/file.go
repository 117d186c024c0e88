// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/util"
)

const (
	conversationsDir = "conversations"
	foldersFile      = "folders.json"
	promptsFile      = "prompts.json"
	selectedFile     = "selected.json"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps each conversation in its own JSON file.
type FileStore struct {
	// BaseDir is the data directory
	// Default: ~/.wiserchat/data/
	BaseDir string

	mu sync.Mutex
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, conversationsDir), 0700); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// SaveConversation persists a conversation, assigning an ID if needed.
func (s *FileStore) SaveConversation(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeConversationLocked(conv)
}

// SaveConversations replaces every stored conversation with convs.
func (s *FileStore) SaveConversations(convs []*model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(convs))
	for _, conv := range convs {
		if err := s.writeConversationLocked(conv); err != nil {
			return err
		}
		keep[conv.ID] = true
	}

	ids, err := s.idsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !keep[id] {
			if err := os.Remove(s.conversationPath(id)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func (s *FileStore) writeConversationLocked(conv *model.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	conv.Clean()
	if !validID(conv.ID) {
		return fmt.Errorf("invalid conversation id %q", conv.ID)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFileWithDir(s.conversationPath(conv.ID), data, 0600, util.PrivateDirPerm)
}

// LoadConversation retrieves a conversation by ID.
func (s *FileStore) LoadConversation(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

func (s *FileStore) loadLocked(id string) (*model.Conversation, error) {
	if !validID(id) {
		return nil, notFound(id)
	}

	data, err := os.ReadFile(s.conversationPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, err
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", id, err)
	}
	conv.Clean()
	return &conv, nil
}

// ListConversations returns all readable conversations, most recent first.
func (s *FileStore) ListConversations() ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *FileStore) listLocked() ([]*model.Conversation, error) {
	ids, err := s.idsLocked()
	if err != nil {
		return nil, err
	}

	convs := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.loadLocked(id)
		if err != nil {
			log.Printf("STORAGE_SKIP | file=%s error=%v", id+".json", err)
			continue
		}
		convs = append(convs, conv)
	}
	sortByRecent(convs)
	return convs, nil
}

// DeleteConversation removes a conversation by ID.
func (s *FileStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validID(id) {
		return notFound(id)
	}
	if err := os.Remove(s.conversationPath(id)); err != nil {
		if os.IsNotExist(err) {
			return notFound(id)
		}
		return err
	}
	return nil
}

// ClearConversations removes all conversations and the selection.
func (s *FileStore) ClearConversations() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.idsLocked()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(s.conversationPath(id)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.Remove(filepath.Join(s.BaseDir, selectedFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// =============================================================================
// FOLDERS, PROMPTS, SELECTION
// =============================================================================

// SaveFolders replaces the stored folder list.
func (s *FileStore) SaveFolders(folders []model.Folder) error {
	if folders == nil {
		folders = []model.Folder{}
	}
	return s.writeJSON(foldersFile, folders)
}

// ListFolders returns the stored folders in saved order.
func (s *FileStore) ListFolders() ([]model.Folder, error) {
	folders := []model.Folder{}
	if err := s.readJSON(foldersFile, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// SavePrompts replaces the stored prompt list.
func (s *FileStore) SavePrompts(prompts []model.Prompt) error {
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	return s.writeJSON(promptsFile, prompts)
}

// ListPrompts returns the stored prompts in saved order.
func (s *FileStore) ListPrompts() ([]model.Prompt, error) {
	prompts := []model.Prompt{}
	if err := s.readJSON(promptsFile, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

type selection struct {
	ConversationID string `json:"conversationId"`
}

// SetSelected records the selected conversation ID.
func (s *FileStore) SetSelected(id string) error {
	return s.writeJSON(selectedFile, selection{ConversationID: id})
}

// Selected returns the selected conversation ID.
func (s *FileStore) Selected() (string, error) {
	var sel selection
	if err := s.readJSON(selectedFile, &sel); err != nil {
		return "", err
	}
	return sel.ConversationID, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (s *FileStore) conversationPath(id string) string {
	return filepath.Join(s.BaseDir, conversationsDir, id+".json")
}

func (s *FileStore) idsLocked() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, conversationsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (s *FileStore) writeJSON(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFileWithDir(filepath.Join(s.BaseDir, name), data, 0600, util.PrivateDirPerm)
}

// readJSON leaves v untouched when the file does not exist.
func (s *FileStore) readJSON(name string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.BaseDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt %s: %w", name, err)
	}
	return nil
}

// validID rejects IDs that would escape the conversations directory.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".." && !strings.HasPrefix(id, ".")
}
