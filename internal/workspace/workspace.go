// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
)

var (
	// ErrFolderNotFound is returned for an unknown folder ID.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrPromptNotFound is returned for an unknown prompt ID.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrWrongFolderType is returned when a conversation is moved into a
	// prompt folder or the other way around.
	ErrWrongFolderType = errors.New("folder has the wrong type")

	// ErrEmptyName is returned when a name is blank.
	ErrEmptyName = errors.New("name must not be empty")
)

// Workspace serializes sidebar operations over a store.
type Workspace struct {
	store storage.Store
	mu    sync.Mutex
}

// New creates a workspace over store.
func New(store storage.Store) *Workspace {
	return &Workspace{store: store}
}

// Store returns the underlying store.
func (w *Workspace) Store() storage.Store {
	return w.store
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewConversation creates, saves and selects an empty conversation.
func (w *Workspace) NewConversation() (*model.Conversation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv := model.NewConversation()
	if err := w.store.SaveConversation(conv); err != nil {
		return nil, fmt.Errorf("save new conversation: %w", err)
	}
	if err := w.store.SetSelected(conv.ID); err != nil {
		return nil, fmt.Errorf("select new conversation: %w", err)
	}
	return conv, nil
}

// Conversation loads a conversation by ID.
func (w *Workspace) Conversation(id string) (*model.Conversation, error) {
	return w.store.LoadConversation(id)
}

// Conversations lists every conversation, most recent first.
func (w *Workspace) Conversations() ([]*model.Conversation, error) {
	return w.store.ListConversations()
}

// Select marks a conversation as selected and returns it.
func (w *Workspace) Select(id string) (*model.Conversation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv, err := w.store.LoadConversation(id)
	if err != nil {
		return nil, err
	}
	if err := w.store.SetSelected(id); err != nil {
		return nil, err
	}
	return conv, nil
}

// Selected returns the selected conversation. When nothing is selected, or
// the selection no longer exists, it returns a fresh unsaved conversation.
func (w *Workspace) Selected() (*model.Conversation, error) {
	id, err := w.store.Selected()
	if err != nil {
		return nil, err
	}
	if id != "" {
		conv, err := w.store.LoadConversation(id)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return model.NewConversation(), nil
}

// UpdateConversation saves conv as given.
func (w *Workspace) UpdateConversation(conv *model.Conversation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.store.SaveConversation(conv)
}

// Rename sets a conversation's name.
func (w *Workspace) Rename(id, name string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	conv, err := w.store.LoadConversation(id)
	if err != nil {
		return nil, err
	}
	conv.Name = name
	conv.Touch()
	if err := w.store.SaveConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// MoveToFolder assigns a conversation to a chat folder. An empty folderID
// takes it out of its folder.
func (w *Workspace) MoveToFolder(id, folderID string) (*model.Conversation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conv, err := w.store.LoadConversation(id)
	if err != nil {
		return nil, err
	}

	if folderID == "" {
		conv.FolderID = nil
	} else {
		if err := w.checkFolderLocked(folderID, model.FolderTypeChat); err != nil {
			return nil, err
		}
		conv.FolderID = &folderID
	}

	if err := w.store.SaveConversation(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation. If it was selected, the most
// recent remaining conversation becomes selected.
func (w *Workspace) DeleteConversation(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.DeleteConversation(id); err != nil {
		return err
	}

	selected, err := w.store.Selected()
	if err != nil || selected != id {
		return err
	}

	remaining, err := w.store.ListConversations()
	if err != nil {
		return err
	}
	next := ""
	if len(remaining) > 0 {
		next = remaining[0].ID
	}
	return w.store.SetSelected(next)
}

// ClearConversations removes every conversation and every chat folder.
// Prompt folders are kept.
func (w *Workspace) ClearConversations() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.ClearConversations(); err != nil {
		return err
	}

	folders, err := w.store.ListFolders()
	if err != nil {
		return err
	}
	kept := make([]model.Folder, 0, len(folders))
	for _, f := range folders {
		if f.Type != model.FolderTypeChat {
			kept = append(kept, f)
		}
	}
	return w.store.SaveFolders(kept)
}

// =============================================================================
// FOLDERS
// =============================================================================

// Folders lists every folder in creation order.
func (w *Workspace) Folders() ([]model.Folder, error) {
	return w.store.ListFolders()
}

// CreateFolder appends a new folder.
func (w *Workspace) CreateFolder(name string, folderType model.FolderType) (model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Folder{}, ErrEmptyName
	}
	if _, err := model.ParseFolderType(string(folderType)); err != nil {
		return model.Folder{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	folders, err := w.store.ListFolders()
	if err != nil {
		return model.Folder{}, err
	}
	folder := model.NewFolder(name, folderType)
	if err := w.store.SaveFolders(append(folders, folder)); err != nil {
		return model.Folder{}, err
	}
	return folder, nil
}

// RenameFolder sets a folder's name.
func (w *Workspace) RenameFolder(id, name string) (model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Folder{}, ErrEmptyName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	folders, err := w.store.ListFolders()
	if err != nil {
		return model.Folder{}, err
	}
	for i := range folders {
		if folders[i].ID == id {
			folders[i].Name = name
			if err := w.store.SaveFolders(folders); err != nil {
				return model.Folder{}, err
			}
			return folders[i], nil
		}
	}
	return model.Folder{}, fmt.Errorf("%w: %s", ErrFolderNotFound, id)
}

// DeleteFolder removes a folder and takes every conversation and prompt out
// of it.
func (w *Workspace) DeleteFolder(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	folders, err := w.store.ListFolders()
	if err != nil {
		return err
	}
	kept := make([]model.Folder, 0, len(folders))
	for _, f := range folders {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(folders) {
		return fmt.Errorf("%w: %s", ErrFolderNotFound, id)
	}
	if err := w.store.SaveFolders(kept); err != nil {
		return err
	}

	convs, err := w.store.ListConversations()
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if conv.InFolder(id) {
			conv.FolderID = nil
			if err := w.store.SaveConversation(conv); err != nil {
				return err
			}
		}
	}

	prompts, err := w.store.ListPrompts()
	if err != nil {
		return err
	}
	changed := false
	for i := range prompts {
		if prompts[i].FolderID != nil && *prompts[i].FolderID == id {
			prompts[i].FolderID = nil
			changed = true
		}
	}
	if changed {
		return w.store.SavePrompts(prompts)
	}
	return nil
}

func (w *Workspace) checkFolderLocked(id string, want model.FolderType) error {
	folders, err := w.store.ListFolders()
	if err != nil {
		return err
	}
	for _, f := range folders {
		if f.ID == id {
			if f.Type != want {
				return fmt.Errorf("%w: %s is a %s folder", ErrWrongFolderType, id, f.Type)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFolderNotFound, id)
}

// =============================================================================
// PROMPTS
// =============================================================================

// Prompts lists every prompt in creation order.
func (w *Workspace) Prompts() ([]model.Prompt, error) {
	return w.store.ListPrompts()
}

// CreatePrompt appends a new prompt.
func (w *Workspace) CreatePrompt(name, description, content string) (model.Prompt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Prompt{}, ErrEmptyName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	prompts, err := w.store.ListPrompts()
	if err != nil {
		return model.Prompt{}, err
	}
	prompt := model.NewPrompt(name, description, content)
	if err := w.store.SavePrompts(append(prompts, prompt)); err != nil {
		return model.Prompt{}, err
	}
	return prompt, nil
}

// UpdatePrompt replaces the prompt with the same ID.
func (w *Workspace) UpdatePrompt(prompt model.Prompt) (model.Prompt, error) {
	if strings.TrimSpace(prompt.Name) == "" {
		return model.Prompt{}, ErrEmptyName
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if prompt.FolderID != nil {
		if *prompt.FolderID == "" {
			prompt.FolderID = nil
		} else if err := w.checkFolderLocked(*prompt.FolderID, model.FolderTypePrompt); err != nil {
			return model.Prompt{}, err
		}
	}

	prompts, err := w.store.ListPrompts()
	if err != nil {
		return model.Prompt{}, err
	}
	for i := range prompts {
		if prompts[i].ID == prompt.ID {
			prompts[i] = prompt
			if err := w.store.SavePrompts(prompts); err != nil {
				return model.Prompt{}, err
			}
			return prompt, nil
		}
	}
	return model.Prompt{}, fmt.Errorf("%w: %s", ErrPromptNotFound, prompt.ID)
}

// DeletePrompt removes a prompt.
func (w *Workspace) DeletePrompt(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prompts, err := w.store.ListPrompts()
	if err != nil {
		return err
	}
	kept := make([]model.Prompt, 0, len(prompts))
	for _, p := range prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(prompts) {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, id)
	}
	return w.store.SavePrompts(kept)
}
