// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// FolderType says which sidebar a folder belongs to.
type FolderType string

const (
	FolderTypeChat   FolderType = "chat"
	FolderTypePrompt FolderType = "prompt"
)

// ErrInvalidFolderType is returned for a folder type other than chat or prompt.
var ErrInvalidFolderType = errors.New("invalid folder type")

// ParseFolderType validates a wire value.
func ParseFolderType(s string) (FolderType, error) {
	switch FolderType(s) {
	case FolderTypeChat, FolderTypePrompt:
		return FolderType(s), nil
	}
	return "", fmt.Errorf("%w %q: must be one of chat, prompt", ErrInvalidFolderType, s)
}

// Folder groups conversations or prompts.
type Folder struct {
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	Type FolderType `json:"type" yaml:"type"`
}

// NewFolder creates a folder with a generated ID.
func NewFolder(name string, folderType FolderType) Folder {
	return Folder{ID: uuid.NewString(), Name: name, Type: folderType}
}

// Prompt is a reusable prompt template.
type Prompt struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Content     string  `json:"content" yaml:"content"`
	FolderID    *string `json:"folderId" yaml:"folderId"`
}

// NewPrompt creates a prompt with a generated ID.
func NewPrompt(name, description, content string) Prompt {
	return Prompt{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Content:     content,
	}
}
