// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/wiserchat/internal/model"
)

// ExportVersion is written to every export.
const ExportVersion = 4

// ErrInvalidImport is returned when import data cannot be decoded.
var ErrInvalidImport = errors.New("invalid import")

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat converts a query or flag value to a Format. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or yaml)", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Export is the serialized form of a whole workspace.
type Export struct {
	Version int                   `json:"version" yaml:"version"`
	History []*model.Conversation `json:"history" yaml:"history"`
	Folders []model.Folder        `json:"folders" yaml:"folders"`
	Prompts []model.Prompt        `json:"prompts" yaml:"prompts"`
}

// ImportSummary counts what an import added or replaced.
type ImportSummary struct {
	Conversations int `json:"conversations"`
	Folders       int `json:"folders"`
	Prompts       int `json:"prompts"`
}

// Export serializes every conversation, folder and prompt.
func (w *Workspace) Export(format Format) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	convs, err := w.store.ListConversations()
	if err != nil {
		return nil, err
	}
	folders, err := w.store.ListFolders()
	if err != nil {
		return nil, err
	}
	prompts, err := w.store.ListPrompts()
	if err != nil {
		return nil, err
	}

	exp := Export{Version: ExportVersion, History: convs, Folders: folders, Prompts: prompts}
	switch format {
	case FormatYAML:
		return yaml.Marshal(exp)
	case FormatJSON, "":
		return json.MarshalIndent(exp, "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Import merges an export into the workspace. Items whose ID already exists
// are replaced; everything else is kept. A bare list of conversations (the
// oldest export layout) is accepted too.
func (w *Workspace) Import(data []byte, format Format) (*ImportSummary, error) {
	exp, err := decodeExport(data, format)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	summary := &ImportSummary{}
	for _, conv := range exp.History {
		if conv == nil {
			continue
		}
		conv.Clean()
		if err := w.store.SaveConversation(conv); err != nil {
			return summary, fmt.Errorf("import conversation %s: %w", conv.ID, err)
		}
		summary.Conversations++
	}

	if len(exp.Folders) > 0 {
		existing, err := w.store.ListFolders()
		if err != nil {
			return summary, err
		}
		merged := mergeByID(existing, exp.Folders, func(f model.Folder) string { return f.ID })
		if err := w.store.SaveFolders(merged); err != nil {
			return summary, err
		}
		summary.Folders = len(exp.Folders)
	}

	if len(exp.Prompts) > 0 {
		existing, err := w.store.ListPrompts()
		if err != nil {
			return summary, err
		}
		merged := mergeByID(existing, exp.Prompts, func(p model.Prompt) string { return p.ID })
		if err := w.store.SavePrompts(merged); err != nil {
			return summary, err
		}
		summary.Prompts = len(exp.Prompts)
	}

	log.Printf("WORKSPACE_IMPORT | version=%d conversations=%d folders=%d prompts=%d",
		exp.Version, summary.Conversations, summary.Folders, summary.Prompts)
	return summary, nil
}

func decodeExport(data []byte, format Format) (*Export, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidImport)
	}

	var exp Export
	switch format {
	case FormatYAML:
		var node yaml.Node
		if err := yaml.Unmarshal(trimmed, &node); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidImport, err)
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			if err := node.Decode(&exp.History); err != nil {
				return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidImport, err)
			}
		} else if err := node.Decode(&exp); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ErrInvalidImport, err)
		}
	case FormatJSON, "":
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &exp.History); err != nil {
				return nil, fmt.Errorf("%w: json: %v", ErrInvalidImport, err)
			}
		} else if err := json.Unmarshal(trimmed, &exp); err != nil {
			return nil, fmt.Errorf("%w: json: %v", ErrInvalidImport, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidImport, format)
	}
	return &exp, nil
}

// mergeByID replaces items of base that share an ID with incoming and appends
// the rest, keeping base order.
func mergeByID[T any](base, incoming []T, id func(T) string) []T {
	index := make(map[string]int, len(base))
	out := make([]T, len(base))
	copy(out, base)
	for i, item := range out {
		index[id(item)] = i
	}
	for _, item := range incoming {
		if i, ok := index[id(item)]; ok {
			out[i] = item
			continue
		}
		index[id(item)] = len(out)
		out = append(out, item)
	}
	return out
}
