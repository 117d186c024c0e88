// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package workspace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return New(store)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation_SavesAndSelects(t *testing.T) {
	ws := newWorkspace(t)

	conv, err := ws.NewConversation()
	require.NoError(t, err)
	require.Equal(t, model.DefaultConversationName, conv.Name)

	selected, err := ws.Selected()
	require.NoError(t, err)
	require.Equal(t, conv.ID, selected.ID)

	all, err := ws.Conversations()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestSelected_FallsBackToFreshConversation(t *testing.T) {
	ws := newWorkspace(t)

	conv, err := ws.Selected()
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	require.Empty(t, conv.Messages)

	// Not persisted until something is sent.
	all, err := ws.Conversations()
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, ws.Store().SetSelected("gone"))
	conv, err = ws.Selected()
	require.NoError(t, err)
	require.NotEqual(t, "gone", conv.ID)
}

func TestSelect(t *testing.T) {
	ws := newWorkspace(t)
	a, _ := ws.NewConversation()
	b, _ := ws.NewConversation()

	got, err := ws.Select(a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)

	selected, _ := ws.Selected()
	require.Equal(t, a.ID, selected.ID)
	require.NotEqual(t, b.ID, selected.ID)

	_, err = ws.Select("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRename(t *testing.T) {
	ws := newWorkspace(t)
	conv, _ := ws.NewConversation()

	renamed, err := ws.Rename(conv.ID, "  Trip planning ")
	require.NoError(t, err)
	require.Equal(t, "Trip planning", renamed.Name)

	_, err = ws.Rename(conv.ID, "   ")
	require.ErrorIs(t, err, ErrEmptyName)
}

func TestDeleteConversation_MovesSelection(t *testing.T) {
	ws := newWorkspace(t)
	a, _ := ws.NewConversation()
	b, _ := ws.NewConversation()
	_, err := ws.Select(b.ID)
	require.NoError(t, err)

	require.NoError(t, ws.DeleteConversation(b.ID))
	selected, err := ws.Store().Selected()
	require.NoError(t, err)
	require.Equal(t, a.ID, selected)

	require.NoError(t, ws.DeleteConversation(a.ID))
	selected, err = ws.Store().Selected()
	require.NoError(t, err)
	require.Equal(t, "", selected)

	require.ErrorIs(t, ws.DeleteConversation(a.ID), storage.ErrNotFound)
}

func TestClearConversations_DropsChatFolders(t *testing.T) {
	ws := newWorkspace(t)
	_, _ = ws.NewConversation()
	_, err := ws.CreateFolder("chats", model.FolderTypeChat)
	require.NoError(t, err)
	promptFolder, err := ws.CreateFolder("snippets", model.FolderTypePrompt)
	require.NoError(t, err)

	require.NoError(t, ws.ClearConversations())

	all, _ := ws.Conversations()
	require.Empty(t, all)
	folders, _ := ws.Folders()
	require.Equal(t, []model.Folder{promptFolder}, folders)
}

// =============================================================================
// FOLDER TESTS
// =============================================================================

func TestMoveToFolder(t *testing.T) {
	ws := newWorkspace(t)
	conv, _ := ws.NewConversation()
	chat, _ := ws.CreateFolder("Work", model.FolderTypeChat)
	prompts, _ := ws.CreateFolder("Templates", model.FolderTypePrompt)

	moved, err := ws.MoveToFolder(conv.ID, chat.ID)
	require.NoError(t, err)
	require.True(t, moved.InFolder(chat.ID))

	_, err = ws.MoveToFolder(conv.ID, prompts.ID)
	require.ErrorIs(t, err, ErrWrongFolderType)

	_, err = ws.MoveToFolder(conv.ID, "nope")
	require.ErrorIs(t, err, ErrFolderNotFound)

	moved, err = ws.MoveToFolder(conv.ID, "")
	require.NoError(t, err)
	require.Nil(t, moved.FolderID)
}

func TestRenameFolder(t *testing.T) {
	ws := newWorkspace(t)
	f, _ := ws.CreateFolder("Old", model.FolderTypeChat)

	renamed, err := ws.RenameFolder(f.ID, "New")
	require.NoError(t, err)
	require.Equal(t, "New", renamed.Name)

	_, err = ws.RenameFolder("missing", "x")
	require.ErrorIs(t, err, ErrFolderNotFound)
}

func TestCreateFolder_Validation(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.CreateFolder("", model.FolderTypeChat)
	require.ErrorIs(t, err, ErrEmptyName)

	_, err = ws.CreateFolder("x", model.FolderType("bogus"))
	require.Error(t, err)
}

func TestDeleteFolder_UnassignsMembers(t *testing.T) {
	ws := newWorkspace(t)
	chat, _ := ws.CreateFolder("Work", model.FolderTypeChat)
	promptFolder, _ := ws.CreateFolder("Templates", model.FolderTypePrompt)

	conv, _ := ws.NewConversation()
	_, err := ws.MoveToFolder(conv.ID, chat.ID)
	require.NoError(t, err)

	p, _ := ws.CreatePrompt("Summary", "", "Summarize this")
	p.FolderID = &promptFolder.ID
	_, err = ws.UpdatePrompt(p)
	require.NoError(t, err)

	require.NoError(t, ws.DeleteFolder(chat.ID))
	require.NoError(t, ws.DeleteFolder(promptFolder.ID))

	loaded, _ := ws.Conversation(conv.ID)
	require.Nil(t, loaded.FolderID)
	prompts, _ := ws.Prompts()
	require.Nil(t, prompts[0].FolderID)
	folders, _ := ws.Folders()
	require.Empty(t, folders)

	require.ErrorIs(t, ws.DeleteFolder(chat.ID), ErrFolderNotFound)
}

// =============================================================================
// PROMPT TESTS
// =============================================================================

func TestPrompts(t *testing.T) {
	ws := newWorkspace(t)

	p, err := ws.CreatePrompt("Translate", "to French", "Translate: {{text}}")
	require.NoError(t, err)

	p.Content = "Traduire: {{text}}"
	updated, err := ws.UpdatePrompt(p)
	require.NoError(t, err)
	require.Equal(t, "Traduire: {{text}}", updated.Content)

	_, err = ws.UpdatePrompt(model.Prompt{ID: "missing", Name: "x"})
	require.ErrorIs(t, err, ErrPromptNotFound)

	require.NoError(t, ws.DeletePrompt(p.ID))
	require.ErrorIs(t, ws.DeletePrompt(p.ID), ErrPromptNotFound)
}

// =============================================================================
// EXPORT / IMPORT TESTS
// =============================================================================

func seed(t *testing.T, ws *Workspace) *model.Conversation {
	t.Helper()
	conv, err := ws.NewConversation()
	require.NoError(t, err)
	conv.Messages = model.Transcript{model.UserMessage("Hi"), model.AssistantMessage("Hello!")}
	conv.Name = "Hi"
	require.NoError(t, ws.UpdateConversation(conv))
	_, err = ws.CreateFolder("Work", model.FolderTypeChat)
	require.NoError(t, err)
	_, err = ws.CreatePrompt("P", "", "content")
	require.NoError(t, err)
	return conv
}

func TestExportImport(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			src := newWorkspace(t)
			conv := seed(t, src)

			data, err := src.Export(format)
			require.NoError(t, err)
			require.Contains(t, string(data), "Hello!")

			dst := newWorkspace(t)
			summary, err := dst.Import(data, format)
			require.NoError(t, err)
			require.Equal(t, &ImportSummary{Conversations: 1, Folders: 1, Prompts: 1}, summary)

			loaded, err := dst.Conversation(conv.ID)
			require.NoError(t, err)
			require.Equal(t, conv.Messages, loaded.Messages)
			require.Equal(t, "Hi", loaded.Name)

			// Importing twice replaces rather than duplicates.
			_, err = dst.Import(data, format)
			require.NoError(t, err)
			folders, _ := dst.Folders()
			require.Len(t, folders, 1)
			all, _ := dst.Conversations()
			require.Len(t, all, 1)
		})
	}
}

func TestImport_BareConversationList(t *testing.T) {
	ws := newWorkspace(t)

	data := `[{"id":"c1","name":"","messages":[{"role":"user","content":"hey"},{"role":"system","content":"dropped"}],"folderId":null}]`
	summary, err := ws.Import([]byte(data), FormatJSON)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Conversations)

	conv, err := ws.Conversation("c1")
	require.NoError(t, err)
	require.Equal(t, model.DefaultConversationName, conv.Name)
	require.Equal(t, model.Transcript{model.UserMessage("hey")}, conv.Messages)
}

func TestImport_YAMLList(t *testing.T) {
	ws := newWorkspace(t)

	data := "- id: y1\n  name: From YAML\n  messages:\n    - role: user\n      content: hi\n"
	_, err := ws.Import([]byte(data), FormatYAML)
	require.NoError(t, err)

	conv, err := ws.Conversation("y1")
	require.NoError(t, err)
	require.Equal(t, "From YAML", conv.Name)
}

func TestImport_Invalid(t *testing.T) {
	ws := newWorkspace(t)

	_, err := ws.Import([]byte("  "), FormatJSON)
	require.ErrorIs(t, err, ErrInvalidImport)

	_, err = ws.Import([]byte("{oops"), FormatJSON)
	require.ErrorIs(t, err, ErrInvalidImport)
	require.True(t, strings.Contains(err.Error(), "json"))

	_, err = ws.Import([]byte("a: [b"), FormatYAML)
	require.ErrorIs(t, err, ErrInvalidImport)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
	require.Equal(t, "application/yaml", FormatYAML.ContentType())
}

func TestMergeByID(t *testing.T) {
	base := []model.Folder{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	incoming := []model.Folder{{ID: "b", Name: "B2"}, {ID: "c", Name: "C"}}

	got := mergeByID(base, incoming, func(f model.Folder) string { return f.ID })
	require.Equal(t, []model.Folder{{ID: "a", Name: "A"}, {ID: "b", Name: "B2"}, {ID: "c", Name: "C"}}, got)
	require.Equal(t, "B", base[1].Name)
}
