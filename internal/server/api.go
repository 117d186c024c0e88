// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/tasks"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// ============================================================================
// CONVERSATIONS
// ============================================================================

// ConversationPatch is the body of PUT /api/conversations/{id}. Absent
// fields are left alone; a null or empty folderId takes the conversation
// out of its folder.
type ConversationPatch struct {
	Name     *string           `json:"name"`
	FolderID json.RawMessage   `json:"folderId"`
	Messages *model.Transcript `json:"messages"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.workspace.Conversations()
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.workspace.NewConversation()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	if n := s.tasks.RunningCount(); n > 0 {
		s.tasks.StopAll()
	}
	if err := s.workspace.ClearConversations(); err != nil {
		writeError(w, err)
		return
	}
	log.Printf("CONVERSATIONS_CLEARED | client_ip=%s", GetClientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.workspace.Conversation(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.tasks.IsBusy(id) {
		writeError(w, fmt.Errorf("%w: conversation %s is answering", tasks.ErrBusy, id))
		return
	}

	var patch ConversationPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.workspace.Conversation(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if patch.Messages != nil {
		for i, m := range *patch.Messages {
			if !m.Role.Valid() {
				writeError(w, fmt.Errorf("%w: invalid role %q at message %d", errBadRequest, m.Role, i))
				return
			}
		}
		conv.Messages = *patch.Messages
		conv.Touch()
		if err := s.workspace.UpdateConversation(conv); err != nil {
			writeError(w, err)
			return
		}
	}

	if patch.Name != nil {
		if conv, err = s.workspace.Rename(id, *patch.Name); err != nil {
			writeError(w, err)
			return
		}
	}

	if len(patch.FolderID) > 0 {
		var folderID *string
		if err := json.Unmarshal(patch.FolderID, &folderID); err != nil {
			writeError(w, fmt.Errorf("%w: folderId must be a string or null", errBadRequest))
			return
		}
		target := ""
		if folderID != nil {
			target = *folderID
		}
		if conv, err = s.workspace.MoveToFolder(id, target); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.tasks.Stop(id)
	if err := s.workspace.DeleteConversation(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSelected(w http.ResponseWriter, r *http.Request) {
	conv, err := s.workspace.Selected()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSetSelected(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	conv, err := s.workspace.Select(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	convs, err := storage.Search(s.workspace.Store(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []*model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// ============================================================================
// FOLDERS
// ============================================================================

// FolderRequest is the body of folder create and rename.
type FolderRequest struct {
	Name string           `json:"name"`
	Type model.FolderType `json:"type"`
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.workspace.Folders()
	if err != nil {
		writeError(w, err)
		return
	}
	if folders == nil {
		folders = []model.Folder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Type == "" {
		req.Type = model.FolderTypeChat
	}
	folder, err := s.workspace.CreateFolder(req.Name, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	folder, err := s.workspace.RenameFolder(r.PathValue("id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.DeleteFolder(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// PROMPTS
// ============================================================================

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := s.workspace.Prompts()
	if err != nil {
		writeError(w, err)
		return
	}
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req model.Prompt
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	prompt, err := s.workspace.CreatePrompt(req.Name, req.Description, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.FolderID != nil && *req.FolderID != "" {
		prompt.FolderID = req.FolderID
		if prompt, err = s.workspace.UpdatePrompt(prompt); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, prompt)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req model.Prompt
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ID = r.PathValue("id")
	prompt, err := s.workspace.UpdatePrompt(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.workspace.DeletePrompt(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// EXPORT / IMPORT
// ============================================================================

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := workspace.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	data, err := s.workspace.Export(format)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="wiserchat_export.%s"`, format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	format, err := workspace.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImportSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, fmt.Errorf("%w: import exceeds %d bytes", errBadRequest, MaxImportSize))
			return
		}
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	summary, err := s.workspace.Import(data, format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
