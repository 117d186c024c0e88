// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/google/uuid"

	"github.com/jeranaias/wiserchat/internal/model"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "wiserchat.db"

// DatabasePath returns the database location for a data directory.
func DatabasePath(dir string) string {
	return filepath.Join(dir, DatabaseFile)
}

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps everything in one SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InitMetadata)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// SaveConversation inserts or replaces one conversation.
func (s *SQLiteStore) SaveConversation(conv *model.Conversation) error {
	return upsertConversation(s.db, conv)
}

func upsertConversation(ex execer, conv *model.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	conv.Clean()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return err
	}

	_, err = ex.Exec(`
		INSERT INTO conversations (id, name, folder_id, created_at, updated_at, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			folder_id = excluded.folder_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			messages = excluded.messages`,
		conv.ID, conv.Name, nullString(conv.FolderID),
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(), string(messages))
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return nil
}

// SaveConversations replaces every stored conversation with convs.
func (s *SQLiteStore) SaveConversations(convs []*model.Conversation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return err
	}
	for _, conv := range convs {
		if err := upsertConversation(tx, conv); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const selectConversation = `SELECT id, name, folder_id, created_at, updated_at, messages FROM conversations`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		conv             model.Conversation
		folderID         sql.NullString
		created, updated int64
		messages         string
	)
	if err := row.Scan(&conv.ID, &conv.Name, &folderID, &created, &updated, &messages); err != nil {
		return nil, err
	}
	if folderID.Valid {
		id := folderID.String
		conv.FolderID = &id
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, fmt.Errorf("corrupt conversation %s: %w", conv.ID, err)
	}
	conv.Clean()
	return &conv, nil
}

// LoadConversation retrieves a conversation by ID.
func (s *SQLiteStore) LoadConversation(id string) (*model.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(selectConversation+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return conv, err
}

// ListConversations returns all conversations, most recent first.
func (s *SQLiteStore) ListConversations() ([]*model.Conversation, error) {
	rows, err := s.db.Query(selectConversation + " ORDER BY updated_at DESC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []*model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation by ID.
func (s *SQLiteStore) DeleteConversation(id string) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

// ClearConversations removes all conversations and the selection.
func (s *SQLiteStore) ClearConversations() error {
	if _, err := s.db.Exec("DELETE FROM conversations"); err != nil {
		return err
	}
	return s.SetSelected("")
}

// =============================================================================
// FOLDERS, PROMPTS, SELECTION
// =============================================================================

// SaveFolders replaces the stored folder list.
func (s *SQLiteStore) SaveFolders(folders []model.Folder) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM folders"); err != nil {
		return err
	}
	for i, f := range folders {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, err := tx.Exec("INSERT INTO folders (id, name, type, position) VALUES (?, ?, ?, ?)",
			f.ID, f.Name, string(f.Type), i); err != nil {
			return fmt.Errorf("failed to save folder %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ListFolders returns the stored folders in saved order.
func (s *SQLiteStore) ListFolders() ([]model.Folder, error) {
	rows, err := s.db.Query("SELECT id, name, type FROM folders ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := []model.Folder{}
	for rows.Next() {
		var f model.Folder
		var folderType string
		if err := rows.Scan(&f.ID, &f.Name, &folderType); err != nil {
			return nil, err
		}
		f.Type = model.FolderType(folderType)
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// SavePrompts replaces the stored prompt list.
func (s *SQLiteStore) SavePrompts(prompts []model.Prompt) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM prompts"); err != nil {
		return err
	}
	for i, p := range prompts {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if _, err := tx.Exec(
			"INSERT INTO prompts (id, name, description, content, folder_id, position) VALUES (?, ?, ?, ?, ?, ?)",
			p.ID, p.Name, p.Description, p.Content, nullString(p.FolderID), i); err != nil {
			return fmt.Errorf("failed to save prompt %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// ListPrompts returns the stored prompts in saved order.
func (s *SQLiteStore) ListPrompts() ([]model.Prompt, error) {
	rows, err := s.db.Query("SELECT id, name, description, content, folder_id FROM prompts ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prompts := []model.Prompt{}
	for rows.Next() {
		var p model.Prompt
		var folderID sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Content, &folderID); err != nil {
			return nil, err
		}
		if folderID.Valid {
			id := folderID.String
			p.FolderID = &id
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// SetSelected records the selected conversation ID.
func (s *SQLiteStore) SetSelected(id string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES ('selected_conversation', ?) "+
			"ON CONFLICT(key) DO UPDATE SET value = excluded.value", id)
	return err
}

// Selected returns the selected conversation ID.
func (s *SQLiteStore) Selected() (string, error) {
	var id string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'selected_conversation'").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
