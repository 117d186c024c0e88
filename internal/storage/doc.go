// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations, folders, prompts and the selected
// conversation.
//
// Two backends implement Store:
//
//   - FileStore: one JSON file per conversation plus folders.json,
//     prompts.json and selected.json, all written atomically
//   - SQLiteStore: a single SQLite database (pure Go driver, WAL mode)
//
// # Usage
//
//	store, err := storage.Open(storage.BackendFile, dataDir)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.SaveConversation(conv)
//	conv, err = store.LoadConversation(id)
//
// # Storage Location
//
// Data lives under ~/.wiserchat/data by default.
package storage
