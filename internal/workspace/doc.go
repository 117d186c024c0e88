// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workspace implements the sidebar operations of the chat UI on top
// of a storage.Store: conversations, folders, prompts, the selected
// conversation, and whole-workspace export and import.
//
// Every mutation is written through to the store before it returns.
package workspace
