// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the forwarder, the storage
// backends, the HTTP API and the terminal UI.
//
// # Key Types
//
//   - Message: a single message with a role and text content
//   - Transcript: the ordered messages of one conversation
//   - Conversation: a transcript plus identity, name and folder assignment
//   - Folder: a named group of conversations or prompts
//   - Prompt: a reusable prompt template
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.Messages = conv.Messages.Append(model.UserMessage("Hello!"))
//	conv.Name = model.DeriveTitle("Hello!")
package model
