// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package forwarder sends a user message upstream and writes the answer
// back into the conversation.
//
// A forward works on a copy of the conversation:
//
//  1. drop DeleteCount trailing messages (regenerate / edit)
//  2. append the new message and, for the first exchange, derive the title
//  3. select the query text under the byte budget
//  4. send it upstream
//  5. reconstruct the answer into the transcript, honoring the stop token
//
// On error the caller's conversation is untouched and no assistant message
// exists anywhere. A stop is not an error: the result carries whatever
// partial answer had arrived. Persisting the result is up to the caller.
//
// By default only the newest message is budgeted and sent (ScopeLatest).
// ScopeTranscript sends as much trailing history as the budget allows.
package forwarder
