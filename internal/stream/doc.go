// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns an upstream answer into transcript updates.
//
// An answer arrives as a Source of byte chunks. Today the upstream service
// returns one buffered payload, so FromText yields a single chunk, but
// Reconstruct consumes any number of chunks the same way:
//
//   - the first chunk appends a new assistant message
//   - every later chunk replaces the content of that message with the full
//     text received so far (not the delta)
//   - a stop requested through a Token is observed before the first read and
//     after each chunk; partial content already written stays in place
//
// Stopping also cancels the Token's context, which unblocks a read that is
// waiting on the network.
package stream
