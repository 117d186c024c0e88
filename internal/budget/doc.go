// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget selects the trailing part of a transcript that fits a byte budget.
//
// The selection walks the transcript from the newest message backward and
// keeps whole messages only, joined by newlines in chronological order. It
// stops before the first message that would push the UTF-8 size of the
// joined text past the limit.
//
// # Usage
//
//	query := budget.Select(conv.Messages, budget.DefaultByteLimit)
package budget
