// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package budget

import (
	"github.com/jeranaias/wiserchat/internal/model"
)

// DefaultByteLimit is the byte budget used when none is configured.
const DefaultByteLimit = 3500

// separator joins consecutive messages in the selected text.
const separator = "\n"

// Selection describes the outcome of a budgeted selection.
type Selection struct {
	// Text is the selected messages joined by newlines, oldest first.
	Text string

	// Included is the number of trailing messages in Text.
	Included int

	// Total is the number of messages considered.
	Total int
}

// Bytes returns the UTF-8 encoded size of the selected text.
func (s Selection) Bytes() int {
	return len(s.Text)
}

// Truncated reports whether older messages were left out.
func (s Selection) Truncated() bool {
	return s.Included < s.Total
}

// Select returns the newest messages whose newline-joined content fits in
// byteLimit bytes. A non-positive limit means DefaultByteLimit.
func Select(messages []model.Message, byteLimit int) string {
	return SelectDetailed(messages, byteLimit).Text
}

// SelectDetailed is Select with the bookkeeping needed for logging.
func SelectDetailed(messages []model.Message, byteLimit int) Selection {
	if byteLimit <= 0 {
		byteLimit = DefaultByteLimit
	}

	sel := Selection{Total: len(messages)}
	accumulated := ""

	for i := len(messages) - 1; i >= 0; i-- {
		trial := messages[i].Content
		if accumulated != "" {
			trial += separator + accumulated
		}

		// Go strings are UTF-8, so len is the encoded byte length.
		if len(trial) > byteLimit {
			break
		}

		accumulated = trial
		sel.Included++
	}

	sel.Text = accumulated
	return sel
}
