// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/wiserchat/internal/model"
)

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatConversationList formats conversations as a table for the terminal.
// Columns are padded by display width so wide characters line up.
func FormatConversationList(convs []*model.Conversation) string {
	if len(convs) == 0 {
		return "No conversations found."
	}

	var sb strings.Builder
	rule := strings.Repeat("-", 72) + "\n"
	sb.WriteString(rule)
	sb.WriteString(pad("ID", 10) + " " + pad("Updated", 16) + " " + pad("Msgs", 5) + " Name\n")
	sb.WriteString(rule)

	for _, c := range convs {
		id := c.ID
		if len(id) > 8 {
			id = id[:8]
		}
		updated := ""
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.Format("2006-01-02 15:04")
		}
		sb.WriteString(pad(id, 10) + " " +
			pad(updated, 16) + " " +
			pad(strconv.Itoa(len(c.Messages)), 5) + " " +
			runewidth.Truncate(c.Name, 36, "...") + "\n")
	}
	return sb.String()
}

// pad pads s with spaces to the given display width.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}
