// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders finished answers with glamour. The glamour
// renderer is rebuilt only when the wrap width changes.
//
// Must be used as a pointer so Bubble Tea's model copies share the cache.
type markdownRenderer struct {
	style string
	width int
	tr    *glamour.TermRenderer
}

func newMarkdownRenderer(style string) *markdownRenderer {
	return &markdownRenderer{style: style}
}

// Render returns content as styled terminal text wrapped at width. On any
// renderer failure the content comes back unchanged.
func (r *markdownRenderer) Render(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}
	if width < 20 {
		width = 20
	}
	if r.tr == nil || r.width != width {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return content
		}
		r.tr, r.width = tr, width
	}

	out, err := r.tr.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
