// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/ui/styles"
	"github.com/jeranaias/wiserchat/internal/upstream"
)

// View renders the chat view.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	status := m.renderStatus()
	input := m.theme.InputBorder.Width(max(m.width-2, 10)).Render(m.input.View())
	m.help.ShowAll = m.showHelp
	helpView := m.help.View(m.keyMap)

	// Shrink the viewport if the fixed parts came out taller than planned.
	fixed := lipgloss.Height(header) + lipgloss.Height(status) + lipgloss.Height(input) + lipgloss.Height(helpView)
	if avail := m.height - fixed; avail > 0 && avail < m.viewport.Height {
		m.viewport.Height = avail
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), status, input, helpView)
}

// =============================================================================
// HEADER AND STATUS
// =============================================================================

func (m Model) renderHeader() string {
	byteLimit, scope := m.forwarder.Settings()
	subtitle := fmt.Sprintf("limit %dB | scope %s", byteLimit, scope)

	name := model.DefaultConversationName
	if m.conversation != nil {
		name = m.conversation.Name
	}
	room := m.width - runewidth.StringWidth(subtitle) - 4
	if room < 8 {
		room = 8
	}
	title := runewidth.Truncate(name, room, "...")

	gap := m.width - runewidth.StringWidth(title) - runewidth.StringWidth(subtitle) - 2
	if gap < 1 {
		gap = 1
	}
	line := m.theme.HeaderTitle.Render(title) + strings.Repeat(" ", gap) + m.theme.HeaderSubtitle.Render(subtitle)
	return m.theme.Header.Width(m.width).MaxHeight(1).Render(line)
}

func (m Model) renderStatus() string {
	var text string
	switch {
	case m.state == StateStreaming && m.statusMsg != "":
		text = m.spinner.View() + " " + m.statusMsg
	case m.state == StateStreaming:
		text = m.spinner.View() + " answering..."
	case m.lastError != nil:
		text = styles.RenderError(errorText(m.lastError))
	case m.statusMsg != "":
		text = styles.RenderWarning(m.statusMsg)
	default:
		text = m.theme.Muted.Render(fmt.Sprintf("%d messages", len(m.transcript())))
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(text)
}

// errorText shows upstream errors the way the service reported them.
func errorText(err error) string {
	var apiErr *upstream.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code != "" {
			return fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return apiErr.Message
	}
	return err.Error()
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// transcript returns what should be on screen: the running forward's copy
// while answering, otherwise the saved conversation.
func (m Model) transcript() model.Transcript {
	if m.state == StateStreaming {
		if live, version := m.live.Snapshot(); version > 0 {
			return live
		}
	}
	if m.conversation == nil {
		return nil
	}
	return m.conversation.Messages
}

func (m *Model) updateViewport() {
	m.viewport.SetContent(m.renderMessages())
}

func (m *Model) renderMessages() string {
	messages := m.transcript()
	if len(messages) == 0 {
		return m.theme.Muted.Render("Ask anything. Enter sends, F1 shows keys.")
	}

	width := max(m.viewport.Width-2, 20)
	blocks := make([]string, 0, len(messages))
	for i, msg := range messages {
		inFlight := m.state == StateStreaming && i == len(messages)-1 && msg.Role == model.RoleAssistant
		blocks = append(blocks, m.renderMessage(msg, width, inFlight))
	}
	return strings.Join(blocks, "\n\n")
}

// renderMessage renders one message. An answer still streaming is shown
// as plain wrapped text; glamour runs once it is final.
func (m *Model) renderMessage(msg model.Message, width int, inFlight bool) string {
	if msg.Role == model.RoleUser {
		label := m.theme.UserLabel.Render(msg.Role.DisplayName())
		body := m.theme.UserMessage.Width(width).Render(msg.Content)
		return label + "\n" + body
	}

	label := m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	content := msg.Content
	if inFlight {
		content = lipgloss.NewStyle().Width(width - 1).Render(content)
	} else {
		content = m.markdown.Render(content, width-1)
	}
	return label + "\n" + m.theme.AssistantMessage.Render(content)
}
