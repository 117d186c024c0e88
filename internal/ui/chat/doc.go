// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view for wiserchat.

The view is a Bubble Tea model over the same forwarder, workspace and task
registry the HTTP server uses, so conversations started here show up in the
browser and the other way round.

# Layout

	header    conversation name, byte limit and history scope
	viewport  transcript; finished assistant answers rendered with glamour
	status    spinner while answering, last error or outcome
	input     textarea (Enter sends, Alt+Enter inserts a newline)
	help      key bindings

# Keys

	Enter   send            Esc     stop the running answer
	Ctrl+R  regenerate      Ctrl+N  new conversation
	PgUp    scroll up       PgDn    scroll down
	F1      toggle help     Ctrl+C  quit

# Usage

	m := chat.New(fwd, ws, styles.NewTheme())
	m, err := m.WithConversationID(id)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
*/
package chat
