// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - The terminal chat command.
//
// Command: chat
// Short:   Interactive chat in the terminal (default command)
// Aliases: tui
//
// Examples:
//   wiserchat
//   wiserchat chat -c 3f2a...
//
// Without --conversation the workspace's selected conversation is opened.
// While the UI runs, log output goes to chat.log in the config directory.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/wiserchat/internal/config"
	"github.com/jeranaias/wiserchat/internal/ui/chat"
	"github.com/jeranaias/wiserchat/internal/ui/styles"
)

// HandleChatCommand runs the terminal chat until the user quits or ctx is
// canceled.
func HandleChatCommand(ctx context.Context, args Args) error {
	if !IsTTY() || !IsStdoutTTY() {
		return NewCommandError("chat", "start", "the chat UI needs a terminal; use 'wiserchat ask' for pipes", nil)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	if logFile, err := openChatLog(); err == nil {
		defer logFile.Close()
	} else {
		setupLogging(Args{})
	}

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	m := chat.New(svc.forwarder, svc.workspace, styles.NewTheme())
	m, err = m.WithConversationID(args.ConversationID)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		if n := fm.Tasks().StopAll(); n > 0 {
			fmt.Fprintf(os.Stderr, "stopped %d running answer(s)\n", n)
		}
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat UI: %w", err)
	}
	return nil
}

// openChatLog redirects the standard logger to chat.log in the config
// directory so log lines don't corrupt the UI.
func openChatLog() (*os.File, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return tea.LogToFile(filepath.Join(dir, "chat.log"), "chat")
}
