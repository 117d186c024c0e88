// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// wiserchat.
//
// # Commands
//
//   - chat: terminal chat UI (default)
//   - serve: web UI and JSON API
//   - ask: one question, answer on stdout
//   - conversations: list, show, search, delete, clear, export, import
//   - config: show, get, set, keys, path
//   - version, help
//
// # Usage
//
//	cmd, args, err := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdServe:
//	    err = cli.HandleServe(ctx, args)
//	case cli.CmdAsk:
//	    err = cli.HandleAskCommand(ctx, args, os.Stdin, os.Stdout)
//	// ... other commands
//	}
//	os.Exit(cli.ExitCode(err))
//
// Every handler loads the config (file, then environment, then flags),
// opens the configured storage and builds the forwarder the same way, so a
// conversation started in one front end can be continued in another.
package cli
