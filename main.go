// wiserchat - chat front ends for a single-query answer service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/wiserchat/internal/cli"
	"github.com/jeranaias/wiserchat/internal/server"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with the packages that report it
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	server.Version = Version
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args, err := cli.Parse(argv)
	if errors.Is(err, cli.ErrHelpRequested) {
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	}
	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		fmt.Fprintln(os.Stderr, "Run 'wiserchat help' for usage.")
		return cli.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdServe:
		err = cli.HandleServe(ctx, args)
	case cli.CmdChat:
		err = cli.HandleChatCommand(ctx, args)
	case cli.CmdAsk:
		err = cli.HandleAskCommand(ctx, args, os.Stdin, os.Stdout)
	case cli.CmdConversations:
		err = cli.HandleConversations(args, os.Stdin, os.Stdout)
	case cli.CmdConfig:
		err = cli.HandleConfig(args, os.Stdout)
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
	default:
		cli.PrintUsage(os.Stdout)
	}

	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		return cli.ExitCode(err)
	}
	return cli.ExitSuccess
}
