// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing for wiserchat.
//
// The first argument names the command; everything after it is parsed by
// a per-command pflag set. Without a command the terminal chat starts.
package cli

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdServe
	CmdAsk
	CmdConversations
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command's canonical name.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdAsk:
		return "ask"
	case CmdConversations:
		return "conversations"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// commandNames maps names and aliases to commands.
var commandNames = map[string]Command{
	"chat":          CmdChat,
	"tui":           CmdChat,
	"serve":         CmdServe,
	"server":        CmdServe,
	"ask":           CmdAsk,
	"conversations": CmdConversations,
	"conversation":  CmdConversations,
	"conv":          CmdConversations,
	"ls":            CmdConversations,
	"config":        CmdConfig,
	"version":       CmdVersion,
	"help":          CmdHelp,
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Verbose    bool
	JSON       bool

	// Overrides applied on top of the loaded config
	Endpoint   string
	ByteLimit  int
	Scope      string
	Host       string
	Port       int
	Storage    string
	DataDir    string
	AuthToken  string
	RatePerMin int

	// RateLimitSet is true when --rate-limit was given; zero disables limiting.
	RateLimitSet bool

	// Command-specific
	ConversationID string
	Save           bool
	Raw            bool
	Format         string
	Output         string
	Confirm        bool

	// Subcommand is the first positional argument of commands that have them.
	Subcommand string

	// Positional holds the arguments left after flag parsing.
	Positional []string
}

// Query joins the positional arguments into one question.
func (a Args) Query() string {
	return strings.TrimSpace(strings.Join(a.Positional, " "))
}

// ErrHelpRequested is returned by Parse when -h or --help was given to a command.
var ErrHelpRequested = errors.New("help requested")

const usageText = `wiserchat - chat front end for a single-query answer service

The answer service takes one query string and returns one answer. wiserchat
keeps the conversation, fits as much recent history as allowed into that
single query, and streams the answer back.

Usage:
  wiserchat [chat]                  Start the terminal chat (default)
  wiserchat serve                   Serve the web UI and JSON API
  wiserchat ask "question"          Ask a single question
  wiserchat conversations [sub]     Manage stored conversations
  wiserchat config [sub]            View and modify configuration
  wiserchat version                 Show version information
  wiserchat help                    Show this help

Conversations Commands:
  wiserchat conversations list            List conversations (default)
  wiserchat conversations show <id>       Print a conversation
  wiserchat conversations search <text>   Find conversations by name or content
  wiserchat conversations delete <id>     Delete a conversation
  wiserchat conversations clear --confirm Delete every conversation
  wiserchat conversations export          Export conversations, folders and prompts
    --format json|yaml                    Export format (default: json)
    --output FILE                         Write to file (default: stdout)
  wiserchat conversations import <file>   Merge an export into the workspace
    --format json|yaml                    Import format (default: from extension)

Config Commands:
  wiserchat config show             Show the effective configuration (default)
  wiserchat config get <key>        Print one value
  wiserchat config set <key> <val>  Set a value and save
  wiserchat config keys             List every key
  wiserchat config path             Show the config file location

Global Flags:
  --config FILE       Read configuration from FILE
  --endpoint URL      Answer service URL
  --byte-limit N      Maximum query size in bytes
  --scope SCOPE       History scope: latest or transcript
  --storage BACKEND   Storage backend: file or sqlite
  --data-dir DIR      Storage directory
  -v, --verbose       Log to stderr
  --json              JSON output where supported

Serve Flags:
  --host HOST         Listen host (default from config)
  -p, --port N        Listen port (default from config)
  --auth-token TOKEN  Require a bearer token on /api routes
  --rate-limit N      Requests per minute per client (0 disables)

Chat and Ask Flags:
  -c, --conversation ID   Continue a stored conversation
  --save                  (ask) Store the exchange as a new conversation
  --raw                   (ask) Print the answer without markdown rendering

Examples:
  wiserchat                                   Start the terminal chat
  wiserchat serve --port 9000                 Serve on port 9000
  wiserchat ask "What is a token bucket?"     One-off question
  echo "Summarize this" | wiserchat ask       Question from stdin
  wiserchat ask -c 3f2a... "And then?"        Follow up in a stored conversation
  wiserchat conversations export --format yaml --output backup.yaml
  wiserchat config set forward.byte_limit 8000

Version: %s
`

// PrintUsage writes the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "wiserchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name) and
// returns the command and its args.
func Parse(argv []string) (Command, Args, error) {
	var args Args

	cmd := CmdChat
	rest := argv
	if len(argv) > 0 {
		first := argv[0]
		switch {
		case first == "-h" || first == "--help":
			return CmdHelp, args, nil
		case first == "--version":
			return CmdVersion, args, nil
		case !strings.HasPrefix(first, "-"):
			known, ok := commandNames[strings.ToLower(first)]
			if !ok {
				return CmdHelp, args, unknownCommand(first)
			}
			cmd = known
			rest = argv[1:]
		}
	}

	if cmd == CmdHelp || cmd == CmdVersion {
		return cmd, args, nil
	}

	fs := newFlagSet(cmd, &args)
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return cmd, args, ErrHelpRequested
		}
		return cmd, args, &UsageError{Command: cmd.String(), Err: err}
	}

	args.Positional = fs.Args()
	if f := fs.Lookup("rate-limit"); f != nil {
		args.RateLimitSet = f.Changed
	}
	if hasSubcommands(cmd) && len(args.Positional) > 0 {
		args.Subcommand = strings.ToLower(args.Positional[0])
		args.Positional = args.Positional[1:]
	}
	return cmd, args, nil
}

func hasSubcommands(cmd Command) bool {
	return cmd == CmdConversations || cmd == CmdConfig
}

// newFlagSet builds the flag set for cmd bound to args.
func newFlagSet(cmd Command, args *Args) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd.String(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)

	fs.StringVar(&args.ConfigPath, "config", "", "config file")
	fs.BoolVarP(&args.Verbose, "verbose", "v", false, "log to stderr")
	fs.BoolVar(&args.JSON, "json", false, "JSON output")
	fs.StringVar(&args.Endpoint, "endpoint", "", "answer service URL")
	fs.IntVar(&args.ByteLimit, "byte-limit", 0, "query byte limit")
	fs.StringVar(&args.Scope, "scope", "", "history scope")
	fs.StringVar(&args.Storage, "storage", "", "storage backend")
	fs.StringVar(&args.DataDir, "data-dir", "", "storage directory")

	switch cmd {
	case CmdServe:
		fs.StringVar(&args.Host, "host", "", "listen host")
		fs.IntVarP(&args.Port, "port", "p", 0, "listen port")
		fs.StringVar(&args.AuthToken, "auth-token", "", "bearer token")
		fs.IntVar(&args.RatePerMin, "rate-limit", 0, "requests per minute per client")
	case CmdChat:
		fs.StringVarP(&args.ConversationID, "conversation", "c", "", "conversation id")
	case CmdAsk:
		fs.StringVarP(&args.ConversationID, "conversation", "c", "", "conversation id")
		fs.BoolVar(&args.Save, "save", false, "store the exchange")
		fs.BoolVar(&args.Raw, "raw", false, "no markdown rendering")
	case CmdConversations:
		fs.StringVarP(&args.Format, "format", "f", "", "export format")
		fs.StringVarP(&args.Output, "output", "o", "", "output file")
		fs.BoolVar(&args.Confirm, "confirm", false, "confirm destructive action")
	}
	return fs
}

func unknownCommand(name string) error {
	err := &UsageError{Command: name, Err: fmt.Errorf("unknown command %q", name)}
	if suggestion := SuggestCommand(name); suggestion != "" {
		err.Hint = fmt.Sprintf("Did you mean %q?", suggestion)
	}
	return err
}
