// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single query command handler for wiserchat CLI.
//
// Command: ask [question]
// Short:   Ask a single question
// Aliases: (none)
//
// Examples:
//   wiserchat ask "What is the capital of France?"
//   wiserchat ask --json "List three prime numbers"
//   git diff | wiserchat ask
//   wiserchat ask -c 3f2a... "And why is that?"
//
// Flags:
//   -c, --conversation ID   Continue a stored conversation and save the result
//   --save                  Store the exchange as a new conversation
//   --raw                   Print the answer without markdown rendering
//   --json                  Output the result as JSON
//
// The question goes through the same byte budget as the chat views. On a
// terminal the finished answer is rendered as markdown; otherwise it is
// streamed to stdout as it arrives.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/stream"
)

// maxStdinQuery bounds a question read from stdin.
const maxStdinQuery = 1 << 20

// AskResult is the --json output of ask.
type AskResult struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	Stopped        bool   `json:"stopped"`
	Saved          bool   `json:"saved"`
	QueryBytes     int    `json:"query_bytes"`
	Messages       int    `json:"messages"`
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders markdown content for terminal display.
// Returns content unchanged if rendering fails.
func renderMarkdown(content string, width int) string {
	if width > MaxRenderWidth {
		width = MaxRenderWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ASK
// =============================================================================

// HandleAskCommand sends one question and writes the answer to out. With
// no question arguments the question is read from in unless in is a
// terminal. Canceling ctx stops the answer and keeps what arrived.
func HandleAskCommand(ctx context.Context, args Args, in io.Reader, out io.Writer) error {
	setupLogging(args)

	query := args.Query()
	if query == "" && in != nil && !isTerminalReader(in) {
		data, err := io.ReadAll(io.LimitReader(in, maxStdinQuery))
		if err != nil {
			return NewCommandError("ask", "read", "could not read question from stdin", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return NewValidationErrorWithExample("question", "", "a question is required",
			`wiserchat ask "What is a token bucket?"`)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	conv := model.NewConversation()
	if args.ConversationID != "" {
		conv, err = svc.workspace.Conversation(args.ConversationID)
		if err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
	}

	tok := stream.NewToken(context.Background())
	defer tok.Release()
	stopOnCancel := context.AfterFunc(ctx, tok.Stop)
	defer stopOnCancel()

	render := !args.Raw && !args.JSON && isTerminalWriter(out)
	live := !render && !args.JSON

	var printed int
	opts := forwarder.Options{}
	if live {
		opts.OnUpdate = func(t model.Transcript) {
			last, ok := t.Last()
			if !ok || last.Role != model.RoleAssistant || len(last.Content) <= printed {
				return
			}
			fmt.Fprint(out, last.Content[printed:])
			printed = len(last.Content)
		}
	}

	res, err := svc.forwarder.Forward(tok, conv, model.UserMessage(query), opts)
	if err != nil {
		return err
	}

	answer := ""
	if last, ok := res.Conversation.Messages.Last(); ok && last.Role == model.RoleAssistant {
		answer = last.Content
	}

	saved := false
	if args.Save || args.ConversationID != "" {
		if err := svc.workspace.UpdateConversation(res.Conversation); err != nil {
			return NewCommandError("ask", "save", "could not store conversation", err)
		}
		if _, err := svc.workspace.Select(res.Conversation.ID); err != nil {
			return NewCommandError("ask", "save", "could not select conversation", err)
		}
		saved = true
	}

	switch {
	case args.JSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(AskResult{
			ConversationID: res.Conversation.ID,
			Answer:         answer,
			Stopped:        res.Stopped,
			Saved:          saved,
			QueryBytes:     len(res.Query),
			Messages:       len(res.Conversation.Messages),
		})
	case render:
		fmt.Fprint(out, renderMarkdown(answer, GetTerminalWidth()))
	default:
		if printed < len(answer) {
			fmt.Fprint(out, answer[printed:])
		}
		if answer != "" && !strings.HasSuffix(answer, "\n") {
			fmt.Fprintln(out)
		}
	}

	if res.Stopped {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("[stopped]"))
	}
	if saved && args.Verbose {
		fmt.Fprintln(os.Stderr, DimStyle.Render("conversation "+res.Conversation.ID))
	}
	return nil
}

// isTerminalReader reports whether r is a file attached to a terminal.
func isTerminalReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && isTerminalWriter(f)
}
