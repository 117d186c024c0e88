// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Conversation management commands.
//
// Command: conversations [subcommand]
// Short:   Manage stored conversations
// Aliases: conversation, conv, ls
//
// Subcommands:
//   list (default)       List conversations, most recent first
//   show <id>            Print a conversation
//   search <text>        Find conversations by name or content
//   delete <id>          Delete a conversation
//   clear --confirm      Delete every conversation
//   export               Export the workspace (--format, --output)
//   import <file>        Merge an export into the workspace (--format)
//
// IDs may be abbreviated to any unique prefix, as printed by list.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/util"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// HandleConversations dispatches the conversations subcommands.
func HandleConversations(args Args, in io.Reader, out io.Writer) error {
	setupLogging(args)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ws := svc.workspace
	switch args.Subcommand {
	case "", "list", "ls":
		convs, err := ws.Conversations()
		if err != nil {
			return err
		}
		return writeConversationList(out, convs, args.JSON)

	case "search", "find":
		convs, err := storage.Search(ws.Store(), strings.Join(args.Positional, " "))
		if err != nil {
			return err
		}
		return writeConversationList(out, convs, args.JSON)

	case "show", "cat":
		conv, err := resolveConversation(ws, firstArg(args))
		if err != nil {
			return err
		}
		if args.JSON {
			return writeJSON(out, conv)
		}
		writeTranscript(out, conv)
		return nil

	case "delete", "rm":
		conv, err := resolveConversation(ws, firstArg(args))
		if err != nil {
			return err
		}
		if err := ws.DeleteConversation(conv.ID); err != nil {
			return NewCommandError("conversations", "delete", "could not delete "+conv.ID, err)
		}
		fmt.Fprintf(out, "%s Deleted %q (%s)\n", SuccessStyle.Render("[OK]"), conv.Name, conv.ID)
		return nil

	case "clear":
		if !args.Confirm {
			return NewValidationErrorWithExample("confirmation", "", "clear deletes every conversation",
				"wiserchat conversations clear --confirm")
		}
		if err := ws.ClearConversations(); err != nil {
			return NewCommandError("conversations", "clear", "could not clear conversations", err)
		}
		fmt.Fprintf(out, "%s All conversations deleted\n", SuccessStyle.Render("[OK]"))
		return nil

	case "export":
		return exportWorkspace(ws, args, out)

	case "import":
		return importWorkspace(ws, args, in, out)

	default:
		return &UsageError{
			Command: "conversations",
			Err:     fmt.Errorf("unknown subcommand %q", args.Subcommand),
			Hint:    "Subcommands: list, show, search, delete, clear, export, import",
		}
	}
}

// firstArg returns the first positional argument, or "".
func firstArg(args Args) string {
	if len(args.Positional) == 0 {
		return ""
	}
	return args.Positional[0]
}

// resolveConversation finds a conversation by full ID or unique prefix.
func resolveConversation(ws *workspace.Workspace, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, NewValidationErrorWithExample("id", "", "a conversation id is required",
			"wiserchat conversations show 3f2a9c1e")
	}

	conv, err := ws.Conversation(id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	all, lerr := ws.Conversations()
	if lerr != nil {
		return nil, lerr
	}
	var matches []*model.Conversation
	for _, c := range all {
		if strings.HasPrefix(c.ID, id) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, err
	case 1:
		return matches[0], nil
	default:
		return nil, &ValidationError{
			Field:  "id",
			Value:  id,
			Reason: fmt.Sprintf("prefix matches %d conversations", len(matches)),
		}
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func writeConversationList(out io.Writer, convs []*model.Conversation, jsonMode bool) error {
	if jsonMode {
		if convs == nil {
			convs = []*model.Conversation{}
		}
		return writeJSON(out, convs)
	}
	fmt.Fprint(out, storage.FormatConversationList(convs))
	return nil
}

func writeTranscript(out io.Writer, conv *model.Conversation) {
	fmt.Fprintln(out, TitleStyle.Render(conv.Name))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("ID"), conv.ID)
	if !conv.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "%s%s\n", RenderLabel("Updated"), conv.UpdatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "%s%d\n", RenderLabel("Messages"), len(conv.Messages))
	fmt.Fprintln(out, RenderSeparator(60))

	for i, msg := range conv.Messages {
		if i > 0 {
			fmt.Fprintln(out)
		}
		label := RoleAssistantStyle.Render(msg.Role.DisplayName())
		if msg.Role == model.RoleUser {
			label = RoleUserStyle.Render(msg.Role.DisplayName())
		}
		fmt.Fprintln(out, label)
		fmt.Fprintln(out, msg.Content)
	}
}

func writeJSON(out io.Writer, v interface{}) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

func exportWorkspace(ws *workspace.Workspace, args Args, out io.Writer) error {
	format, err := exportFormat(args.Format, args.Output)
	if err != nil {
		return err
	}

	data, err := ws.Export(format)
	if err != nil {
		return NewCommandError("conversations", "export", "could not export workspace", err)
	}

	if args.Output == "" || args.Output == "-" {
		_, err := out.Write(data)
		return err
	}
	if err := util.AtomicWriteFile(args.Output, data, 0600); err != nil {
		return NewCommandError("conversations", "export", "could not write "+args.Output, err)
	}
	fmt.Fprintf(out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), args.Output)
	return nil
}

func importWorkspace(ws *workspace.Workspace, args Args, in io.Reader, out io.Writer) error {
	path := firstArg(args)
	if path == "" {
		return NewValidationErrorWithExample("file", "", "an export file is required (- for stdin)",
			"wiserchat conversations import backup.json")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return NewCommandError("conversations", "import", "could not read "+path, err)
	}

	format, err := exportFormat(args.Format, path)
	if err != nil {
		return err
	}

	summary, err := ws.Import(data, format)
	if err != nil {
		return NewCommandError("conversations", "import", "could not import "+path, err)
	}
	if args.JSON {
		return writeJSON(out, summary)
	}
	fmt.Fprintf(out, "%s Imported %d conversations, %d folders, %d prompts\n",
		SuccessStyle.Render("[OK]"), summary.Conversations, summary.Folders, summary.Prompts)
	return nil
}

// exportFormat uses the --format flag, falling back to the file extension.
func exportFormat(flag, path string) (workspace.Format, error) {
	if flag == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			flag = "yaml"
		}
	}
	format, err := workspace.ParseFormat(flag)
	if err != nil {
		return "", &ValidationError{Field: "format", Value: flag, Reason: "want json or yaml"}
	}
	return format, nil
}
