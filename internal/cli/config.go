// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for wiserchat.
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: (none)
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value and save the config file
//   keys                List every configuration key
//   path                Show configuration file path
//
// Examples:
//   wiserchat config
//   wiserchat config get forward.byte_limit
//   wiserchat config set upstream.endpoint http://answers.internal/api/query
//   wiserchat config set forward.history_scope transcript
//   wiserchat config set server.allowed_ips 10.0.0.0/8,192.168.1.5
//
// Flags:
//   --json              Output in JSON format
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/wiserchat/internal/config"
)

// HandleConfig handles the "config" command.
func HandleConfig(args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		cfg, err := loadConfig(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, cfg.String())
		return nil

	case "get":
		return handleConfigGet(args, out)

	case "set":
		return handleConfigSet(args, out)

	case "keys":
		if args.JSON {
			return writeJSON(out, config.GetAllKeys())
		}
		for _, key := range config.GetAllKeys() {
			fmt.Fprintln(out, key)
		}
		return nil

	case "path":
		path := writablePath(args)
		if args.JSON {
			return writeJSON(out, map[string]interface{}{
				"path":   path,
				"exists": fileExists(path),
			})
		}
		fmt.Fprintln(out, path)
		return nil

	default:
		return &UsageError{
			Command: "config",
			Err:     fmt.Errorf("unknown subcommand %q", args.Subcommand),
			Hint:    "Subcommands: show, get, set, keys, path",
		}
	}
}

func handleConfigGet(args Args, out io.Writer) error {
	if len(args.Positional) == 0 {
		return NewValidationErrorWithExample("key", "", "no config key provided", "wiserchat config get forward.byte_limit")
	}
	key := strings.ToLower(args.Positional[0])

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: "unknown config key (see 'wiserchat config keys')"}
	}

	if args.JSON {
		return writeJSON(out, map[string]interface{}{"key": key, "value": maskIfSecret(key, value)})
	}
	if items, ok := value.([]string); ok {
		value = strings.Join(items, ",")
	}
	fmt.Fprintln(out, maskIfSecret(key, value))
	return nil
}

// handleConfigSet writes one key to the config file. Only the file's own
// values and defaults are saved; environment overrides are not.
func handleConfigSet(args Args, out io.Writer) error {
	if len(args.Positional) < 2 {
		return NewValidationErrorWithExample("arguments", strings.Join(args.Positional, " "),
			"config set needs a key and a value", "wiserchat config set forward.byte_limit 8000")
	}
	key := strings.ToLower(args.Positional[0])
	value := strings.Join(args.Positional[1:], " ")

	path := writablePath(args)
	cfg := config.Default()
	if fileExists(path) {
		var err error
		if strings.HasSuffix(path, ".json") {
			err = config.LoadJSON(cfg, path)
		} else {
			err = config.LoadTOML(cfg, path)
		}
		if err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}

	var err error
	if strings.HasSuffix(path, ".json") {
		err = config.SaveJSON(cfg, path)
	} else {
		err = config.SaveTOML(cfg, path)
	}
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "%s %s = %v\n", SuccessStyle.Render("[OK]"), key, maskIfSecret(key, value))
	return nil
}

// writablePath is the file set writes to: --config, the active file, or
// the default TOML path.
func writablePath(args Args) string {
	if path := configPath(args); path != "" {
		return path
	}
	path, err := config.ConfigPathTOML()
	if err != nil {
		return ""
	}
	return path
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// maskIfSecret hides all but the last four characters of secret values.
func maskIfSecret(key string, value interface{}) interface{} {
	if !strings.Contains(key, "token") {
		return value
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
