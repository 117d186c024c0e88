// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for wiserchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (WISERCHAT_*)
//   - ~/.wiserchat/config.toml
//   - ~/.wiserchat/config.json (comments and trailing commas allowed)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fwd := forwarder.New(client, forwarder.WithByteLimit(cfg.Forward.ByteLimit))
//
// Watch keeps a running server in sync with edits to the file:
//
//	go config.Watch(ctx, config.ActivePath(), 0, func(c *config.Config) {
//	    fwd.Reconfigure(c.Forward.ByteLimit, forwarder.Scope(c.Forward.HistoryScope))
//	})
package config
