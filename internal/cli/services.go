// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// services.go - Config loading and service construction shared by commands.
package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/jeranaias/wiserchat/internal/config"
	"github.com/jeranaias/wiserchat/internal/forwarder"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/upstream"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// =============================================================================
// CONFIG
// =============================================================================

// loadConfig reads the config named by --config, or the default search
// path, then applies flag overrides and validates the result.
func loadConfig(args Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			if cfg == nil {
				return nil, err
			}
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
	}

	applyOverrides(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns the file serve should watch, or "".
func configPath(args Args) string {
	if args.ConfigPath != "" {
		return args.ConfigPath
	}
	return config.ActivePath()
}

// applyOverrides copies flags that were set onto cfg.
func applyOverrides(cfg *config.Config, args Args) {
	if args.Endpoint != "" {
		cfg.Upstream.Endpoint = args.Endpoint
	}
	if args.ByteLimit > 0 {
		cfg.Forward.ByteLimit = args.ByteLimit
	}
	if args.Scope != "" {
		cfg.Forward.HistoryScope = args.Scope
	}
	if args.Storage != "" {
		cfg.Storage.Backend = args.Storage
	}
	if args.DataDir != "" {
		cfg.Storage.Dir = args.DataDir
	}
	if args.Host != "" {
		cfg.Server.Host = args.Host
	}
	if args.Port > 0 {
		cfg.Server.Port = args.Port
	}
	if args.AuthToken != "" {
		cfg.Server.AuthToken = args.AuthToken
	}
	if args.RateLimitSet {
		cfg.Server.RateLimitPerMinute = args.RatePerMin
	}
}

// setupLogging sends the standard logger to stderr when verbose and
// discards it otherwise.
func setupLogging(args Args) {
	if args.Verbose {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.Discard)
}

// =============================================================================
// SERVICES
// =============================================================================

// services is the object graph every command works against.
type services struct {
	store     storage.Store
	workspace *workspace.Workspace
	forwarder *forwarder.Forwarder

	mu       sync.RWMutex
	endpoint string
}

// newClient builds the upstream client for cfg.
func newClient(cfg *config.Config) *upstream.Client {
	return upstream.NewClient(cfg.Upstream.Endpoint).
		WithTimeout(cfg.Upstream.Timeout()).
		WithMaxResponseSize(cfg.Upstream.MaxResponseBytes)
}

// openServices opens storage and builds the forwarder from cfg.
func openServices(cfg *config.Config) (*services, error) {
	backend, err := storage.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}
	scope, err := forwarder.ParseScope(cfg.Forward.HistoryScope)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(backend, cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", backend, err)
	}

	fwd := forwarder.New(newClient(cfg),
		forwarder.WithByteLimit(cfg.Forward.ByteLimit),
		forwarder.WithScope(scope),
	)

	log.Printf("SERVICES_OPEN | storage=%s dir=%s endpoint=%s byte_limit=%d scope=%s",
		backend, cfg.Storage.Dir, cfg.Upstream.Endpoint, cfg.Forward.ByteLimit, scope)

	return &services{
		store:     store,
		workspace: workspace.New(store),
		forwarder: fwd,
		endpoint:  cfg.Upstream.Endpoint,
	}, nil
}

// Endpoint returns the upstream URL currently in use.
func (s *services) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// reload applies a changed config to the running forwarder. Storage
// settings need a restart.
func (s *services) reload(cfg *config.Config) {
	scope, err := forwarder.ParseScope(cfg.Forward.HistoryScope)
	if err != nil {
		log.Printf("CONFIG_RELOAD_ERROR | err=%v", err)
		return
	}

	s.forwarder.SetSender(newClient(cfg))
	s.forwarder.Reconfigure(cfg.Forward.ByteLimit, scope)

	s.mu.Lock()
	s.endpoint = cfg.Upstream.Endpoint
	s.mu.Unlock()

	log.Printf("CONFIG_RELOAD | endpoint=%s byte_limit=%d scope=%s",
		cfg.Upstream.Endpoint, cfg.Forward.ByteLimit, scope)
}

// Close releases storage.
func (s *services) Close() error {
	return s.store.Close()
}
