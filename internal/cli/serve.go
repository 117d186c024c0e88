// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The "wiserchat serve" command.
//
// Command: serve
// Short:   Serve the web UI and JSON API
// Aliases: server
//
// Examples:
//   wiserchat serve
//   wiserchat serve --host 0.0.0.0 --port 9000 --auth-token s3cret
//   wiserchat serve --endpoint http://answers.internal/api/query
//
// The config file is watched while serving; endpoint, byte limit and
// history scope changes apply to the next forward without a restart.
package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/jeranaias/wiserchat/internal/config"
	"github.com/jeranaias/wiserchat/internal/server"
)

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

// HandleServe runs the HTTP server until ctx is canceled.
func HandleServe(ctx context.Context, args Args) error {
	// The server logs every request; serve always logs.
	args.Verbose = true
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

	srv := buildServer(cfg, svc)

	if path := configPath(args); path != "" {
		go func() {
			err := config.Watch(ctx, path, config.DefaultDebounce, func(next *config.Config) {
				applyOverrides(next, args)
				svc.reload(next)
			})
			if err != nil {
				log.Printf("CONFIG_WATCH_ERROR | path=%s err=%v", path, err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}
	return runServer(ctx, srv, ln)
}

// buildServer wires the server with the auth, CORS and rate-limit
// settings from cfg.
func buildServer(cfg *config.Config, svc *services) *server.Server {
	srv := server.NewServer(cfg.Server.Addr(), svc.forwarder, svc.workspace).
		WithEndpoint(svc.Endpoint)

	if cfg.Server.AuthToken != "" || len(cfg.Server.AllowedIPs) > 0 {
		srv.WithAuth(&server.AuthConfig{
			Enabled:     true,
			BearerToken: cfg.Server.AuthToken,
			AllowedIPs:  cfg.Server.AllowedIPs,
		})
	}

	if len(cfg.Server.CORSOrigins) > 0 {
		cors := server.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSOrigins
		srv.WithCORS(cors)
	}

	if perMinute := cfg.Server.RateLimitPerMinute; perMinute > 0 {
		srv.WithRateLimiter(server.NewRateLimiter(perMinute, perMinute))
	} else {
		srv.WithRateLimiter(nil)
	}
	return srv
}

// runServer serves on ln until ctx is canceled, then shuts down gracefully.
func runServer(ctx context.Context, srv *server.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
