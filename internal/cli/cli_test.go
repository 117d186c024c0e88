// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/wiserchat/internal/config"
	"github.com/jeranaias/wiserchat/internal/model"
	"github.com/jeranaias/wiserchat/internal/storage"
	"github.com/jeranaias/wiserchat/internal/upstream"
	"github.com/jeranaias/wiserchat/internal/workspace"
)

// =============================================================================
// HELPERS
// =============================================================================

// isolate points HOME at a temp dir and clears environment overrides so
// tests never read the developer's config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, name := range []string{
		"WISERCHAT_ENDPOINT", "WISERCHAT_PORT", "WISERCHAT_BYTE_LIMIT",
		"WISERCHAT_STORAGE", "WISERCHAT_DATA_DIR", "WISERCHAT_AUTH_TOKEN",
	} {
		t.Setenv(name, "")
	}
	return home
}

// answerServer is an upstream that answers every query with answer and
// records the last query it saw.
func answerServer(t *testing.T, status int, body string) (*httptest.Server, func() string) {
	t.Helper()
	var (
		mu        sync.Mutex
		lastQuery string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		lastQuery = gjson.GetBytes(data, "query").String()
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() string {
		mu.Lock()
		defer mu.Unlock()
		return lastQuery
	}
}

func seedConversation(t *testing.T, dataDir, name string, msgs ...model.Message) *model.Conversation {
	t.Helper()
	store, err := storage.Open(storage.BackendFile, dataDir)
	require.NoError(t, err)
	defer store.Close()

	conv := model.NewConversation()
	conv.Name = name
	conv.Messages = model.Transcript(msgs)
	require.NoError(t, workspace.New(store).UpdateConversation(conv))
	return conv
}

func storedConversations(t *testing.T, dataDir string) []*model.Conversation {
	t.Helper()
	store, err := storage.Open(storage.BackendFile, dataDir)
	require.NoError(t, err)
	defer store.Close()

	convs, err := workspace.New(store).Conversations()
	require.NoError(t, err)
	return convs
}

// =============================================================================
// PARSE
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{
			name:    "no arguments starts chat",
			argv:    nil,
			wantCmd: CmdChat,
		},
		{
			name:    "flags without command start chat",
			argv:    []string{"--scope", "transcript"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "transcript", a.Scope)
			},
		},
		{
			name:    "serve with host and port",
			argv:    []string{"serve", "--host", "0.0.0.0", "-p", "9000"},
			wantCmd: CmdServe,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "0.0.0.0", a.Host)
				require.Equal(t, 9000, a.Port)
				require.False(t, a.RateLimitSet)
			},
		},
		{
			name:    "serve rate limit zero is recorded",
			argv:    []string{"server", "--rate-limit", "0"},
			wantCmd: CmdServe,
			validate: func(t *testing.T, a Args) {
				require.True(t, a.RateLimitSet)
				require.Equal(t, 0, a.RatePerMin)
			},
		},
		{
			name:    "ask joins positional words",
			argv:    []string{"ask", "what", "is", "go"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "what is go", a.Query())
			},
		},
		{
			name:    "ask flags between words",
			argv:    []string{"ask", "hello", "--raw", "-c", "abc", "world", "--byte-limit=512"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				require.True(t, a.Raw)
				require.Equal(t, "abc", a.ConversationID)
				require.Equal(t, 512, a.ByteLimit)
				require.Equal(t, "hello world", a.Query())
			},
		},
		{
			name:    "conversations subcommand",
			argv:    []string{"conv", "export", "--format", "yaml", "-o", "out.yaml"},
			wantCmd: CmdConversations,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "export", a.Subcommand)
				require.Equal(t, "yaml", a.Format)
				require.Equal(t, "out.yaml", a.Output)
				require.Empty(t, a.Positional)
			},
		},
		{
			name:    "config set",
			argv:    []string{"config", "SET", "forward.byte_limit", "8000"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				require.Equal(t, "set", a.Subcommand)
				require.Equal(t, []string{"forward.byte_limit", "8000"}, a.Positional)
			},
		},
		{
			name:    "version flag",
			argv:    []string{"--version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "help flag",
			argv:    []string{"-h"},
			wantCmd: CmdHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			require.NoError(t, err)
			require.Equal(t, tt.wantCmd, cmd)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, _, err := Parse([]string{"srve"})
	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
	require.Contains(t, usageErr.Hint, `"serve"`)
	require.Equal(t, ExitUsageError, ExitCode(err))

	_, _, err = Parse([]string{"serve", "--bogus"})
	require.ErrorAs(t, err, &usageErr)
	require.Equal(t, "serve", usageErr.Command)

	// --port is a serve flag only.
	_, _, err = Parse([]string{"ask", "--port", "1"})
	require.ErrorAs(t, err, &usageErr)

	_, _, err = Parse([]string{"ask", "--help"})
	require.ErrorIs(t, err, ErrHelpRequested)
}

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"srve", "serve"},
		{"chta", "chat"},
		{"confg", "config"},
		{"conversatons", "conversations"},
		{"serve", ""},
		{"x", ""},
		{"zzzzzzzz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.want, SuggestCommand(tt.input))
		})
	}
}

func TestPrintUsageAndVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)
	require.Contains(t, buf.String(), "wiserchat serve")
	require.Contains(t, buf.String(), Version)

	buf.Reset()
	PrintVersion(&buf)
	require.Contains(t, buf.String(), "wiserchat version "+Version)
}

// =============================================================================
// ERRORS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Err: errors.New("bad")}, ExitUsageError},
		{"validation", NewValidationErrorWithExample("id", "", "required", ""), ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "x", Message: "y"}}), ExitConfigError},
		{"not found", fmt.Errorf("open conversation: %w", storage.ErrNotFound), ExitNotFoundError},
		{"timeout", fmt.Errorf("wrap: %w", context.DeadlineExceeded), ExitTimeoutError},
		{"network", &upstream.NetworkError{Op: "POST", URL: "http://x", Err: errors.New("refused")}, ExitNetworkError},
		{"api", &upstream.APIError{Type: "rate_limit", Status: 429}, ExitUpstreamError},
		{"status", &upstream.StatusError{Status: 502}, ExitUpstreamError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDisplayErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, NewCommandError("conversations", "export", "disk full", nil), true)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "command_error", out["error_type"])
	require.Equal(t, false, out["success"])
	require.Equal(t, "export", out["action"])
	require.Equal(t, false, out["retryable"])
}

func TestDisplayError_RateLimited(t *testing.T) {
	err := fmt.Errorf("ask: %w", &upstream.APIError{Type: "rate_limit", Status: 429, Message: "slow down"})

	var buf bytes.Buffer
	DisplayError(&buf, err, false)
	require.Contains(t, buf.String(), "slow down")
	require.Contains(t, buf.String(), rateLimitHint)

	buf.Reset()
	DisplayError(&buf, &upstream.StatusError{Status: 502, StatusText: "Bad Gateway"}, false)
	require.NotContains(t, buf.String(), rateLimitHint)

	buf.Reset()
	DisplayError(&buf, err, true)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, true, out["retryable"])
	require.Equal(t, "upstream_error", out["error_type"])
	require.Equal(t, float64(429), out["status"])
}

// =============================================================================
// CONFIG LOADING
// =============================================================================

func TestApplyOverrides(t *testing.T) {
	cfg := config.Default()
	applyOverrides(cfg, Args{
		Endpoint:     "http://answers.test/q",
		ByteLimit:    900,
		Scope:        "transcript",
		Port:         9001,
		Storage:      "sqlite",
		RateLimitSet: true,
	})
	require.Equal(t, "http://answers.test/q", cfg.Upstream.Endpoint)
	require.Equal(t, 900, cfg.Forward.ByteLimit)
	require.Equal(t, "transcript", cfg.Forward.HistoryScope)
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, 0, cfg.Server.RateLimitPerMinute)

	cfg = config.Default()
	applyOverrides(cfg, Args{})
	require.Equal(t, config.Default().Server.RateLimitPerMinute, cfg.Server.RateLimitPerMinute)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	isolate(t)
	_, err := loadConfig(Args{Scope: "everything"})
	require.Error(t, err)
	require.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// ASK
// =============================================================================

func TestHandleAskCommand_PlainOutput(t *testing.T) {
	isolate(t)
	up, lastQuery := answerServer(t, http.StatusOK, `{"answer":"Hello there"}`)
	dataDir := t.TempDir()

	var out bytes.Buffer
	args := Args{Endpoint: up.URL, DataDir: dataDir, Positional: []string{"Hi"}}
	require.NoError(t, HandleAskCommand(context.Background(), args, strings.NewReader(""), &out))

	require.Equal(t, "Hello there\n", out.String())
	require.Contains(t, lastQuery(), "Hi")
	require.Empty(t, storedConversations(t, dataDir))
}

func TestHandleAskCommand_StdinAndSave(t *testing.T) {
	isolate(t)
	up, lastQuery := answerServer(t, http.StatusOK, `{"answer":"**done**"}`)
	dataDir := t.TempDir()

	var out bytes.Buffer
	args := Args{Endpoint: up.URL, DataDir: dataDir, Save: true, JSON: true}
	require.NoError(t, HandleAskCommand(context.Background(), args, strings.NewReader("question from stdin\n"), &out))
	require.Contains(t, lastQuery(), "question from stdin")

	var result AskResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Equal(t, "**done**", result.Answer)
	require.True(t, result.Saved)
	require.False(t, result.Stopped)
	require.Equal(t, 2, result.Messages)
	require.Positive(t, result.QueryBytes)

	convs := storedConversations(t, dataDir)
	require.Len(t, convs, 1)
	require.Equal(t, result.ConversationID, convs[0].ID)
	require.Equal(t, "question from stdin", convs[0].Name)
}

func TestHandleAskCommand_ContinuesConversation(t *testing.T) {
	isolate(t)
	up, _ := answerServer(t, http.StatusOK, `{"answer":"second answer"}`)
	dataDir := t.TempDir()
	conv := seedConversation(t, dataDir, "earlier",
		model.UserMessage("first"), model.AssistantMessage("first answer"))

	var out bytes.Buffer
	args := Args{Endpoint: up.URL, DataDir: dataDir, ConversationID: conv.ID, Positional: []string{"again"}}
	require.NoError(t, HandleAskCommand(context.Background(), args, nil, &out))

	convs := storedConversations(t, dataDir)
	require.Len(t, convs, 1)
	require.Len(t, convs[0].Messages, 4)
	require.Equal(t, "earlier", convs[0].Name)
}

func TestHandleAskCommand_Errors(t *testing.T) {
	isolate(t)

	t.Run("no question", func(t *testing.T) {
		err := HandleAskCommand(context.Background(), Args{DataDir: t.TempDir()}, strings.NewReader("  "), io.Discard)
		var validErr *ValidationError
		require.ErrorAs(t, err, &validErr)
		require.Equal(t, ExitUsageError, ExitCode(err))
	})

	t.Run("upstream rate limit", func(t *testing.T) {
		up, _ := answerServer(t, http.StatusTooManyRequests,
			`{"error":{"type":"rate_limit","message":"Too many requests","code":"429"}}`)
		dataDir := t.TempDir()
		args := Args{Endpoint: up.URL, DataDir: dataDir, Save: true, Positional: []string{"Hi"}}

		err := HandleAskCommand(context.Background(), args, nil, io.Discard)
		var apiErr *upstream.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "rate_limit", apiErr.Type)
		require.Equal(t, ExitUpstreamError, ExitCode(err))
		require.Empty(t, storedConversations(t, dataDir))
	})

	t.Run("unknown conversation", func(t *testing.T) {
		up, _ := answerServer(t, http.StatusOK, `{"answer":"x"}`)
		args := Args{Endpoint: up.URL, DataDir: t.TempDir(), ConversationID: "missing", Positional: []string{"Hi"}}
		err := HandleAskCommand(context.Background(), args, nil, io.Discard)
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.Equal(t, ExitNotFoundError, ExitCode(err))
	})
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestHandleConversations_ListShowDelete(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	conv := seedConversation(t, dataDir, "Token buckets",
		model.UserMessage("what is a token bucket"), model.AssistantMessage("a rate limiter"))
	seedConversation(t, dataDir, "Other", model.UserMessage("unrelated"))

	var out bytes.Buffer
	require.NoError(t, HandleConversations(Args{DataDir: dataDir}, nil, &out))
	require.Contains(t, out.String(), "Token buckets")
	require.Contains(t, out.String(), "Other")

	out.Reset()
	require.NoError(t, HandleConversations(Args{DataDir: dataDir, Subcommand: "search", Positional: []string{"limiter"}, JSON: true}, nil, &out))
	var found []*model.Conversation
	require.NoError(t, json.Unmarshal(out.Bytes(), &found))
	require.Len(t, found, 1)
	require.Equal(t, conv.ID, found[0].ID)

	out.Reset()
	require.NoError(t, HandleConversations(Args{DataDir: dataDir, Subcommand: "show", Positional: []string{conv.ID[:8]}}, nil, &out))
	require.Contains(t, out.String(), "a rate limiter")
	require.Contains(t, out.String(), conv.ID)

	out.Reset()
	require.NoError(t, HandleConversations(Args{DataDir: dataDir, Subcommand: "delete", Positional: []string{conv.ID}}, nil, &out))
	require.Contains(t, out.String(), "Deleted")
	require.Len(t, storedConversations(t, dataDir), 1)

	err := HandleConversations(Args{DataDir: dataDir, Subcommand: "show", Positional: []string{conv.ID}}, nil, io.Discard)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleConversations_Clear(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	seedConversation(t, dataDir, "one", model.UserMessage("a"))

	err := HandleConversations(Args{DataDir: dataDir, Subcommand: "clear"}, nil, io.Discard)
	require.Equal(t, ExitUsageError, ExitCode(err))
	require.Len(t, storedConversations(t, dataDir), 1)

	require.NoError(t, HandleConversations(Args{DataDir: dataDir, Subcommand: "clear", Confirm: true}, nil, io.Discard))
	require.Empty(t, storedConversations(t, dataDir))
}

func TestHandleConversations_ExportImport(t *testing.T) {
	isolate(t)
	src := t.TempDir()
	conv := seedConversation(t, src, "exported", model.UserMessage("q"), model.AssistantMessage("a"))

	file := filepath.Join(t.TempDir(), "backup.yaml")
	var out bytes.Buffer
	require.NoError(t, HandleConversations(Args{DataDir: src, Subcommand: "export", Output: file}, nil, &out))
	require.Contains(t, out.String(), "Exported to")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "history:")

	dst := t.TempDir()
	out.Reset()
	require.NoError(t, HandleConversations(Args{DataDir: dst, Subcommand: "import", Positional: []string{file}}, nil, &out))
	require.Contains(t, out.String(), "Imported 1 conversations")

	convs := storedConversations(t, dst)
	require.Len(t, convs, 1)
	require.Equal(t, conv.ID, convs[0].ID)

	err = HandleConversations(Args{DataDir: dst, Subcommand: "export", Format: "xml"}, nil, io.Discard)
	require.Equal(t, ExitUsageError, ExitCode(err))
}

func TestHandleConversations_UnknownSubcommand(t *testing.T) {
	isolate(t)
	err := HandleConversations(Args{DataDir: t.TempDir(), Subcommand: "frobnicate"}, nil, io.Discard)
	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestHandleConfig_SetGet(t *testing.T) {
	home := isolate(t)

	var out bytes.Buffer
	require.NoError(t, HandleConfig(Args{Subcommand: "set", Positional: []string{"forward.byte_limit", "8000"}}, &out))
	require.Contains(t, out.String(), "forward.byte_limit = 8000")

	path := filepath.Join(home, ".wiserchat", "config.toml")
	require.FileExists(t, path)

	out.Reset()
	require.NoError(t, HandleConfig(Args{Subcommand: "get", Positional: []string{"forward.byte_limit"}}, &out))
	require.Equal(t, "8000\n", out.String())

	out.Reset()
	require.NoError(t, HandleConfig(Args{Subcommand: "set", Positional: []string{"server.auth_token", "supersecret"}}, &out))
	require.Contains(t, out.String(), "*******cret")
	require.NotContains(t, out.String(), "supersecret")

	out.Reset()
	require.NoError(t, HandleConfig(Args{Subcommand: "path"}, &out))
	require.Equal(t, path+"\n", out.String())
}

func TestHandleConfig_Errors(t *testing.T) {
	isolate(t)

	err := HandleConfig(Args{Subcommand: "get", Positional: []string{"nope.key"}}, io.Discard)
	require.Equal(t, ExitUsageError, ExitCode(err))

	err = HandleConfig(Args{Subcommand: "set", Positional: []string{"forward.history_scope", "everything"}}, io.Discard)
	require.Error(t, err)

	err = HandleConfig(Args{Subcommand: "set", Positional: []string{"forward.byte_limit"}}, io.Discard)
	require.Equal(t, ExitUsageError, ExitCode(err))
}

func TestHandleConfig_ShowAndKeys(t *testing.T) {
	isolate(t)

	var out bytes.Buffer
	require.NoError(t, HandleConfig(Args{AuthToken: "hidden-token"}, &out))
	require.Contains(t, out.String(), "byte_limit")

	out.Reset()
	require.NoError(t, HandleConfig(Args{Subcommand: "keys"}, &out))
	require.Contains(t, out.String(), "forward.byte_limit\n")
	require.Contains(t, out.String(), "upstream.endpoint\n")
}

// =============================================================================
// SERVE
// =============================================================================

func TestBuildServer_AuthAndRateLimit(t *testing.T) {
	isolate(t)
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()
	cfg.Server.AuthToken = "tok"
	cfg.Server.RateLimitPerMinute = 0

	svc, err := openServices(cfg)
	require.NoError(t, err)
	defer svc.Close()

	h := buildServer(cfg, svc).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, cfg.Upstream.Endpoint, gjson.GetBytes(rec.Body.Bytes(), "endpoint").String())
	require.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestServicesReload(t *testing.T) {
	isolate(t)
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()

	svc, err := openServices(cfg)
	require.NoError(t, err)
	defer svc.Close()

	next := cfg.Clone()
	next.Upstream.Endpoint = "http://reloaded.test/q"
	next.Forward.ByteLimit = 1234
	next.Forward.HistoryScope = "transcript"
	svc.reload(next)

	limit, scope := svc.forwarder.Settings()
	require.Equal(t, 1234, limit)
	require.Equal(t, "transcript", string(scope))
	require.Equal(t, "http://reloaded.test/q", svc.Endpoint())

	// A bad scope leaves the running settings alone.
	bad := next.Clone()
	bad.Forward.HistoryScope = "sideways"
	svc.reload(bad)
	limit, _ = svc.forwarder.Settings()
	require.Equal(t, 1234, limit)
}

func TestRunServer_StopsOnCancel(t *testing.T) {
	isolate(t)
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()

	svc, err := openServices(cfg)
	require.NoError(t, err)
	defer svc.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, buildServer(cfg, svc), ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
