// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Type
}

// =============================================================================
// AUTH
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	auth := &AuthConfig{Enabled: true, BearerToken: "secret"}
	h := AuthMiddleware(auth)(okHandler)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"api without token", "/api/conversations", "", http.StatusUnauthorized},
		{"api with wrong scheme", "/api/conversations", "Basic c2VjcmV0", http.StatusUnauthorized},
		{"api with wrong token", "/api/conversations", "Bearer nope", http.StatusUnauthorized},
		{"api with token", "/api/conversations", "Bearer secret", http.StatusOK},
		{"ui without token", "/", "", http.StatusOK},
		{"health without token", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(h, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				require.Equal(t, "auth_error", errorType(t, rec))
			}
		})
	}
}

func TestAuthMiddleware_AllowedIPs(t *testing.T) {
	auth := &AuthConfig{
		Enabled:     true,
		BearerToken: "secret",
		AllowedIPs:  []string{"192.0.2.0/24", "2001:db8::1"},
	}
	h := AuthMiddleware(auth)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.55:4000"
	require.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:4000"
	require.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := serve(h, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "auth_error", errorType(t, rec))
}

func TestAuthMiddleware_IPOnly(t *testing.T) {
	h := AuthMiddleware(&AuthConfig{Enabled: true, AllowedIPs: []string{"192.0.2.0/24"}})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	require.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	require.Equal(t, http.StatusForbidden, serve(h, req).Code)
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	h := AuthMiddleware(DefaultAuthConfig())(okHandler)
	require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil)).Code)

	h = AuthMiddleware(nil)(okHandler)
	require.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil)).Code)
}

func TestValidateBearerToken(t *testing.T) {
	require.True(t, ValidateBearerToken("abc", "abc"))
	require.False(t, ValidateBearerToken("abc", "abd"))
	require.False(t, ValidateBearerToken("", ""))
	require.False(t, ValidateBearerToken("abc", ""))
}

// =============================================================================
// CORS
// =============================================================================

func TestCORSMiddleware(t *testing.T) {
	cors := &CORSConfig{
		AllowedOrigins: []string{"http://localhost:8080", "*.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}
	h := CORSMiddleware(cors)(okHandler)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "http://localhost:8080")
		rec := serve(h, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "http://localhost:8080", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
		require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("wildcard subdomain", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://chat.example.com")
		rec := serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.test")
		rec := serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	h := RateLimitMiddleware(limiter)(okHandler)

	for i := 0; i < 2; i++ {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, "rate_limit", errorType(t, rec))

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.RemoteAddr = "198.51.100.9:5000"
	require.Equal(t, http.StatusOK, serve(h, req).Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(60, 0)
	require.True(t, limiter.Allow("192.0.2.1"))
	require.True(t, limiter.Allow("192.0.2.2"))
	require.Equal(t, 0, limiter.Cleanup())

	limiter.idle = 0
	require.Equal(t, 2, limiter.Cleanup())
	require.Empty(t, limiter.limiters)
}

// =============================================================================
// HEADERS, RECOVERY, CHAIN
// =============================================================================

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := SecurityHeadersMiddleware()(okHandler)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	require.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "server_error", errorType(t, rec))
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("first"), mark("second"), mark("third"))(okHandler)
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestLoggingMiddleware_KeepsFlusher(t *testing.T) {
	var flushed bool
	h := LoggingMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		flushed = ok
		if ok {
			f.Flush()
		}
	}))
	serve(h, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	require.True(t, flushed)
}

// =============================================================================
// CLIENT IP
// =============================================================================

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "203.0.113.4:1000", "", "", "203.0.113.4"},
		{"untrusted peer ignores headers", "203.0.113.4:1000", "1.2.3.4", "5.6.7.8", "203.0.113.4"},
		{"trusted proxy forwarded for", "127.0.0.1:1000", "1.2.3.4, 10.0.0.1", "", "1.2.3.4"},
		{"trusted proxy real ip", "10.1.2.3:1000", "", "5.6.7.8", "5.6.7.8"},
		{"trusted proxy garbage header", "192.168.1.1:1000", "not-an-ip", "", "192.168.1.1"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			require.Equal(t, tt.want, GetClientIP(req))
		})
	}
}

func TestHandler_AuthEnabled(t *testing.T) {
	env := newTestEnv(t, answerWith(200, `{"answer":"x"}`))
	env.server.WithAuth(&AuthConfig{Enabled: true, BearerToken: "tok"})
	h := env.server.Handler()

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
}
