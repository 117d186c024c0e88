// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jeranaias/wiserchat/internal/stream"
)

// Configuration constants for the answer service.
const (
	// DefaultEndpoint is the query URL used when none is configured.
	DefaultEndpoint = "http://localhost:8000/api/query"

	// DefaultTimeout bounds a single request. Zero disables the bound.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the default limit on a response body.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	userAgent = "wiserchat/1.0"
)

// sharedTransport pools connections across clients.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// Client sends queries to the answer service.
type Client struct {
	endpoint        string
	httpClient      *http.Client
	maxResponseSize int64
}

// NewClient creates a client for the given query endpoint.
// An empty endpoint means DefaultEndpoint.
func NewClient(endpoint string) *Client {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		maxResponseSize: MaxResponseSize,
	}
}

// WithTimeout sets the per-request timeout. Zero means no timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	hc := *c.httpClient
	hc.Timeout = timeout
	c.httpClient = &hc
	return c
}

// WithMaxResponseSize sets the response body limit in bytes.
func (c *Client) WithMaxResponseSize(n int64) *Client {
	if n > 0 {
		c.maxResponseSize = n
	}
	return c
}

// Endpoint returns the configured query URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts query to the answer service and returns its answer.
func (c *Client) Send(ctx context.Context, query string) (string, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "query", query)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("UPSTREAM_FAILED | host=%s error=%v", c.host(), err)
		return "", &NetworkError{Op: "POST", URL: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	log.Printf("UPSTREAM_RESPONSE | host=%s status=%d query_bytes=%d duration=%v",
		c.host(), resp.StatusCode, len(query), time.Since(start).Round(time.Millisecond))

	data, err := c.readResponse(resp)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", handleErrorResponse(resp, data)
	}
	return parseAnswer(data)
}

// Stream sends query and wraps the answer as a chunk source.
func (c *Client) Stream(ctx context.Context, query string) (stream.Source, error) {
	answer, err := c.Send(ctx, query)
	if err != nil {
		return nil, err
	}
	return stream.FromText(answer), nil
}

// readResponse reads the body with a size limit.
func (c *Client) readResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize+1))
	if err != nil {
		return nil, &NetworkError{Op: "read", URL: c.endpoint, Err: err}
	}
	if int64(len(data)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, c.maxResponseSize)
	}
	return data, nil
}

// host returns the endpoint host for logging, never the full URL.
func (c *Client) host() string {
	u, err := url.Parse(c.endpoint)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// parseAnswer extracts the answer field of a 200 response.
func parseAnswer(data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyResponseBody
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: body is not valid JSON", ErrMalformedResponse)
	}

	answer := gjson.GetBytes(data, "answer")
	switch answer.Type {
	case gjson.String:
		return answer.Str, nil
	case gjson.Null:
		// Missing and explicit null both land here.
		return "", ErrEmptyResponseBody
	default:
		return "", fmt.Errorf("%w: answer is %s", ErrMalformedResponse, answer.Type)
	}
}

// handleErrorResponse maps a non-200 response to an error.
func handleErrorResponse(resp *http.Response, data []byte) error {
	if gjson.ValidBytes(data) {
		obj := gjson.GetBytes(data, "error")
		if obj.IsObject() {
			return &APIError{
				Type:    obj.Get("type").String(),
				Message: obj.Get("message").String(),
				Param:   obj.Get("param").String(),
				Code:    obj.Get("code").String(),
				Status:  resp.StatusCode,
			}
		}
	}

	return &StatusError{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       strings.TrimSpace(string(data)),
	}
}
