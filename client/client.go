package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/filed/api"
)

const (
	defaultRPCPath     = "/"
	defaultHealthPath  = "/health"
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to a filed server over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL string
	rpcPath string
	apiKey  string
	httpCli *http.Client

	nextID    atomic.Int64
	closeOnce sync.Once
}

// Option customises a Client.
type Option func(*Client)

// WithAPIKey authenticates every request with the given key, sent in
// the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.httpCli = cli
		}
	}
}

// WithHTTPTimeout overrides the default request timeout. It has no
// effect when WithHTTPClient supplies a custom client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpCli.Timeout = d
		}
	}
}

// WithRPCPath points the client at a server using a non-default RPC path.
func WithRPCPath(path string) Option {
	return func(c *Client) {
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		c.rpcPath = path
	}
}

// New constructs a client for the filed server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("baseURL required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in baseURL", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("baseURL %q missing host", trimmed)
	}
	c := &Client{
		baseURL: strings.TrimRight(trimmed, "/"),
		rpcPath: defaultRPCPath,
		httpCli: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.httpCli.CloseIdleConnections()
	})
	return nil
}

// RPCError describes a JSON-RPC error response from filed.
type RPCError struct {
	// Code is the JSON-RPC error code returned by the server.
	Code int
	// Message is the human-readable error text.
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("filed: %s (code %d)", e.Message, e.Code)
}

// Initialize performs the MCP handshake and returns the server identity.
func (c *Client) Initialize(ctx context.Context) (api.InitializeResult, error) {
	var result api.InitializeResult
	err := c.call(ctx, "initialize", nil, &result)
	return result, err
}

// ListTools returns the server's tool catalogue.
func (c *Client) ListTools(ctx context.Context) ([]api.ToolDescriptor, error) {
	var result api.ToolsListResult
	if err := c.call(ctx, "tools/list", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name and returns the text content of its
// result. Failures surface as *RPCError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	var result api.ToolResult
	params := api.ToolsCallParams{Name: name, Arguments: args}
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, item := range result.Content {
		if item.Type == "text" {
			b.WriteString(item.Text)
		}
	}
	return b.String(), nil
}

// Health checks the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+defaultHealthPath, nil)
	if err != nil {
		return out, fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("filed: health status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode health response: %w", err)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		rawParams = encoded
	}
	id, err := json.Marshal(c.nextID.Add(1))
	if err != nil {
		return fmt.Errorf("encode request id: %w", err)
	}
	body, err := json.Marshal(api.Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.rpcPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("filed: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var envelope struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      json.RawMessage  `json:"id"`
		Result  json.RawMessage  `json:"result"`
		Error   *api.ErrorObject `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Error != nil {
		return &RPCError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("filed: response carries neither result nor error")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
