package client_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/filed"
	"pkt.systems/filed/api"
	"pkt.systems/filed/client"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientInitializeAndListTools(t *testing.T) {
	ts := filed.StartTestServer(t)
	ctx := testContext(t)

	info, err := ts.Client.Initialize(ctx)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if info.ProtocolVersion != api.ProtocolVersion {
		t.Fatalf("protocol version %q, want %q", info.ProtocolVersion, api.ProtocolVersion)
	}
	if info.ServerInfo.Name != filed.DefaultServerName {
		t.Fatalf("server name %q, want %q", info.ServerInfo.Name, filed.DefaultServerName)
	}

	tools, err := ts.Client.ListTools(ctx)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 21 {
		t.Fatalf("tool count %d, want 21", len(tools))
	}
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		if tool.Description == "" {
			t.Fatalf("tool %s has no description", tool.Name)
		}
		if tool.InputSchema == nil {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
	for _, want := range []string{"create_file", "read_file", "list_files", "move_directory"} {
		if !names[want] {
			t.Fatalf("tool %s missing from catalogue", want)
		}
	}
}

func TestClientToolRoundTrip(t *testing.T) {
	ts := filed.StartTestServer(t)
	ctx := testContext(t)
	cli := ts.Client

	out, err := cli.CallTool(ctx, "create_file", map[string]any{
		"file_path": "notes/hello.txt",
		"content":   "hello world",
	})
	if err != nil {
		t.Fatalf("create_file: %v", err)
	}
	if !strings.Contains(out, "Successfully created notes/hello.txt") {
		t.Fatalf("unexpected create output %q", out)
	}

	text, err := cli.CallTool(ctx, "read_file", map[string]any{"file_path": "notes/hello.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}
	if text != "File: notes/hello.txt\n\nhello world" {
		t.Fatalf("read back %q", text)
	}

	listing, err := cli.CallTool(ctx, "list_files", map[string]any{"directory_path": "notes"})
	if err != nil {
		t.Fatalf("list_files: %v", err)
	}
	if !strings.Contains(listing, "file: notes/hello.txt") {
		t.Fatalf("listing missing created file: %q", listing)
	}

	exists, err := cli.CallTool(ctx, "file_exists", map[string]any{"file_path": "notes/hello.txt"})
	if err != nil {
		t.Fatalf("file_exists: %v", err)
	}
	if exists != "Path exists: notes/hello.txt (file)" {
		t.Fatalf("unexpected file_exists output %q", exists)
	}

	if _, err := cli.CallTool(ctx, "delete_file", map[string]any{"file_path": "notes/hello.txt"}); err != nil {
		t.Fatalf("delete_file: %v", err)
	}
	_, err = cli.CallTool(ctx, "read_file", map[string]any{"file_path": "notes/hello.txt"})
	var rpcErr *client.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError after delete, got %v", err)
	}
	if rpcErr.Code != api.CodeOperationFailed {
		t.Fatalf("code %d, want %d", rpcErr.Code, api.CodeOperationFailed)
	}
	if rpcErr.Message != "File does not exist: notes/hello.txt" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}
}

func TestClientAuthAndScopes(t *testing.T) {
	ts := filed.StartTestServer(t, filed.WithTestConfigFunc(func(cfg *filed.Config) {
		cfg.ReadKey = "read-key-1"
		cfg.WriteKey = "write-key-1"
	}))
	ctx := testContext(t)

	// The auto-constructed client carries no key.
	_, err := ts.Client.ListTools(ctx)
	var rpcErr *client.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != api.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if rpcErr.Message != "Invalid API key" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}
	if !strings.Contains(rpcErr.Error(), "Invalid API key") {
		t.Fatalf("unexpected error text %q", rpcErr.Error())
	}

	reader, err := ts.NewClient(client.WithAPIKey("read-key-1"))
	if err != nil {
		t.Fatalf("new reader client: %v", err)
	}
	defer reader.Close()
	if _, err := reader.ListTools(ctx); err != nil {
		t.Fatalf("reader list tools: %v", err)
	}
	_, err = reader.CallTool(ctx, "create_file", map[string]any{
		"file_path": "a.txt",
		"content":   "x",
	})
	if !errors.As(err, &rpcErr) || rpcErr.Code != api.CodeUnauthorized {
		t.Fatalf("expected scope error, got %v", err)
	}
	if rpcErr.Message != "Access denied. Missing required scopes: write:files" {
		t.Fatalf("unexpected message %q", rpcErr.Message)
	}

	writer, err := ts.NewClient(client.WithAPIKey("write-key-1"))
	if err != nil {
		t.Fatalf("new writer client: %v", err)
	}
	defer writer.Close()
	if _, err := writer.CallTool(ctx, "create_file", map[string]any{
		"file_path": "a.txt",
		"content":   "x",
	}); err != nil {
		t.Fatalf("writer create_file: %v", err)
	}
}

func TestClientHealth(t *testing.T) {
	ts := filed.StartTestServer(t)
	ctx := testContext(t)

	health, err := ts.Client.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "healthy" {
		t.Fatalf("status %q", health.Status)
	}
	if health.Server != filed.DefaultServerName {
		t.Fatalf("server %q", health.Server)
	}
}

func TestClientCustomRPCPath(t *testing.T) {
	ts := filed.StartTestServer(t, filed.WithTestConfigFunc(func(cfg *filed.Config) {
		cfg.RPCPath = "/rpc"
	}))
	ctx := testContext(t)

	// NewTestServer wires WithRPCPath into the auto-constructed client.
	if _, err := ts.Client.ListTools(ctx); err != nil {
		t.Fatalf("list tools via custom path: %v", err)
	}

	// A client left on the default path misses the RPC endpoint entirely.
	stray, err := client.New(ts.URL())
	if err != nil {
		t.Fatalf("new stray client: %v", err)
	}
	defer stray.Close()
	if _, err := stray.ListTools(ctx); err == nil {
		t.Fatal("expected error on default path")
	}
}

func TestClientRejectsBadBaseURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		baseURL string
	}{
		{name: "empty", baseURL: "   "},
		{name: "unsupported scheme", baseURL: "ftp://host"},
		{name: "missing host", baseURL: "http://"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := client.New(tc.baseURL); err == nil {
				t.Fatalf("expected error for %q", tc.baseURL)
			}
		})
	}
}
