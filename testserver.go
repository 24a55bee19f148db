package filed

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/filed/client"
	"pkt.systems/pslog"
)

// TestServer wraps a running filed.Server with convenient handles for tests.
type TestServer struct {
	Server   *Server
	BaseURL  string
	Listener net.Addr
	Client   *client.Client
	Config   Config

	stop func(context.Context) error
}

type testingWriter struct {
	tb testing.TB
	mu sync.Mutex
	// closed guards against writes after the associated test has finished.
	closed bool
}

func (w *testingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return len(p), nil
	}
	lines := bytes.Split(p, []byte{'\n'})
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		w.tb.Helper()
		func(entry string) {
			defer func() {
				if r := recover(); r != nil {
					msg := fmt.Sprint(r)
					if strings.Contains(msg, "Log in goroutine after") {
						return
					}
					if strings.Contains(msg, "Log in goroutine during concurrent Cleanups") {
						return
					}
					panic(r)
				}
			}()
			w.tb.Log(entry)
		}(string(line))
	}
	w.mu.Unlock()
	return len(p), nil
}

func (w *testingWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// NewTestingLogger creates a structured logger that writes through testing.TB.
func NewTestingLogger(tb testing.TB, level pslog.Level) pslog.Logger {
	writer := &testingWriter{tb: tb}
	tb.Cleanup(writer.close)
	logger := pslog.NewStructured(context.Background(), writer)
	if level != pslog.NoLevel {
		logger = logger.LogLevel(level)
	}
	return logger.With("app", "testserver")
}

// Stop shuts down the server and removes any sandbox directory the test
// server created itself.
func (ts *TestServer) Stop(ctx context.Context) error {
	if ts == nil || ts.stop == nil {
		return nil
	}
	if ts.Client != nil {
		_ = ts.Client.Close()
	}
	return ts.stop(ctx)
}

// URL returns the base URL clients should use to reach the server.
func (ts *TestServer) URL() string {
	if ts == nil {
		return ""
	}
	return ts.BaseURL
}

// Addr returns the listener address the server is bound to.
func (ts *TestServer) Addr() net.Addr {
	if ts == nil {
		return nil
	}
	if ts.Listener != nil {
		return ts.Listener
	}
	if ts.Server != nil {
		return ts.Server.ListenerAddr()
	}
	return nil
}

// NewClient returns a new client configured against the test server.
func (ts *TestServer) NewClient(opts ...client.Option) (*client.Client, error) {
	if ts == nil {
		return nil, fmt.Errorf("nil test server")
	}
	options := make([]client.Option, 0, len(opts)+1)
	if ts.Config.RPCPath != "" && ts.Config.RPCPath != DefaultRPCPath {
		options = append(options, client.WithRPCPath(ts.Config.RPCPath))
	}
	options = append(options, opts...)
	return client.New(ts.BaseURL, options...)
}

type testServerOptions struct {
	cfg           Config
	mutators      []func(*Config)
	logger        pslog.Logger
	clientOpts    []client.Option
	disableClient bool
	startTimeout  time.Duration
	testTB        testing.TB
	testLogLevel  pslog.Level
}

// TestServerOption customises NewTestServer.
type TestServerOption func(*testServerOptions)

// WithTestConfig provides an explicit Config to use. Missing fields are
// still defaulted for test use.
func WithTestConfig(cfg Config) TestServerOption {
	return func(o *testServerOptions) {
		o.cfg = cfg
	}
}

// WithTestConfigFunc applies a mutation to the server configuration before start.
func WithTestConfigFunc(fn func(*Config)) TestServerOption {
	return func(o *testServerOptions) {
		if fn != nil {
			o.mutators = append(o.mutators, fn)
		}
	}
}

// WithTestLogger supplies a custom logger.
func WithTestLogger(logger pslog.Logger) TestServerOption {
	return func(o *testServerOptions) {
		o.logger = logger
	}
}

// WithTestClientOptions appends client options used when auto-constructing the helper client.
func WithTestClientOptions(opts ...client.Option) TestServerOption {
	return func(o *testServerOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithoutTestClient disables automatic client creation.
func WithoutTestClient() TestServerOption {
	return func(o *testServerOptions) {
		o.disableClient = true
	}
}

// WithTestStartTimeout overrides the wait timeout when starting the server.
func WithTestStartTimeout(d time.Duration) TestServerOption {
	return func(o *testServerOptions) {
		o.startTimeout = d
	}
}

// WithTestLoggerFromTB routes server logs to the testing logger at the supplied level.
func WithTestLoggerFromTB(tb testing.TB, level pslog.Level) TestServerOption {
	return func(o *testServerOptions) {
		o.testTB = tb
		o.testLogLevel = level
	}
}

// WithTestLoggerTB uses the testing logger with Debug level.
func WithTestLoggerTB(tb testing.TB) TestServerOption {
	return WithTestLoggerFromTB(tb, pslog.DebugLevel)
}

// NewTestServer starts a filed server suitable for tests. Call Stop to
// clean up resources. The sandbox defaults to a fresh temporary
// directory that Stop removes again.
func NewTestServer(ctx context.Context, opts ...TestServerOption) (*TestServer, error) {
	options := testServerOptions{
		startTimeout: 5 * time.Second,
		testLogLevel: pslog.DebugLevel,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := options.cfg
	for _, mut := range options.mutators {
		mut(&cfg)
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:0"
	}
	sandboxDir := ""
	if cfg.AllowedDirectory == "" {
		dir, err := os.MkdirTemp("", "filed-sandbox-*")
		if err != nil {
			return nil, fmt.Errorf("create sandbox directory: %w", err)
		}
		cfg.AllowedDirectory = dir
		sandboxDir = dir
	}
	if err := cfg.Validate(); err != nil {
		if sandboxDir != "" {
			_ = os.RemoveAll(sandboxDir)
		}
		return nil, err
	}

	logger := options.logger
	if logger == nil {
		if options.testTB != nil {
			logger = NewTestingLogger(options.testTB, options.testLogLevel)
		} else {
			logger = pslog.NoopLogger()
		}
	}

	ctxServer, cancel := context.WithCancel(context.Background())
	type startResult struct {
		srv  *Server
		stop func(context.Context) error
		err  error
	}
	resultCh := make(chan startResult, 1)
	go func() {
		srv, stop, err := StartServer(ctxServer, NewServerRequest{Config: cfg, Logger: logger})
		resultCh <- startResult{srv: srv, stop: stop, err: err}
	}()

	var (
		res     startResult
		timeout <-chan time.Time
		ctxDone <-chan struct{}
	)
	if options.startTimeout > 0 {
		timeout = time.After(options.startTimeout)
	}
	if ctx != nil {
		ctxDone = ctx.Done()
	}

	select {
	case res = <-resultCh:
	case <-timeout:
		cancel()
		res = <-resultCh
		if res.err == nil {
			res.err = fmt.Errorf("test server start timeout after %s", options.startTimeout)
		}
	case <-ctxDone:
		cancel()
		res = <-resultCh
		if res.err == nil {
			res.err = ctx.Err()
		}
	}
	if res.err != nil {
		cancel()
		if sandboxDir != "" {
			_ = os.RemoveAll(sandboxDir)
		}
		return nil, res.err
	}
	srv := res.srv
	originalStop := res.stop
	stop := func(stopCtx context.Context) error {
		cancel()
		err := originalStop(stopCtx)
		if sandboxDir != "" {
			_ = os.RemoveAll(sandboxDir)
		}
		return err
	}

	addr := srv.ListenerAddr()
	if addr == nil {
		_ = stop(context.Background())
		return nil, fmt.Errorf("test server: listener not initialised")
	}
	baseURL := "http://" + addr.String()

	var cli *client.Client
	if !options.disableClient {
		clientOpts := make([]client.Option, 0, len(options.clientOpts)+1)
		if cfg.RPCPath != DefaultRPCPath {
			clientOpts = append(clientOpts, client.WithRPCPath(cfg.RPCPath))
		}
		clientOpts = append(clientOpts, options.clientOpts...)
		var err error
		cli, err = client.New(baseURL, clientOpts...)
		if err != nil {
			_ = stop(context.Background())
			return nil, err
		}
	}

	return &TestServer{
		Server:   srv,
		BaseURL:  baseURL,
		Listener: addr,
		Client:   cli,
		Config:   cfg,
		stop:     stop,
	}, nil
}

// StartTestServer starts a test server and registers its shutdown with
// t.Cleanup. Logs route to the testing logger unless an option says
// otherwise.
func StartTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()
	combined := make([]TestServerOption, 0, len(opts)+1)
	combined = append(combined, WithTestLoggerTB(t))
	combined = append(combined, opts...)
	ts, err := NewTestServer(context.Background(), combined...)
	if err != nil {
		t.Fatalf("start test server: %v", err)
	}
	t.Cleanup(func() {
		if err := ts.Stop(context.Background()); err != nil {
			t.Fatalf("stop test server: %v", err)
		}
	})
	return ts
}
