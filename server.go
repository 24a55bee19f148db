package filed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/filed/api"
	"pkt.systems/filed/internal/correlation"
	"pkt.systems/filed/internal/pathguard"
	"pkt.systems/filed/internal/rpc"
	"pkt.systems/filed/internal/scopes"
	"pkt.systems/filed/internal/svcfields"
	"pkt.systems/filed/internal/version"
	"pkt.systems/pslog"
)

// Server exposes the sandboxed file tools over HTTP: JSON-RPC on the
// configured RPC path plus a health endpoint.
type Server struct {
	cfg        Config
	logger     pslog.Logger
	httpLog    pslog.Logger
	lifecycle  pslog.Logger
	guard      *pathguard.Resolver
	dispatcher *rpc.Dispatcher
	httpSrv    *http.Server
	telemetry  *telemetryBundle
	bodyLimit  int64

	mu        sync.Mutex
	listener  net.Listener
	readyOnce sync.Once
	readyCh   chan struct{}
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config Config
	Logger pslog.Logger
}

// NewServer constructs a filed server according to req.Config. The
// sandbox directory is created when missing.
func NewServer(req NewServerRequest) (*Server, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "filed")
	}
	guard, err := prepareSandbox(cfg)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		httpLog:   svcfields.WithSubsystem(logger, "server.http"),
		lifecycle: svcfields.WithSubsystem(logger, "server.lifecycle"),
		guard:     guard,
		readyCh:   make(chan struct{}),
		// Covers the worst-case JSON escaping of a full-size content
		// argument plus envelope overhead.
		bodyLimit: cfg.MaxFileBytes*6 + 1<<20,
	}
	s.dispatcher, err = newDispatcher(cfg, guard, logger)
	if err != nil {
		return nil, err
	}
	s.telemetry, err = setupTelemetry(context.Background(),
		cfg.OTLPEndpoint, cfg.MetricsListen, cfg.PprofListen,
		cfg.EnableProfilingMetrics, svcfields.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}
	s.httpSrv = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}
	s.logStartupMode()
	return s, nil
}

// NewDispatcher builds the JSON-RPC dispatcher for cfg without the HTTP
// layer, for transports that embed it directly such as the stdio
// command. The sandbox directory is created when missing.
func NewDispatcher(cfg Config, logger pslog.Logger) (*rpc.Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	guard, err := prepareSandbox(cfg)
	if err != nil {
		return nil, err
	}
	return newDispatcher(cfg, guard, logger)
}

func prepareSandbox(cfg Config) (*pathguard.Resolver, error) {
	if err := os.MkdirAll(cfg.AllowedDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("create allowed directory %q: %w", cfg.AllowedDirectory, err)
	}
	return pathguard.NewResolver(cfg.AllowedDirectory)
}

func newDispatcher(cfg Config, guard *pathguard.Resolver, logger pslog.Logger) (*rpc.Dispatcher, error) {
	serverVersion := strings.TrimSpace(cfg.Version)
	if serverVersion == "" {
		serverVersion = version.Current()
	}
	return rpc.NewDispatcher(rpc.NewDispatcherRequest{
		Guard:  guard,
		Policy: cfg.Policy(),
		Auth:   scopes.NewAuthorizer(cfg.Keys()),
		Info:   api.ServerInfo{Name: cfg.ServerName, Version: serverVersion},
		Logger: svcfields.WithSubsystem(logger, "rpc.dispatch"),
	})
}

func (s *Server) logStartupMode() {
	extensions := strings.Join(s.cfg.AllowedExtensions, ", ")
	if extensions == "" {
		extensions = "(all)"
	}
	s.lifecycle.Info("sandbox configured",
		"base_dir", s.guard.Base(),
		"max_file_size", humanize.IBytes(uint64(s.cfg.MaxFileBytes)),
		"allowed_extensions", extensions,
	)
	if s.cfg.Unrestricted() {
		s.lifecycle.Warn("authentication disabled",
			"impact", "every caller holds every scope")
		return
	}
	keys := 0
	for _, key := range []string{s.cfg.ReadKey, s.cfg.WriteKey, s.cfg.AdminKey} {
		if key != "" {
			keys++
		}
	}
	s.lifecycle.Info("authentication enabled", "keys", keys)
}

// Handler returns the HTTP handler serving the RPC and health
// endpoints, usable directly in tests without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(DefaultHealthPath, s.handleHealth)
	mux.HandleFunc(s.cfg.RPCPath, s.handleRPC)
	var handler http.Handler = mux
	if strings.TrimSpace(s.cfg.OTLPEndpoint) != "" {
		handler = otelhttp.NewHandler(mux, "filed.http")
	}
	return handler
}

// BaseDirectory returns the canonical sandbox root.
func (s *Server) BaseDirectory() string {
	return s.guard.Base()
}

// Run serves HTTP until ctx is cancelled or the listener fails. It is
// the blocking entrypoint the CLI uses.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.signalReady()
	s.lifecycle.Info("server.listen.ready",
		"listen", ln.Addr().String(),
		"rpc_path", s.cfg.RPCPath,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.shutdownTelemetry()
		if err != nil {
			return err
		}
		s.lifecycle.Info("server.shutdown.complete")
		return nil
	case err := <-errCh:
		s.shutdownTelemetry()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdownTelemetry() {
	if s.telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.telemetry.Shutdown(ctx)
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() { close(s.readyCh) })
}

// WaitUntilReady blocks until the listener is bound or ctx ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr reports the bound address; nil before Run binds it.
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// StartServer runs a new server in the background and returns once its
// listener is bound. The returned stop function shuts the server down
// and waits for Run to finish. Cancelling ctx stops the server too.
//
//	srv, stop, err := filed.StartServer(ctx, filed.NewServerRequest{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stop(context.Background())
func StartServer(ctx context.Context, req NewServerRequest) (*Server, func(context.Context) error, error) {
	srv, err := NewServer(req)
	if err != nil {
		return nil, nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(runCtx)
	}()

	waitBase := ctx
	if waitBase == nil {
		waitBase = context.Background()
	}
	waitCtx, waitCancel := context.WithCancel(waitBase)
	defer waitCancel()
	readyCh := make(chan error, 1)
	go func() {
		readyCh <- srv.WaitUntilReady(waitCtx)
	}()
	select {
	case err := <-errCh:
		// Run returned before the listener came up, usually a bind failure.
		cancel()
		if err == nil {
			err = errors.New("server exited before binding its listener")
		}
		return nil, nil, err
	case err := <-readyCh:
		if err != nil {
			cancel()
			<-errCh
			return nil, nil, err
		}
	}

	var (
		stopOnce sync.Once
		stopErr  error
	)
	stop := func(stopCtx context.Context) error {
		stopOnce.Do(func() {
			cancel()
			if stopCtx == nil {
				stopCtx = context.Background()
			}
			select {
			case stopErr = <-errCh:
			case <-stopCtx.Done():
				stopErr = stopCtx.Err()
			}
		})
		return stopErr
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = stop(context.Background())
		}()
	}
	return srv, stop, nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.DisableCORS {
		writeCORSHeaders(w)
	}
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	if cid := r.Header.Get("X-Correlation-ID"); cid != "" {
		ctx = correlation.Set(ctx, cid)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.bodyLimit))
	if err != nil {
		s.httpLog.Warn("rpc.request.body_read_failed", "error", err, "remote", r.RemoteAddr)
		writeJSON(w, api.Response{
			JSONRPC: "2.0",
			Error:   &api.ErrorObject{Code: api.CodeParseError, Message: "Parse error"},
		})
		return
	}
	out := s.dispatcher.Dispatch(ctx, body, rpc.Caller{Token: clientToken(r)})
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(out); err != nil {
		s.httpLog.Debug("rpc.response.write_failed", "error", err)
	}
}

// handleHealth serves liveness outside authentication.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, api.HealthResponse{Status: "healthy", Server: s.cfg.ServerName})
}

// clientToken extracts the API key from the X-API-Key header or a
// bearer token. X-API-Key wins when both are present.
func clientToken(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization, X-Correlation-ID")
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
