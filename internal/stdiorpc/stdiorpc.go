// Package stdiorpc serves the JSON-RPC dispatcher over a byte stream
// with Content-Length framing, the transport MCP clients use when they
// spawn the server as a child process. Whoever wires the streams
// already controls the process, so stream callers are trusted and no
// API key is checked.
package stdiorpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/filed/internal/rpc"
	"pkt.systems/pslog"
)

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	// Dispatcher handles the decoded requests.
	Dispatcher *rpc.Dispatcher
	// In is the request stream, typically os.Stdin.
	In io.Reader
	// Out is the response stream, typically os.Stdout.
	Out io.Writer
	// Logger receives loop lifecycle events. Nil means no logging.
	Logger pslog.Logger
}

// Server reads framed requests from In and writes framed responses to
// Out, one at a time, until the stream ends.
type Server struct {
	dispatcher *rpc.Dispatcher
	in         *bufio.Reader
	out        io.Writer
	logger     pslog.Logger
}

// NewServer constructs a stdio transport over the dispatcher.
func NewServer(req NewServerRequest) (*Server, error) {
	if req.Dispatcher == nil {
		return nil, errors.New("stdiorpc: dispatcher is required")
	}
	if req.In == nil || req.Out == nil {
		return nil, errors.New("stdiorpc: in and out streams are required")
	}
	logger := req.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Server{
		dispatcher: req.Dispatcher,
		in:         bufio.NewReader(req.In),
		out:        req.Out,
		logger:     logger,
	}, nil
}

// Run serves frames until the input stream reaches a clean end, the
// stream fails, or ctx is cancelled. A clean end returns nil. After
// cancellation the reader goroutine stays blocked on its stream; stdio
// servers stop at process exit, which releases it.
func (s *Server) Run(ctx context.Context) error {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			payload, err := ReadFrame(s.in)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("stdio.serve.start")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stdio.serve.stop", "reason", "context")
			return ctx.Err()
		case payload, ok := <-frames:
			if !ok {
				// The reader closes frames without reporting when the
				// context ends mid-handoff.
				select {
				case err := <-readErr:
					if errors.Is(err, io.EOF) {
						s.logger.Info("stdio.serve.stop", "reason", "eof")
						return nil
					}
					return fmt.Errorf("stdiorpc: read frame: %w", err)
				case <-ctx.Done():
					s.logger.Info("stdio.serve.stop", "reason", "context")
					return ctx.Err()
				}
			}
			response := s.dispatcher.Dispatch(ctx, payload, rpc.Caller{Trusted: true})
			if err := WriteFrame(s.out, response); err != nil {
				return fmt.Errorf("stdiorpc: write frame: %w", err)
			}
		}
	}
}
