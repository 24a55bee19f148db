package stdiorpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errMissingLength = errors.New("stdiorpc: missing Content-Length header")

// WriteFrame writes one JSON-RPC payload with Content-Length framing.
func WriteFrame(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one framed payload. It returns io.EOF only at a clean
// frame boundary; a stream ending mid-header or mid-payload yields
// io.ErrUnexpectedEOF. Blank lines between frames are tolerated and
// header names are matched case-insensitively.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	sawHeader := false
	for {
		line, err := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			if !sawHeader && strings.TrimSpace(trimmed) == "" {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		if strings.TrimSpace(trimmed) == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true
		name, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, convErr := strconv.Atoi(strings.TrimSpace(value))
			if convErr != nil || n <= 0 {
				return nil, fmt.Errorf("stdiorpc: invalid Content-Length %q", strings.TrimSpace(value))
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, errMissingLength
	}
	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
