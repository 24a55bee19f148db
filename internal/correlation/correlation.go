// Package correlation propagates a per-request correlation identifier
// through context so every log line of one request can be tied together.
// Clients may supply their own identifier; anything unacceptable is
// replaced with a generated one.
package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// MaxIDLength caps accepted external correlation identifiers.
const MaxIDLength = 128

type contextKey struct{}

// Set returns a context carrying id, when id normalizes cleanly. An
// unacceptable id leaves ctx unchanged.
func Set(ctx context.Context, id string) context.Context {
	if normalized, ok := Normalize(id); ok {
		return context.WithValue(ctx, contextKey{}, normalized)
	}
	return ctx
}

// ID retrieves the correlation ID stored on ctx, if any.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}

// Ensure returns ctx carrying a correlation ID, generating one when
// absent, together with the effective ID.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := Generate()
	return context.WithValue(ctx, contextKey{}, id), id
}

// Normalize validates and canonicalizes an external correlation
// identifier: trimmed, non-empty, printable ASCII, at most MaxIDLength
// characters.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// Generate produces a new time-ordered correlation identifier, a
// UUIDv7, so identifiers sort by request arrival.
func Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
