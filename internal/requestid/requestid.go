package requestid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header carries the request ID in both directions.
const Header = "X-Request-ID"

const maxLen = 128

type ctxKey struct{}

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// Accept returns incoming when it is usable as a request ID, or a fresh one.
// Overlong values and values with control characters are replaced so they
// cannot bloat or split log lines.
func Accept(incoming string) string {
	if incoming == "" || len(incoming) > maxLen {
		return New()
	}
	if strings.IndexFunc(incoming, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return New()
	}
	return incoming
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
