// Package shared holds the request context keys and the JSON request and
// response helpers used by handlers and middleware.
package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

// ContextKey is the type of the keys this package stores in a context.
type ContextKey string

const (
	// OwnerIDContextKey holds the authenticated owner id.
	OwnerIDContextKey ContextKey = "ownerID"

	// TraceIDKey holds the trace id of the request.
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a trace id.
	TraceIDLength = 16
)

// inboundTraceID accepts ids forwarded by a proxy in X-Request-ID.
var inboundTraceID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// WithTraceID stores id as the trace id, generating one when id is empty
// or not a plausible request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	if !inboundTraceID.MatchString(id) {
		id = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID returns the trace id of ctx or "".
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if _, err := rand.Read(b); err != nil {
		id := uuid.New()
		return hex.EncodeToString(id[:])
	}
	return hex.EncodeToString(b)
}

// WithOwnerID stores the authenticated owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDContextKey, ownerID)
}

// OwnerIDFromContext returns the authenticated owner id.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(OwnerIDContextKey).(string)
	return ownerID, ok && ownerID != ""
}
