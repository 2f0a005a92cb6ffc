// Package auditcontext carries request metadata that the audit recorder
// attaches to every entry without callers passing it explicitly.
package auditcontext

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	ipAddressKey
	userAgentKey
	actorTypeKey
	actorIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return withString(ctx, ipAddressKey, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ipAddressKey)
}

func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withString(ctx, userAgentKey, userAgent)
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentKey)
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = withString(ctx, actorTypeKey, actorType)
	return withString(ctx, actorIDKey, actorID)
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
