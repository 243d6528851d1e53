// Package auditctx carries actor identity and request correlation
// through context so every mutating service can attribute its audit
// entries without threading extra parameters.
package auditctx

import (
	"context"
	"strings"
)

type contextKey string

const (
	actorTypeKey contextKey = "actor_type"
	actorIDKey   contextKey = "actor_id"
	requestIDKey contextKey = "request_id"
	ipAddressKey contextKey = "ip_address"
	userAgentKey contextKey = "user_agent"
)

// WithActor records who is performing the current operation.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actorType))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actorID))
}

// ActorFromContext returns the acting principal, empty when unknown.
func ActorFromContext(ctx context.Context) (actorType, actorID string) {
	if v, ok := ctx.Value(actorTypeKey).(string); ok {
		actorType = v
	}
	if v, ok := ctx.Value(actorIDKey).(string); ok {
		actorID = v
	}
	return actorType, actorID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey, ip)
}

func IPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ipAddressKey).(string); ok {
		return v
	}
	return ""
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey, ua)
}

func UserAgentFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey).(string); ok {
		return v
	}
	return ""
}
