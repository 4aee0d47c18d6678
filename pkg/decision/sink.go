package decision

import (
	"context"

	"github.com/teslashibe/go-binbot/pkg/protocol"
)

// StatusSink receives an update after every decision cycle.
type StatusSink interface {
	Publish(ctx context.Context, msg *protocol.AppMessage) error
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(ctx context.Context, msg *protocol.AppMessage) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, msg *protocol.AppMessage) error {
	return f(ctx, msg)
}

// PowerGate reports whether the operator has switched the bot on.
type PowerGate interface {
	Powered() bool
}

type sessionKey struct{}

// WithSessionID attaches the bot session ID to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the bot session ID carried by ctx, if any.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
