// Package transport defines the contract every frame transport satisfies and
// the shared failure modes callers branch on. A transport moves raw JSON-RPC
// frames between exactly one peer and the dispatcher; it never interprets
// frame contents.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrAlreadyStarted is returned by Start when the transport is already running.
	ErrAlreadyStarted = errors.New("transport already started")
	// ErrClosed is returned by Send after the transport has been stopped, so
	// callers can stop scheduling work into a dead channel.
	ErrClosed = errors.New("transport closed")
)

// Handler consumes one inbound frame. A transport delivers every received
// frame to exactly one handler, once per frame, in receive order. The handler
// is supplied at construction time; there is no multi-subscriber broadcast.
type Handler func(ctx context.Context, frame string)

// Responder consumes one inbound frame and returns the serialized reply
// frame, or "" when the frame produced no reply (a notification). The
// HTTP transport uses it to answer each POST inline instead of routing the
// reply through the asynchronous push channel.
type Responder func(ctx context.Context, frame string) (string, error)

// Sender is the outbound half of a transport. Send must be safe for
// concurrent use; each frame is written atomically but no ordering is
// guaranteed across concurrent calls.
type Sender interface {
	Send(ctx context.Context, frame string) error
}

// Transport is the full channel abstraction. Start spawns any background
// machinery and must be called at most once. Stop terminates in-flight read
// loops within bounded time and releases owned resources on every exit path.
type Transport interface {
	Sender
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
