// Package dispatch classifies inbound frames as requests or notifications,
// invokes the downstream server, and serializes replies. Decode and handler
// failures never escape a frame's handling cycle: they are converted into a
// best-effort JSON-RPC error response and the next frame proceeds.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schemahub/registry-mcp-go/internal/jsonrpc"
	"github.com/schemahub/registry-mcp-go/internal/logctx"
	"github.com/schemahub/registry-mcp-go/transport"
)

// internalErrorFrame is the hand-built last resort when even the error
// response fails to marshal.
const internalErrorFrame = `{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"},"id":null}`

// Server is the downstream collaborator that owns protocol semantics. A
// request handler's returned value becomes the JSON-RPC result; a returned
// *jsonrpc.Error passes through to the wire verbatim, any other error goes
// through the recovery path as an internal error.
type Server interface {
	HandleRequest(ctx context.Context, req *jsonrpc.Request) (any, error)
	HandleNotification(ctx context.Context, req *jsonrpc.Request) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Dispatcher routes raw frames to a Server. It keeps no per-frame state: each
// frame is classified, handled, and forgotten, so identical requests produce
// independent response cycles and out-of-order completion is never reconciled.
type Dispatcher struct {
	srv Server
	log *slog.Logger
}

// New constructs a Dispatcher for the given server.
func New(srv Server, opts ...Option) *Dispatcher {
	d := &Dispatcher{srv: srv, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.log = slog.New(logctx.Handler{Handler: d.log.Handler()})
	return d
}

// HandleFrame processes one raw frame and returns the serialized response
// frame, if any. It never fails: malformed input and handler errors become
// error frames carrying whatever request ID could be recovered, and true
// notifications never produce output regardless of outcome.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame string) (string, bool) {
	raw := []byte(frame)

	// The id probe only checks for top-level presence; it tolerates frames
	// whose deeper fields are malformed.
	if jsonrpc.HasRequestID(raw) {
		return d.marshalResponse(ctx, d.handleRequest(ctx, raw)), true
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		// Not valid JSON at all: answer with a null-id error frame.
		return d.marshalResponse(ctx, d.recoverError(ctx, raw, fmt.Errorf("parse frame: %w", err))), true
	}
	if req.Method == "" {
		return d.marshalResponse(ctx, d.recoverError(ctx, raw, errors.New("frame has no method"))), true
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, Type: "notification"})
	if err := d.srv.HandleNotification(ctx, &req); err != nil {
		// No response channel exists for a notification; log and move on.
		d.log.ErrorContext(ctx, "notification.handle.fail", slog.String("err", err.Error()))
	} else {
		d.log.DebugContext(ctx, "notification.handle.ok")
	}
	return "", false
}

// Handler adapts the dispatcher to the fire-and-forget transport contract:
// any produced response is sent back over sender. This is the stdio wiring.
func (d *Dispatcher) Handler(sender transport.Sender) transport.Handler {
	return func(ctx context.Context, frame string) {
		resp, ok := d.HandleFrame(ctx, frame)
		if !ok {
			return
		}
		if err := sender.Send(ctx, resp); err != nil {
			d.log.ErrorContext(ctx, "frame.respond.fail", slog.String("err", err.Error()))
		}
	}
}

// Responder adapts the dispatcher to the inline-reply transport contract used
// by the HTTP transport's POST path. The returned error is always nil: frame
// failures are already expressed as error frames.
func (d *Dispatcher) Responder() transport.Responder {
	return func(ctx context.Context, frame string) (string, error) {
		resp, ok := d.HandleFrame(ctx, frame)
		if !ok {
			return "", nil
		}
		return resp, nil
	}
}

func (d *Dispatcher) handleRequest(ctx context.Context, raw []byte) *jsonrpc.Response {
	var req jsonrpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return d.recoverError(ctx, raw, fmt.Errorf("decode request: %w", err))
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})
	d.log.DebugContext(ctx, "request.dispatch")

	result, err := d.srv.HandleRequest(ctx, &req)
	if err != nil {
		var rpcErr *jsonrpc.Error
		if errors.As(err, &rpcErr) {
			return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: rpcErr, ID: req.ID}
		}
		return d.recoverError(ctx, raw, err)
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		return d.recoverError(ctx, raw, err)
	}
	return resp
}

// recoverError builds the best-effort error response for a frame that failed
// decoding or handling. The original raw frame is re-probed for an ID; when
// even that fails the response carries a null ID, which is deliberately never
// omitted.
func (d *Dispatcher) recoverError(ctx context.Context, raw []byte, cause error) *jsonrpc.Response {
	d.log.ErrorContext(ctx, "frame.dispatch.fail", slog.String("err", cause.Error()))
	id := jsonrpc.ExtractID(raw)
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, cause.Error(), nil)
}

func (d *Dispatcher) marshalResponse(ctx context.Context, resp *jsonrpc.Response) string {
	b, err := json.Marshal(resp)
	if err != nil {
		d.log.ErrorContext(ctx, "response.marshal.fail", slog.String("err", err.Error()))
		return internalErrorFrame
	}
	return string(b)
}
