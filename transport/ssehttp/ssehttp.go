// Package ssehttp implements the HTTP+SSE transport: inbound frames arrive as
// HTTP POST bodies on the message endpoint and outbound frames are either
// written inline as the POST response or pushed as Server-Sent Events to a
// long-lived GET connection on the sse endpoint.
package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/schemahub/registry-mcp-go/internal/logctx"
	"github.com/schemahub/registry-mcp-go/transport"
)

var (
	_ transport.Transport = (*Transport)(nil)
	_ http.Handler        = (*Transport)(nil)
)

var jsonMediaType = contenttype.NewMediaType("application/json")

const (
	ssePathSuffix     = "/sse"
	messagePathSuffix = "/message"
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a
// JSON-RPC exchange is possible. This is transport-level, not JSON-RPC
// framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Transport is the HTTP+SSE transport. It serves two routes on whatever mux
// or server it is mounted on: GET <base>/sse and POST <base>/message. Send
// always enqueues onto the shared outbound queue; the queue and the inline
// POST response path are independent delivery mechanisms.
type Transport struct {
	log        *slog.Logger
	handler    transport.Handler
	responder  transport.Responder
	queueBound int

	queue *frameQueue

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option customizes a Transport.
type Option func(*Transport)

// WithLogger sets the slog logger. Records carry req/rpc context groups.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithResponder registers the response-producing frame handler. Each POST is
// answered inline with the responder's return value instead of through the
// push channel.
func WithResponder(r transport.Responder) Option {
	return func(t *Transport) { t.responder = r }
}

// WithHandler registers a fire-and-forget frame handler, used only when no
// responder is registered. The POST is acknowledged without a body.
func WithHandler(h transport.Handler) Option {
	return func(t *Transport) { t.handler = h }
}

// WithQueueBound caps the outbound queue at n frames; Send fails with
// ErrQueueFull once the cap is reached. A non-positive n keeps the queue
// unbounded, which is the historical behavior: producers never block, and a
// slow or absent SSE consumer grows memory without limit.
func WithQueueBound(n int) Option {
	return func(t *Transport) { t.queueBound = n }
}

// New constructs an HTTP+SSE Transport. The transport accepts POSTs and
// queues sends from construction time; Start/Stop bracket the lifecycle for
// symmetry with other transports and gate Send after shutdown.
func New(opts ...Option) *Transport {
	t := &Transport{log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.log = slog.New(logctx.Handler{Handler: t.log.Handler()})
	t.queue = newFrameQueue(t.queueBound)
	return t
}

// Start marks the transport running. It is an error to call it twice.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}
	if t.stopped {
		return transport.ErrClosed
	}
	t.started = true
	return nil
}

// Stop marks the queue complete. Open SSE connections end once they drain,
// and subsequent Send calls fail with transport.ErrClosed.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	t.queue.close()
	return nil
}

// Send enqueues one frame for SSE push. Frames queue even when no SSE
// connection is currently open; they are kept until a consumer drains them or
// the process exits.
func (t *Transport) Send(ctx context.Context, frame string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.queue.enqueue(frame); err != nil {
		return fmt.Errorf("enqueue outbound frame: %w", err)
	}
	return nil
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, ssePathSuffix):
		t.handleSSE(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, messagePathSuffix):
		t.handleMessage(w, r)
	case r.Method == http.MethodOptions:
		writeCORSPreflight(w)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleSSE serves GET <base>/sse. It emits the synthetic endpoint event
// first, then drains the outbound queue as message events until the client
// disconnects or the queue is marked complete. The dequeue select races the
// connection's lifetime against queue completion, so either alone ends the
// stream; no heartbeat frames are sent.
func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	t.log.InfoContext(ctx, "sse.stream.start")

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		t.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	// Backward-compatible bootstrap: tell the peer where to POST frames.
	if err := writeSSEEvent(wf, "endpoint", messageEndpointURL(r)); err != nil {
		t.log.ErrorContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}

	for {
		frame, err := t.queue.dequeue(ctx)
		if err != nil {
			switch {
			case errors.Is(err, transport.ErrClosed):
				t.log.InfoContext(ctx, "sse.stream.complete")
			case errors.Is(err, context.Canceled):
				t.log.InfoContext(ctx, "sse.stream.disconnect")
			default:
				t.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
			}
			t.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		}
		if err := writeSSEEvent(wf, "message", frame); err != nil {
			t.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
			return
		}
		t.log.DebugContext(ctx, "sse.message.deliver")
	}
}

// handleMessage serves POST <base>/message: the body is exactly one frame.
// With a responder registered the reply frame is written inline; with only a
// fire-and-forget handler the POST is acknowledged bare. Failures yield a 500
// only while no response bytes have been written; past that point they are
// logged and the connection is left to the client.
func (t *Transport) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	t.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		t.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		t.log.WarnContext(ctx, "http.post.body.fail", slog.String("err", err.Error()))
		return
	}
	frame := strings.TrimSpace(string(body))
	if frame == "" {
		writeJSONError(w, http.StatusBadRequest, "empty frame")
		t.log.WarnContext(ctx, "http.post.body.empty")
		return
	}

	tw := &trackingResponseWriter{ResponseWriter: w}

	switch {
	case t.responder != nil:
		reply, err := t.responder(ctx, frame)
		if err != nil {
			if tw.wrote {
				// Never fail while reporting an error on a half-sent response.
				t.log.ErrorContext(ctx, "http.post.fail.late", slog.String("err", err.Error()))
				return
			}
			writeJSONError(tw, http.StatusInternalServerError, "internal error")
			t.log.ErrorContext(ctx, "http.post.fail", slog.String("err", err.Error()))
			return
		}
		if reply == "" {
			// A notification: nothing to return.
			tw.WriteHeader(http.StatusAccepted)
			t.log.InfoContext(ctx, "http.post.ack", slog.Duration("dur", time.Since(start)))
			return
		}
		tw.Header().Set("Content-Type", jsonMediaType.String())
		tw.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(tw, reply); err != nil {
			t.log.ErrorContext(ctx, "http.post.write.fail", slog.String("err", err.Error()))
			return
		}
		t.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))

	case t.handler != nil:
		t.handler(ctx, frame)
		tw.WriteHeader(http.StatusAccepted)
		t.log.InfoContext(ctx, "http.post.ack", slog.Duration("dur", time.Since(start)))

	default:
		// No handler wired: acknowledge anyway so the peer does not retry.
		tw.WriteHeader(http.StatusOK)
		t.log.WarnContext(ctx, "http.post.unhandled")
	}
}

// messageEndpointURL derives the absolute URL the peer should POST frames to,
// by stripping the /sse suffix from the current request path and appending
// /message.
func messageEndpointURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := strings.TrimSuffix(r.URL.Path, ssePathSuffix)
	return fmt.Sprintf("%s://%s%s%s", scheme, r.Host, base, messagePathSuffix)
}

func writeCORSPreflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
}

// trackingResponseWriter records whether any response bytes or headers have
// been committed, so the error path can decide between a 500 and log-only.
type trackingResponseWriter struct {
	http.ResponseWriter
	wrote bool
}

func (tw *trackingResponseWriter) WriteHeader(status int) {
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(status)
}

func (tw *trackingResponseWriter) Write(p []byte) (int, error) {
	tw.wrote = true
	return tw.ResponseWriter.Write(p)
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and a
// context guard. It serializes writes/flushes and avoids writing after the
// connection context is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event with the given event name and
// data, then flushes so the peer observes it immediately.
func writeSSEEvent(wf *lockedWriteFlusher, event, data string) error {
	if _, err := fmt.Fprintf(wf, "event: %s\n", event); err != nil {
		return fmt.Errorf("failed to write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(wf, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write SSE data: %w", err)
	}
	wf.Flush()
	return nil
}
