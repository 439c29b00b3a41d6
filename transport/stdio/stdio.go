// Package stdio implements the newline-delimited stdio transport. It reads
// one JSON-RPC frame per line from an input stream on a single background
// goroutine and writes one frame per line to an output stream, serialized by
// a mutex so concurrent sends cannot interleave.
package stdio

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/schemahub/registry-mcp-go/transport"
)

var _ transport.Transport = (*Transport)(nil)

const defaultMaxFrameSize = 4 * 1024 * 1024

// Transport is a single-peer stdio transport. Construct with New, then Start
// to spawn the read loop. Frames are delivered to the handler strictly one at
// a time: the loop does not read the next line until the handler returns.
type Transport struct {
	r            io.Reader
	w            io.Writer
	handler      transport.Handler
	log          *slog.Logger
	maxFrameSize int

	writeMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a stdio Transport delivering inbound frames to handler.
// Defaults to os.Stdin/os.Stdout; override with options.
func New(handler transport.Handler, opts ...Option) *Transport {
	t := &Transport{
		r:            defaultReader,
		w:            defaultWriter,
		handler:      handler,
		log:          slog.Default(),
		maxFrameSize: defaultMaxFrameSize,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start spawns the background read loop. It is an error to call it twice.
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

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.run(loopCtx)
	return nil
}

func (t *Transport) run(ctx context.Context) {
	defer close(t.done)

	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 0, 64*1024), t.maxFrameSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			// Whitespace-only lines are skipped, not dispatched.
			continue
		}
		t.handler(ctx, line)
		if ctx.Err() != nil {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		t.log.Error("stdio.read.fail", slog.String("err", err.Error()))
		return
	}
	// EOF is the peer's normal way of ending a stdio conversation.
	t.log.Debug("stdio.read.eof")
}

// Done is closed when the read loop has terminated, whether by EOF, read
// failure, or Stop. Callers use it to block until the peer hangs up.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Send writes one frame plus the line terminator and flushes. The write mutex
// guarantees two concurrent sends never produce an interleaved line.
func (t *Transport) Send(ctx context.Context, frame string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return transport.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.w, frame); err != nil {
		return err
	}
	if _, err := io.WriteString(t.w, "\n"); err != nil {
		return err
	}
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Stop cancels the read loop and awaits its termination. Closing the reader
// unblocks a Scan pending on a quiet stream so shutdown stays bounded. Stop
// is idempotent.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	started := t.started
	cancel := t.cancel
	t.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	if c, ok := t.r.(io.Closer); ok {
		_ = c.Close()
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
