package stdio_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schemahub/registry-mcp-go/transport"
	"github.com/schemahub/registry-mcp-go/transport/stdio"
)

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return ""
	}
}

func TestReadLoop_DeliversFramesSkipsBlanksAndStopsAtEOF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	input := "{\"id\":1,\"method\":\"ping\"}\n\n   \n\t\n{\"method\":\"note\"}\n"
	frames := make(chan string, 4)
	tr := stdio.New(
		func(ctx context.Context, frame string) { frames <- frame },
		stdio.WithIO(strings.NewReader(input), io.Discard),
	)
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := recv(t, frames); got != `{"id":1,"method":"ping"}` {
		t.Fatalf("unexpected first frame: %q", got)
	}
	if got := recv(t, frames); got != `{"method":"note"}` {
		t.Fatalf("unexpected second frame: %q", got)
	}

	// EOF already ended the loop; Stop must return promptly and cleanly.
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := tr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop after EOF: %v", err)
	}
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame after EOF: %q", f)
	default:
	}
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()
	tr := stdio.New(
		func(context.Context, string) {},
		stdio.WithIO(strings.NewReader(""), io.Discard),
	)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := tr.Start(context.Background()); err != transport.ErrAlreadyStarted {
		t.Fatalf("second Start: got %v, want ErrAlreadyStarted", err)
	}
	_ = tr.Stop(context.Background())
}

func TestSend_ConcurrentWritesDoNotInterleave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var buf bytes.Buffer
	tr := stdio.New(
		func(context.Context, string) {},
		stdio.WithIO(strings.NewReader(""), &buf),
	)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			frame := fmt.Sprintf(`{"id":%d,"result":{"padding":"%s"}}`, i, strings.Repeat("x", 256))
			if err := tr.Send(ctx, frame); err != nil {
				t.Errorf("Send: %v", err)
			}
		}(i)
	}
	wg.Wait()

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		lines++
		var v map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			t.Fatalf("line %d is not well-formed JSON: %v", lines, err)
		}
	}
	if lines != n {
		t.Fatalf("expected %d complete lines, got %d", n, lines)
	}
}

func TestStop_TerminatesPendingRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	pr, pw := io.Pipe()
	frames := make(chan string, 1)
	tr := stdio.New(
		func(ctx context.Context, frame string) { frames <- frame },
		stdio.WithIO(pr, io.Discard),
	)
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := pw.Write([]byte("{\"id\":1,\"method\":\"ping\"}\n")); err != nil {
		t.Fatalf("pipe write: %v", err)
	}
	if got := recv(t, frames); got == "" {
		t.Fatalf("expected a frame before stop")
	}

	// The loop is now blocked reading from the pipe. Stop must unblock it
	// within the deadline.
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := tr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := tr.Send(ctx, `{"id":2,"result":null}`); err != transport.ErrClosed {
		t.Fatalf("Send after Stop: got %v, want ErrClosed", err)
	}
}
