package ssehttp_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/schemahub/registry-mcp-go/transport"
	"github.com/schemahub/registry-mcp-go/transport/ssehttp"
)

type sseEvent struct {
	event string
	data  string
}

// readSSEEvent scans lines off an open SSE stream until one complete event
// (terminated by a blank line) has been assembled.
func readSSEEvent(t *testing.T, scanner *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if ev.event != "" || ev.data != "" {
				return ev
			}
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			ev.event = strings.TrimPrefix(line, "event: ")
		} else if strings.HasPrefix(line, "data: ") {
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before a complete event (scan err: %v)", scanner.Err())
	return ev
}

func startedTransport(t *testing.T, opts ...ssehttp.Option) *ssehttp.Transport {
	t.Helper()
	tr := ssehttp.New(opts...)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return tr
}

func TestSSE_EndpointEventThenPushedMessage(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t)
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Get(srv.URL + "/mcp/sse")
	if err != nil {
		t.Fatalf("GET /mcp/sse: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("unexpected cache-control: %q", cc)
	}

	scanner := bufio.NewScanner(resp.Body)
	first := readSSEEvent(t, scanner)
	if first.event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", first.event)
	}
	if !strings.HasSuffix(first.data, "/mcp/message") {
		t.Fatalf("endpoint data = %q, want suffix /mcp/message", first.data)
	}

	if err := tr.Send(context.Background(), "X"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	next := readSSEEvent(t, scanner)
	if next.event != "message" || next.data != "X" {
		t.Fatalf("pushed event = %+v, want message/X", next)
	}
}

func TestSSE_QueuedFramesDeliveredToLateConnection(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t)
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	// Send before any SSE connection exists: the frame must queue, not fail.
	if err := tr.Send(context.Background(), "early"); err != nil {
		t.Fatalf("Send without consumer: %v", err)
	}

	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	if ev := readSSEEvent(t, scanner); ev.event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", ev.event)
	}
	if ev := readSSEEvent(t, scanner); ev.data != "early" {
		t.Fatalf("queued frame = %q, want early", ev.data)
	}
}

func TestPOST_InlineResponse(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t, ssehttp.WithResponder(func(ctx context.Context, frame string) (string, error) {
		return `{"jsonrpc":"2.0","result":"pong","id":1}`, nil
	}))
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q, want application/json", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"jsonrpc":"2.0","result":"pong","id":1}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestPOST_NotificationAcknowledgedBare(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t, ssehttp.WithResponder(func(ctx context.Context, frame string) (string, error) {
		return "", nil
	}))
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestPOST_ResponderErrorYields500(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t, ssehttp.WithResponder(func(ctx context.Context, frame string) (string, error) {
		return "", errors.New("boom")
	}))
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"id":1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestPOST_NoHandlerStill200(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t)
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"id":1}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPOST_RejectsNonJSONContentType(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t, ssehttp.WithResponder(func(ctx context.Context, frame string) (string, error) {
		t.Errorf("responder invoked for non-JSON POST")
		return "", nil
	}))
	srv := httptest.NewServer(tr)
	defer srv.Close()
	defer tr.Stop(context.Background())

	resp, err := http.Post(srv.URL+"/message", "text/plain", strings.NewReader("hi"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", resp.StatusCode)
	}
}

func TestStop_FailsSubsequentSendsAndEndsStream(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t)
	srv := httptest.NewServer(tr)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	if ev := readSSEEvent(t, scanner); ev.event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", ev.event)
	}

	if err := tr.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := tr.Send(context.Background(), "late"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Send after Stop: got %v, want ErrClosed", err)
	}

	// Queue completion alone must end the open connection.
	deadline := time.After(2 * time.Second)
	streamDone := make(chan struct{})
	go func() {
		for scanner.Scan() {
		}
		close(streamDone)
	}()
	select {
	case <-streamDone:
	case <-deadline:
		t.Fatalf("SSE stream did not end after Stop")
	}
}

func TestSend_BoundedQueueFailsFast(t *testing.T) {
	t.Parallel()
	tr := startedTransport(t, ssehttp.WithQueueBound(1))
	defer tr.Stop(context.Background())

	if err := tr.Send(context.Background(), "one"); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := tr.Send(context.Background(), "two"); !errors.Is(err, ssehttp.ErrQueueFull) {
		t.Fatalf("second Send: got %v, want ErrQueueFull", err)
	}
}
