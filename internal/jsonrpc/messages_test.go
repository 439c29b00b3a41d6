package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResponseSerialization(t *testing.T) {
	t.Parallel()

	t.Run("result response omits error and keeps id type", func(t *testing.T) {
		resp, err := NewResultResponse(NewRequestID(7), map[string]any{"ok": true})
		if err != nil {
			t.Fatalf("NewResultResponse: %v", err)
		}
		b, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		s := string(b)
		if !strings.Contains(s, `"id":7`) {
			t.Fatalf("id not echoed as number: %s", s)
		}
		if strings.Contains(s, `"error"`) {
			t.Fatalf("error field present on success response: %s", s)
		}
	})

	t.Run("error response with unrecoverable id serializes null id", func(t *testing.T) {
		resp := NewErrorResponse(nil, ErrorCodeInternalError, "boom", nil)
		b, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		s := string(b)
		if !strings.Contains(s, `"id":null`) {
			t.Fatalf("null id dropped from error response: %s", s)
		}
		if !strings.Contains(s, `"code":-32603`) {
			t.Fatalf("missing internal error code: %s", s)
		}
		if strings.Contains(s, `"result"`) {
			t.Fatalf("result field present on error response: %s", s)
		}
		if strings.Contains(s, `"data"`) {
			t.Fatalf("nil data field should be omitted: %s", s)
		}
	})

	t.Run("string id round-trips as string", func(t *testing.T) {
		var req Request
		if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"42","method":"ping"}`), &req); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if req.ID.Value() != "42" {
			t.Fatalf("expected string id, got %#v", req.ID.Value())
		}
		resp, err := NewResultResponse(req.ID, struct{}{})
		if err != nil {
			t.Fatalf("NewResultResponse: %v", err)
		}
		b, _ := json.Marshal(resp)
		if !strings.Contains(string(b), `"id":"42"`) {
			t.Fatalf("string id not preserved: %s", b)
		}
	})
}
