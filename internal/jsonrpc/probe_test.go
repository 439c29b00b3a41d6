package jsonrpc

import (
	"testing"
)

func TestHasRequestID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name  string
		frame string
		want  bool
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":7,"method":"ping"}`, true},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, true},
		{"null id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, true},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, false},
		{"garbage", `{not json`, false},
		{"empty", ``, false},
		{"malformed params still classifies", `{"id":1,"params":{"x":}}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasRequestID([]byte(tc.frame)); got != tc.want {
				t.Fatalf("HasRequestID(%q) = %v, want %v", tc.frame, got, tc.want)
			}
		})
	}
}

func TestExtractID(t *testing.T) {
	t.Parallel()

	if id := ExtractID([]byte(`{"id":7,"method":"x"}`)); id == nil || id.Value() != int64(7) {
		t.Fatalf("expected int64 7, got %#v", id.Value())
	}
	if id := ExtractID([]byte(`{"id":"req-1"}`)); id == nil || id.Value() != "req-1" {
		t.Fatalf("expected string id, got %#v", id)
	}
	if id := ExtractID([]byte(`{"id":1.5}`)); id == nil || id.Value() != 1.5 {
		t.Fatalf("expected float id, got %#v", id)
	}

	// Everything below must yield nil without panicking.
	for _, frame := range []string{
		`total garbage`,
		``,
		`{"method":"no id"}`,
		`{"id":{"nested":"object"}}`,
		`{"id":[1,2]}`,
		`{"id":null}`,
		`{"id":true}`,
	} {
		if id := ExtractID([]byte(frame)); id != nil {
			t.Fatalf("ExtractID(%q) = %#v, want nil", frame, id.Value())
		}
	}
}
