package types

import (
	"errors"
	"testing"
)

func TestBlobRoundTrip(t *testing.T) {
	type payload struct {
		A int      `json:"a"`
		B []string `json:"b"`
	}
	b, err := NewBlob("test", 1, payload{A: 3, B: []string{"x", "y"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out payload
	if err := b.Open("test", 1, &out); err != nil {
		t.Fatalf("open: %v", err)
	}
	if out.A != 3 || len(out.B) != 2 {
		t.Errorf("payload changed: %+v", out)
	}

	kind, err := b.Kind()
	if err != nil || kind != "test" {
		t.Errorf("wrong kind %q (%v)", kind, err)
	}
}

func TestBlobMismatchedRestore(t *testing.T) {
	b, err := NewBlob("parameter", 2, map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out map[string]int
	var ir *IncompatibleRestoreError
	if err := b.Open("memory", 2, &out); !errors.As(err, &ir) {
		t.Fatalf("expected IncompatibleRestoreError for wrong kind, got %v", err)
	}
	if err := b.Open("parameter", 1, &out); !errors.As(err, &ir) {
		t.Fatalf("expected IncompatibleRestoreError for wrong version, got %v", err)
	}
	if out != nil {
		t.Errorf("failed restore should not touch the target")
	}
}
