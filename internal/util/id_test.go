package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a := NewID("pub")
	b := NewID("pub")
	if a == b {
		t.Fatalf("expected unique ids, got %q twice", a)
	}
	if !strings.HasPrefix(a, "pub_") || len(a) != len("pub_")+32 {
		t.Fatalf("unexpected id %q", a)
	}
	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "_") {
		t.Fatalf("unexpected bare id %q", bare)
	}
}
