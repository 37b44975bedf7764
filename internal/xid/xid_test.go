package xid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewCarriesPrefixAndUUID(t *testing.T) {
	id := New("sess")
	if !strings.HasPrefix(id, "sess-") {
		t.Fatalf("expected sess- prefix, got %q", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "sess-")); err != nil {
		t.Fatalf("expected uuid suffix: %v", err)
	}
	if New("sess") == id {
		t.Fatalf("expected unique ids")
	}
}

func TestDocumentNo(t *testing.T) {
	if got := DocumentNo("or", 7); got != "OR-0007" {
		t.Fatalf("expected OR-0007, got %q", got)
	}
	if got := DocumentNo("RT", 12345); got != "RT-12345" {
		t.Fatalf("expected RT-12345, got %q", got)
	}
}
