package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/archops/governor/internal/providers"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(providers.NewLocalUploader(t.TempDir()))
}

func TestIngestMarkdownDocument(t *testing.T) {
	svc := newTestService(t)

	doc, err := svc.Ingest(context.Background(), "design.md", "text/markdown", []byte("# Payments\nTLS everywhere"))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected generated document id")
	}
	if !strings.HasPrefix(doc.URI, "file://") {
		t.Fatalf("unexpected uri %q", doc.URI)
	}
	if !strings.Contains(doc.Text, "TLS everywhere") {
		t.Fatalf("extracted text missing content: %q", doc.Text)
	}
}

func TestIngestJSONFlattensValues(t *testing.T) {
	svc := newTestService(t)

	payload := []byte(`{"service":"billing","layers":["api","db"],"replicas":3}`)
	doc, err := svc.Ingest(context.Background(), "arch.json", "application/json", payload)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	for _, want := range []string{"billing", "api", "db", "3"} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("text %q missing %q", doc.Text, want)
		}
	}
	if strings.Contains(doc.Text, "{") {
		t.Fatalf("expected flattened text, got %q", doc.Text)
	}
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Ingest(context.Background(), "diagram.pdf", "application/pdf", []byte("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestIngestRejectsEmptyAndMalformed(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Ingest(context.Background(), "a.txt", "text/plain", nil); err == nil {
		t.Fatal("expected error for empty document")
	}
	if _, err := svc.Ingest(context.Background(), "a.json", "application/json", []byte("{nope")); err == nil {
		t.Fatal("expected error for malformed json")
	}
}
