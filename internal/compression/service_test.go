package compression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

const validSummary = "The tool output contains the requested market data. It covers market size and growth. The figures are from a reliable source."

func validResponse(useful bool) string {
	return fmt.Sprintf(`{
  "summary_title": "Market data located and extracted",
  "summary": %q,
  "extraction": ["market size: 1T", "growth: 20%%"],
  "is_useful": %v
}`, validSummary, useful)
}

func staticInvoker(response string, err error) func(context.Context, string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		return response, err
	}
}

func TestCompressUsefulReturnsRef(t *testing.T) {
	store := NewStore(t.TempDir())
	svc := NewService(staticInvoker(validResponse(true), nil), store, true)

	ref, err := svc.Compress(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref == nil {
		t.Fatal("expected artifact reference")
	}
	if ref.SummaryTitle != "Market data located and extracted" {
		t.Errorf("wrong title: %q", ref.SummaryTitle)
	}
	if ref.ArtifactFile == "" {
		t.Error("expected artifact file path in reference")
	}
	if len(ref.Extraction) != 2 {
		t.Errorf("expected 2 bullets, got %v", ref.Extraction)
	}
}

func TestCompressNotUsefulKeepsRawSkipsInjection(t *testing.T) {
	store := NewStore(t.TempDir())
	svc := NewService(staticInvoker(validResponse(false), nil), store, true)

	in := testInput()
	ref, err := svc.Compress(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != nil {
		t.Errorf("expected no injection for is_useful=false, got %+v", ref)
	}

	infos, err := store.ListArtifacts(in.PlanTitle)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("raw artifact should exist on disk, got %d files", len(infos))
	}
}

func TestCompressModelFailureRetainsRaw(t *testing.T) {
	store := NewStore(t.TempDir())
	svc := NewService(staticInvoker("", errors.New("model unavailable")), store, true)

	in := testInput()
	ref, err := svc.Compress(context.Background(), in)
	if err != nil {
		t.Fatalf("summarization failure must degrade gracefully, got %v", err)
	}
	if ref != nil {
		t.Error("expected nil reference after model failure")
	}

	infos, _ := store.ListArtifacts(in.PlanTitle)
	if len(infos) != 1 {
		t.Errorf("raw artifact should survive model failure, got %d files", len(infos))
	}
}

func TestCompressInvalidJSONRetainsRaw(t *testing.T) {
	store := NewStore(t.TempDir())
	svc := NewService(staticInvoker("this is not json at all", nil), store, true)

	in := testInput()
	ref, err := svc.Compress(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != nil {
		t.Error("expected nil reference for unparsable response")
	}
	infos, _ := store.ListArtifacts(in.PlanTitle)
	if len(infos) != 1 {
		t.Errorf("raw artifact should survive parse failure, got %d files", len(infos))
	}
}

func TestCompressDisabledSavesRawOnly(t *testing.T) {
	store := NewStore(t.TempDir())
	called := false
	svc := NewService(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return validResponse(true), nil
	}, store, false)

	in := testInput()
	ref, err := svc.Compress(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != nil {
		t.Error("expected nil reference when disabled")
	}
	if called {
		t.Error("model must not be invoked when compression is disabled")
	}
	infos, _ := store.ListArtifacts(in.PlanTitle)
	if len(infos) != 1 {
		t.Errorf("raw artifact must be written even when disabled, got %d", len(infos))
	}
}

func TestParseCompressionCodeFences(t *testing.T) {
	fenced := "Here is the summary:\n```json\n" + validResponse(true) + "\n```\n"
	comp, err := ParseCompression(fenced)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !comp.IsUseful {
		t.Error("expected is_useful true")
	}

	bare := "```\n" + validResponse(true) + "\n```"
	if _, err := ParseCompression(bare); err != nil {
		t.Fatalf("unexpected error for bare fence: %v", err)
	}
}

func TestParseCompressionMissingFields(t *testing.T) {
	cases := []string{
		`{"summary": "` + validSummary + `", "is_useful": true}`,
		`{"summary_title": "A reasonable and valid title", "is_useful": true}`,
		`{"summary_title": "A reasonable and valid title", "summary": "` + validSummary + `"}`,
	}
	for i, resp := range cases {
		if _, err := ParseCompression(resp); !errors.Is(err, ErrCompression) {
			t.Errorf("case %d: expected ErrCompression, got %v", i, err)
		}
	}
}

func TestParseCompressionLengthBounds(t *testing.T) {
	tooShortSummary := `{"summary_title": "Valid title here", "summary": "Tiny.", "is_useful": true}`
	if _, err := ParseCompression(tooShortSummary); !errors.Is(err, ErrCompression) {
		t.Errorf("expected ErrCompression for short summary, got %v", err)
	}

	longTitle := strings.Repeat("word ", 40)
	tooLongTitle := fmt.Sprintf(`{"summary_title": %q, "summary": %q, "is_useful": true}`, longTitle, validSummary)
	if _, err := ParseCompression(tooLongTitle); !errors.Is(err, ErrCompression) {
		t.Errorf("expected ErrCompression for long title, got %v", err)
	}
}
