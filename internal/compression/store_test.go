package compression

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maestrohq/maestro/pkg/models"
)

func testInput() models.CompressionInput {
	return models.CompressionInput{
		PlanTitle:       "AI Market Research Plan",
		StepID:          "G1-A1",
		StepTitle:       "Current AI Market Analysis",
		StepDescription: "Collect data on market size",
		ToolName:        "tavily-search",
		RawOutput:       `{"x":1}`,
	}
}

func TestSanitizeComponent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"AI Market Research Plan", "ai_market_research_plan"},
		{"tavily-search", "tavily_search"},
		{"Hello, World!  (v2)", "hello_world_v2"},
		{"__already__clean__", "already_clean"},
		{"研究计划 alpha", "alpha"},
	}
	for _, tc := range cases {
		if got := SanitizeComponent(tc.in); got != tc.want {
			t.Errorf("SanitizeComponent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilenameDeterministic(t *testing.T) {
	a := Filename("Plan Title", "G1-A1", "Step Title", "web-search", "json")
	b := Filename("Plan Title", "G1-A1", "Step Title", "web-search", "json")
	if a != b {
		t.Errorf("filenames differ: %q vs %q", a, b)
	}
	want := "plan_title__stepG1-A1_step_title__web_search.json"
	if a != want {
		t.Errorf("Filename = %q, want %q", a, want)
	}
}

func TestSaveRawOutputJSONPrettyPrinted(t *testing.T) {
	store := NewStore(t.TempDir())
	rel, err := store.SaveRawOutput(testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(rel, ".json") {
		t.Errorf("expected json extension, got %s", rel)
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), rel))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "\"x\": 1") {
		t.Errorf("expected pretty-printed json, got %q", string(data))
	}
}

func TestSaveRawOutputTextFallback(t *testing.T) {
	store := NewStore(t.TempDir())
	in := testInput()
	in.RawOutput = "plain text, not json"
	rel, err := store.SaveRawOutput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(rel, ".txt") {
		t.Errorf("expected txt extension, got %s", rel)
	}
}

func TestSaveRawOutputOverwritesSameIdentity(t *testing.T) {
	store := NewStore(t.TempDir())
	in := testInput()
	in.RawOutput = "first attempt"
	if _, err := store.SaveRawOutput(in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.RawOutput = "second attempt"
	rel, err := store.SaveRawOutput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := store.ReadArtifact(rel)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if content != "second attempt" {
		t.Errorf("expected overwrite, got %q", content)
	}

	infos, err := store.ListArtifacts(in.PlanTitle)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("expected a single artifact after overwrite, got %d", len(infos))
	}
}

func TestListArtifactsSkipsMetadata(t *testing.T) {
	store := NewStore(t.TempDir())
	in := testInput()
	rel, err := store.SaveRawOutput(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comp := models.Compression{
		SummaryTitle: "Market size numbers found",
		Summary:      "The search located the requested market size figures for the current year.",
		Extraction:   []string{"market size: 1T"},
		IsUseful:     true,
	}
	if err := store.SaveMetadata(in, comp, rel); err != nil {
		t.Fatalf("save metadata: %v", err)
	}

	infos, err := store.ListArtifacts(in.PlanTitle)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 artifact (metadata excluded), got %d", len(infos))
	}
	if infos[0].Size <= 0 {
		t.Errorf("expected positive size, got %d", infos[0].Size)
	}
}

func TestListArtifactsUnknownPlan(t *testing.T) {
	store := NewStore(t.TempDir())
	infos, err := store.ListArtifacts("never written")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no artifacts, got %v", infos)
	}
}

func TestReadArtifactUnknownPath(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.ReadArtifact("missing/file.txt"); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
