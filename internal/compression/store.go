// Package compression persists raw tool outputs durably and produces
// LLM-assisted summaries for bounded conversation injection.
package compression

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/maestrohq/maestro/pkg/models"
)

// ErrStorage wraps filesystem failures while writing an artifact. Raw
// output durability is the core guarantee, so storage errors are fatal
// to the step that hit them.
var ErrStorage = errors.New("artifact storage failure")

var (
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9_.]`)
	separatorsPattern = regexp.MustCompile(`_+`)
)

// SanitizeComponent makes a filename component safe and deterministic:
// lower-cased, spaces and hyphens become underscores, everything else
// non-alphanumeric is stripped, runs of underscores collapse.
func SanitizeComponent(component string) string {
	component = strings.ToLower(component)
	component = strings.ReplaceAll(component, " ", "_")
	component = strings.ReplaceAll(component, "-", "_")
	component = nonAlnumPattern.ReplaceAllString(component, "")
	component = separatorsPattern.ReplaceAllString(component, "_")
	return strings.Trim(component, "_")
}

// Filename derives the deterministic artifact filename
// {plan}__step{id}_{title}__{tool}.{ext}. It depends only on sanitized
// identifiers, never on model-generated text, so re-running the same
// step and tool addresses the same artifact.
func Filename(planTitle, stepID, stepTitle, toolName, extension string) string {
	return fmt.Sprintf("%s__step%s_%s__%s.%s",
		SanitizeComponent(planTitle),
		stepID,
		SanitizeComponent(stepTitle),
		SanitizeComponent(toolName),
		extension,
	)
}

// Store writes and reads artifacts under a root directory, one
// subdirectory per sanitized plan title.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// planDir returns (and creates) the directory for a plan's artifacts.
func (s *Store) planDir(planTitle string) (string, error) {
	dir := filepath.Join(s.root, SanitizeComponent(planTitle))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create plan directory: %v", ErrStorage, err)
	}
	return dir, nil
}

// SaveRawOutput writes the raw tool output to its deterministic path and
// returns the path relative to the store root. Content that parses as
// JSON is pretty-printed and saved with a json extension, otherwise it
// is saved verbatim as txt. This write always happens, independent of
// whether summarization follows; a repeat call for the identical
// (plan, step, tool) identity overwrites.
func (s *Store) SaveRawOutput(in models.CompressionInput) (string, error) {
	dir, err := s.planDir(in.PlanTitle)
	if err != nil {
		return "", err
	}

	content := in.RawOutput
	extension := "txt"
	var parsed interface{}
	if err := json.Unmarshal([]byte(in.RawOutput), &parsed); err == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			content = string(pretty)
			extension = "json"
		}
	}

	name := Filename(in.PlanTitle, in.StepID, in.StepTitle, in.ToolName, extension)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrStorage, name, err)
	}

	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return rel, nil
}

// metadataFile is the sibling .meta.json document stored next to a raw
// artifact.
type metadataFile struct {
	SummaryTitle string   `json:"summary_title"`
	Summary      string   `json:"summary"`
	Extraction   []string `json:"extraction"`
	IsUseful     bool     `json:"is_useful"`
	ArtifactFile string   `json:"artifact_file"`
	PlanTitle    string   `json:"plan_title"`
	StepID       string   `json:"step_id"`
	StepTitle    string   `json:"step_title"`
	ToolName     string   `json:"tool_name"`
}

// SaveMetadata writes the compression result as a sibling .meta.json
// file for later inspection.
func (s *Store) SaveMetadata(in models.CompressionInput, comp models.Compression, artifactFile string) error {
	dir, err := s.planDir(in.PlanTitle)
	if err != nil {
		return err
	}

	meta := metadataFile{
		SummaryTitle: comp.SummaryTitle,
		Summary:      comp.Summary,
		Extraction:   comp.Extraction,
		IsUseful:     comp.IsUseful,
		ArtifactFile: artifactFile,
		PlanTitle:    in.PlanTitle,
		StepID:       in.StepID,
		StepTitle:    in.StepTitle,
		ToolName:     in.ToolName,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ErrStorage, err)
	}

	name := Filename(in.PlanTitle, in.StepID, in.StepTitle, in.ToolName, "meta.json")
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, name, err)
	}
	return nil
}

// ReadArtifact returns the content of an artifact by its store-relative
// path. JSON content comes back pretty-printed, anything else verbatim.
func (s *Store) ReadArtifact(relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", relPath, err)
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			return string(pretty), nil
		}
	}
	return string(data), nil
}

// ListArtifacts enumerates the raw artifact files stored for a plan,
// skipping .meta.json siblings, with sizes, sorted by path.
func (s *Store) ListArtifacts(planTitle string) ([]models.ArtifactInfo, error) {
	dir := filepath.Join(s.root, SanitizeComponent(planTitle))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var infos []models.ArtifactInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, models.ArtifactInfo{
			Path: filepath.Join(SanitizeComponent(planTitle), entry.Name()),
			Size: fi.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}
