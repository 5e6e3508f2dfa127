package compression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/internal/llm"
	"github.com/maestrohq/maestro/pkg/models"
)

// ErrCompression indicates the summarization model returned malformed or
// incomplete output. The raw artifact stays on disk when it occurs; only
// the summary and injection step is skipped.
var ErrCompression = errors.New("compression failed")

// maxPromptOutput caps how much raw output is sent to the summarization
// model; the full output is on disk regardless.
const maxPromptOutput = 50000

// Service runs the compression pipeline: persist raw output, ask the
// model for a structured summary, persist metadata, and hand back a
// compact reference when the result is worth injecting.
type Service struct {
	invoke  llm.Invoker
	store   *Store
	enabled bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// NewService creates a compression service over the given store.
func NewService(invoke llm.Invoker, store *Store, enabled bool) *Service {
	return &Service{
		invoke:   invoke,
		store:    store,
		enabled:  enabled,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (s *Service) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// SetEnabled toggles summarization. Raw persistence is unconditional.
func (s *Service) SetEnabled(enabled bool) {
	s.enabled = enabled
}

// Store returns the underlying artifact store.
func (s *Service) Store() *Store {
	return s.store
}

// Compress saves the raw output, then summarizes it. The raw write
// happens first and its failure is returned as a storage error. A
// summarization failure degrades gracefully: nil reference, nil error
// beyond the debug log, raw artifact retained. A reference is returned
// only when the model judged the output useful.
func (s *Service) Compress(ctx context.Context, in models.CompressionInput) (*models.ArtifactRef, error) {
	artifactFile, err := s.store.SaveRawOutput(in)
	if err != nil {
		return nil, err
	}
	s.debugLog("[compression] saved raw output to %s", artifactFile)

	if !s.enabled {
		return nil, nil
	}

	comp, err := s.summarize(ctx, in)
	if err != nil {
		s.debugLog("[compression] summarization failed, raw artifact retained: %v", err)
		return nil, nil
	}

	if err := s.store.SaveMetadata(in, *comp, artifactFile); err != nil {
		s.debugLog("[compression] metadata write failed: %v", err)
		return nil, nil
	}

	if !comp.IsUseful {
		s.debugLog("[compression] result for %s marked not useful, skipping injection", in.StepID)
		return nil, nil
	}

	return &models.ArtifactRef{
		SummaryTitle: comp.SummaryTitle,
		Summary:      comp.Summary,
		Extraction:   comp.Extraction,
		ArtifactFile: artifactFile,
	}, nil
}

// summarize invokes the model and parses its structured response.
func (s *Service) summarize(ctx context.Context, in models.CompressionInput) (*models.Compression, error) {
	raw := in.RawOutput
	if len(raw) > maxPromptOutput {
		raw = raw[:maxPromptOutput]
	}
	prompt := renderCompressionPrompt(in, raw)

	response, err := s.invoke(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompression, err)
	}

	return ParseCompression(response)
}

// ParseCompression decodes a compression response, tolerating markdown
// code-fence wrapping, and validates required fields and length bounds.
func ParseCompression(response string) (*models.Compression, error) {
	content := StripCodeFence(response)

	var parsed struct {
		SummaryTitle *string  `json:"summary_title"`
		Summary      *string  `json:"summary"`
		Extraction   []string `json:"extraction"`
		IsUseful     *bool    `json:"is_useful"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrCompression, err)
	}
	if parsed.SummaryTitle == nil {
		return nil, fmt.Errorf("%w: missing required field summary_title", ErrCompression)
	}
	if parsed.Summary == nil {
		return nil, fmt.Errorf("%w: missing required field summary", ErrCompression)
	}
	if parsed.IsUseful == nil {
		return nil, fmt.Errorf("%w: missing required field is_useful", ErrCompression)
	}

	// Length bounds mirror the requested schema: a short 5-12 word title
	// and a 3-10 sentence summary, enforced as character ranges so minor
	// model drift does not reject otherwise usable output.
	title := strings.TrimSpace(*parsed.SummaryTitle)
	if len(title) < 5 || len(title) > 100 {
		return nil, fmt.Errorf("%w: summary_title length %d outside bounds", ErrCompression, len(title))
	}
	summary := strings.TrimSpace(*parsed.Summary)
	if len(summary) < 50 || len(summary) > 1000 {
		return nil, fmt.Errorf("%w: summary length %d outside bounds", ErrCompression, len(summary))
	}

	return &models.Compression{
		SummaryTitle: title,
		Summary:      summary,
		Extraction:   parsed.Extraction,
		IsUseful:     *parsed.IsUseful,
	}, nil
}

// StripCodeFence removes a surrounding markdown code fence, if present.
func StripCodeFence(content string) string {
	if strings.Contains(content, "```json") {
		parts := strings.SplitN(content, "```json", 2)
		content = strings.SplitN(parts[1], "```", 2)[0]
	} else if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = parts[1]
		}
	}
	return strings.TrimSpace(content)
}
