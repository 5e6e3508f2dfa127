package models

// CompressionInput carries the context handed to the compression model.
// These fields guide summarization and derive the artifact filename; they
// are not injected into the conversation themselves.
type CompressionInput struct {
	// PlanTitle is the title of the owning plan.
	PlanTitle string `json:"plan_title"`
	// StepID is the id of the action that produced the output.
	StepID string `json:"step_id"`
	// StepTitle is the short title of the step.
	StepTitle string `json:"step_title"`
	// StepDescription describes what the step was doing.
	StepDescription string `json:"step_description"`
	// ToolName names the tool that produced the raw output.
	ToolName string `json:"tool_name"`
	// RawOutput is the verbatim tool output.
	RawOutput string `json:"raw_output"`
}

// Compression is the structured summary returned by the compression model.
type Compression struct {
	// SummaryTitle is a 5-12 word title for the result.
	SummaryTitle string `json:"summary_title"`
	// Summary is 3-10 sentences strictly relevant to the current step.
	Summary string `json:"summary"`
	// Extraction lists key factual bullets; may be empty.
	Extraction []string `json:"extraction"`
	// IsUseful is false when the output is irrelevant, empty, or noise.
	IsUseful bool `json:"is_useful"`
}

// ArtifactRef is the compact reference injected into the conversation
// when a compressed result is useful. The raw output stays on disk.
type ArtifactRef struct {
	SummaryTitle string   `json:"summary_title"`
	Summary      string   `json:"summary"`
	Extraction   []string `json:"extraction"`
	// ArtifactFile is the path of the raw artifact relative to the store root.
	ArtifactFile string `json:"artifact_file"`
}

// ArtifactInfo describes a stored artifact file for listings.
type ArtifactInfo struct {
	// Path is relative to the artifact store root.
	Path string `json:"path"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
}
