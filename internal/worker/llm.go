package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/internal/compression"
	"github.com/maestrohq/maestro/internal/llm"
	"github.com/maestrohq/maestro/pkg/models"
)

// rolePreambles state what each specialized worker is expected to produce.
var rolePreambles = map[models.Role]string{
	models.RoleSearcher:    "You are a research worker. Gather the facts the task asks for and report them with their sources.",
	models.RoleCoder:       "You are a coding worker. Produce working code that accomplishes the task, with a short note on how to run it.",
	models.RoleInterpreter: "You are an analysis worker. Interpret the provided material and explain what it means for the task.",
	models.RoleReader:      "You are a reading worker. Extract the relevant content from the provided material, faithfully and without invention.",
	models.RoleWriter:      "You are a writing worker. Produce the requested prose, complete and ready to use.",
	models.RoleReporter:    "You are a reporting worker. Assemble the prerequisite results into the requested report.",
	models.RoleThinker:     "You are a reasoning worker. Think the problem through step by step and state your conclusion.",
}

// NewLLMWorker returns a Worker that hands the action to the model with a
// role-specific preamble. When a compression service is provided, the raw
// model output is archived and the compact summary becomes the recorded
// result; outputs judged not useful fall back to the raw text.
func NewLLMWorker(role models.Role, invoke llm.Invoker, comp *compression.Service) Worker {
	preamble := rolePreambles[role]

	return func(ctx context.Context, action *models.Action, subPlan *models.Plan) (string, error) {
		prompt := buildWorkerPrompt(preamble, action, subPlan)

		output, err := invoke(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("model call for %s: %w", action.ID, err)
		}

		if comp == nil {
			return output, nil
		}

		ref, err := comp.Compress(ctx, models.CompressionInput{
			PlanTitle:       subPlan.Title,
			StepID:          action.ID,
			StepTitle:       action.Description,
			StepDescription: action.Details,
			ToolName:        string(role),
			RawOutput:       output,
		})
		if err != nil {
			return "", err
		}
		if ref == nil {
			return output, nil
		}
		return formatArtifactResult(ref), nil
	}
}

// RegisterLLMWorkers installs a model-backed worker for every known role.
func RegisterLLMWorkers(r *Registry, invoke llm.Invoker, comp *compression.Service) error {
	for _, role := range models.Roles {
		if err := r.Register(role, NewLLMWorker(role, invoke, comp)); err != nil {
			return err
		}
	}
	return nil
}

// buildWorkerPrompt assembles the hand-off prompt: the role preamble, the
// current task, and the results of its prerequisites from the sub-plan.
func buildWorkerPrompt(preamble string, action *models.Action, subPlan *models.Plan) string {
	var b strings.Builder
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n")
	}

	b.WriteString("# Current task:\n")
	b.WriteString(action.Description)
	b.WriteString("\n")
	if action.Details != "" {
		b.WriteString("\n## Details\n")
		b.WriteString(action.Details)
		b.WriteString("\n")
	}

	var deps []*models.Action
	for _, prior := range subPlan.Actions() {
		if prior.ID != action.ID && prior.ExecutionResult != "" {
			deps = append(deps, prior)
		}
	}
	if len(deps) > 0 {
		b.WriteString("\n## Results of prerequisite tasks:\n")
		for _, dep := range deps {
			b.WriteString("### Task: ")
			b.WriteString(dep.Description)
			b.WriteString("\n### Result: ")
			b.WriteString(dep.ExecutionResult)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// formatArtifactResult renders a compact result from a stored artifact
// reference so the conversation carries the summary, not the raw output.
func formatArtifactResult(ref *models.ArtifactRef) string {
	var b strings.Builder
	b.WriteString(ref.SummaryTitle)
	b.WriteString("\n\n")
	b.WriteString(ref.Summary)
	if len(ref.Extraction) > 0 {
		b.WriteString("\n")
		for _, item := range ref.Extraction {
			b.WriteString("\n- ")
			b.WriteString(item)
		}
	}
	b.WriteString("\n\nFull output: ")
	b.WriteString(ref.ArtifactFile)
	return b.String()
}
