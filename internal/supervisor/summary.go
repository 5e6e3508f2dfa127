package supervisor

import (
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/pkg/models"
)

// nextStepSummary renders the hand-off message for an action: the task
// itself plus the results of everything it depends on, drawn from its
// dependency-closure sub-plan. This is the only content the fresh
// conversation buffer carries into the next worker.
func nextStepSummary(action *models.Action, subPlan *models.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Current task:\n%s\n", action.Description)
	if action.Details != "" {
		fmt.Fprintf(&b, "## Details\n%s\n", action.Details)
	}

	b.WriteString("## Results of prerequisite tasks:\n")
	for _, goal := range subPlan.Goals {
		for _, dep := range goal.Actions {
			if dep.ID == action.ID {
				continue
			}
			fmt.Fprintf(&b, "### Task: %s\n", dep.Description)
			fmt.Fprintf(&b, "### Result:\n%s\n", dep.ExecutionResult)
		}
	}
	return b.String()
}

// retryMessage renders the instruction sent back to the same worker
// role after a rejection.
func retryMessage(j *Judgment) string {
	return fmt.Sprintf("Step rejected: %s\nStep score: %.2f.\nPlease retry.", j.Suggestion, j.Score)
}

// judgmentPrompt asks the model to review one action's result and pick
// a verdict. The schema mirrors an advise/complete tool-call pair.
func judgmentPrompt(action *models.Action, result string) string {
	var b strings.Builder
	b.WriteString(`You are a strict supervisor reviewing the output of a specialized worker.
Evaluate whether the action result below fully satisfies the action's goal.

`)
	fmt.Fprintf(&b, "# Action %s:\n%s\n", action.ID, action.Description)
	if action.Details != "" {
		fmt.Fprintf(&b, "# Details:\n%s\n", action.Details)
	}
	fmt.Fprintf(&b, "# Action result:\n%s\n", result)

	b.WriteString(`
Respond with ONLY valid JSON in one of these two forms:

To send the result back for another attempt:
` + "```json" + `
{"decision": "advise", "suggestion": "specific issues and the direction for improvement", "score": 0.4}
` + "```" + `

To accept the result and mark the action complete:
` + "```json" + `
{"decision": "complete", "action_id": "` + action.ID + `"}
` + "```" + `
`)
	return b.String()
}
