package prompts

import (
	"bytes"
	"errors"
	"fmt"
)

// Render executes a prompt template with the provided data and returns the
// result. The data type should match the expected type for the given ID.
//
// Example:
//
//	prompt, err := prompts.Render(prompts.WorkStep, prompts.WorkStepData{
//	    Package:  "left-pad",
//	    WorkKind: "gather_requirements",
//	})
func Render(id PromptID, data any) (string, error) {
	tmpl, err := globalRegistry.get(id)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Join(ErrTemplateExecution, fmt.Errorf("prompt %s: %w", id, err))
	}
	return buf.String(), nil
}
