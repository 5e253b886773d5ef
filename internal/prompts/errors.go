// Package prompts provides centralized agent prompt management for Fabrica.
//
// Prompts are Go text templates embedded at build time. Activities render
// them with typed data instead of concatenating instruction strings inline.
package prompts

import "errors"

// Sentinel errors for prompt operations.
var (
	// ErrTemplateNotFound indicates that no template is registered under
	// the requested ID.
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrTemplateExecution indicates that a template failed to render.
	ErrTemplateExecution = errors.New("prompt template execution failed")
)
