package research

import "fmt"

// PlanningError means the language model produced no usable queries.
// Fatal at session start; mid-session it only ends the loop.
type PlanningError struct {
	Message string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning: %s", e.Message)
}

// ProviderError wraps a search provider failure. A non-transient provider
// error (bad credentials, exhausted quota) makes the whole session unusable.
type ProviderError struct {
	// Query is the search text that triggered the failure.
	Query string
	// Transient marks errors worth retrying: rate limits and server errors.
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider: query %q: %v", e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// SynthesisStage names the synthesizer call that failed.
type SynthesisStage string

const (
	StageExtendDraft SynthesisStage = "extend-draft"
	StageAssessGaps  SynthesisStage = "assess-gaps"
)

// SynthesisError wraps a malformed or empty language model response during
// report synthesis, after the internal simplified-prompt retry.
type SynthesisError struct {
	Stage SynthesisStage
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis: %s: %v", e.Stage, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
