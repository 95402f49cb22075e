package optimizer

import "fmt"

// ValidationError rejects bad input before any other step runs. It surfaces
// distinctly from generation and retrieval faults so callers can map it to a
// bad-input response without inspecting message text.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid prompt: %s", e.Reason)
}

// OptimizationError is the single failure kind the orchestrator surfaces for
// non-validation faults. Callers distinguish causes via the wrapped error.
type OptimizationError struct {
	Provider     string
	PromptLength int
	Cause        error
}

func (e *OptimizationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("failed to optimize prompt (provider=%s, prompt_length=%d): %v",
			e.Provider, e.PromptLength, e.Cause)
	}
	return fmt.Sprintf("failed to optimize prompt (prompt_length=%d): %v", e.PromptLength, e.Cause)
}

func (e *OptimizationError) Unwrap() error {
	return e.Cause
}
