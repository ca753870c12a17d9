// Package oracle defines the diagnosis oracle contract: the external
// LLM-backed service that turns failure logs into hypotheses and file edits.
// The core only applies or reverts what the oracle returns; producing
// correct fixes is the oracle's problem.
package oracle

import (
	"context"
	"fmt"
)

// Diagnosis is the oracle's analysis of a failure.
type Diagnosis struct {
	Hypotheses        []string `json:"hypotheses"`
	RootCause         string   `json:"root_cause,omitempty"`
	SuggestedStrategy string   `json:"suggested_strategy"`
	Confidence        float64  `json:"confidence"`
}

// Edit is one whole-file replacement suggested by the oracle. File is an
// untrusted path and must go through safety.WithinRoot before any write.
type Edit struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

// FixResult is the oracle's answer to an ApplyFix request.
type FixResult struct {
	Analysis string `json:"analysis"`
	Edits    []Edit `json:"edits"`
}

// Oracle is the diagnosis contract consumed by the pipeline and the
// auto-fix loop.
type Oracle interface {
	// Analyze turns raw failure logs (plus optional source excerpts) into a
	// diagnosis. failureType is "build", "test" or "lint".
	Analyze(ctx context.Context, failureType, logs, sourceContext string) (*Diagnosis, error)

	// GenerateFixPrompt derives the instruction text handed to the
	// edit-applier from a diagnosis.
	GenerateFixPrompt(ctx context.Context, d *Diagnosis, failureType, logs string) (string, error)

	// ApplyFix asks for concrete file edits for one issue, with related
	// source files attached as context.
	ApplyFix(ctx context.Context, issue string, contextText string) (*FixResult, error)
}

// Error wraps oracle transport and parse failures so callers can decide to
// degrade to a default diagnosis instead of the adapter hiding the failure.
type Error struct {
	Op  string // "analyze", "fix_prompt", "apply_fix"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultDiagnosis is the low-confidence fallback used when the oracle is
// unreachable or returns an unparseable response.
func DefaultDiagnosis(failureType string) *Diagnosis {
	return &Diagnosis{
		Hypotheses:        []string{fmt.Sprintf("%s failure, cause not determined", failureType)},
		SuggestedStrategy: "inspect the captured logs and retry",
		Confidence:        0.1,
	}
}
