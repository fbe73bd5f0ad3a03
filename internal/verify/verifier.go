// Package verify runs the external verifier against an artifact and turns
// its diagnostics into classified verification errors and a Score.
package verify

import (
	"context"

	"github.com/verifix-dev/verifix/pkg/models"
)

// Result is the outcome of one verification attempt.
type Result struct {
	// Score summarizes verification quality for the artifact.
	Score models.Score
	// Errors are the classified failures, in discovery order.
	Errors []models.VerificationError
	// RawOutput is the verifier's unprocessed output, kept for prompts
	// and debugging.
	RawOutput string
}

// Verifier checks an artifact against its formal obligations. Verification
// may take tens of seconds to minutes; callers must treat every call as a
// long-latency suspension point and never assume it is idempotent-fast.
type Verifier interface {
	Verify(ctx context.Context, code string) (*Result, error)
}
