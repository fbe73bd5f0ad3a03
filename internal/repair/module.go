// Package repair implements the round-based repair engine: the module
// registry, failure prioritization, and bounded round execution that turn
// classified verification errors into candidate rewrites.
package repair

import (
	"context"

	"github.com/verifix-dev/verifix/pkg/models"
)

// Input carries everything a module needs to produce a candidate rewrite.
type Input struct {
	// Code is the artifact the repair starts from.
	Code string
	// Failure is the specific failure to address; nil on the generic
	// syntax path where no structured failures exist.
	Failure *models.VerificationError
	// RawOutput is the verifier's raw diagnostics for Code.
	RawOutput string
	// PriorFailures summarizes earlier failed trials.
	PriorFailures []string
	// Knowledge holds snippet id -> text pairs for prompt enrichment.
	Knowledge map[string]string
}

// Module is a named repair capability bound to a subset of error kinds.
// Modules own no mutable state beyond their name and binding; a module
// invocation may fail or return garbage, and the registry treats either as
// "this failure not resolved this round".
type Module interface {
	// Name identifies the module in logs and round results.
	Name() string
	// Handles reports whether this module repairs the given kind.
	Handles(kind models.ErrorKind) bool
	// ResolvesMarkers reports whether this module is permitted to
	// discharge outstanding-work markers in the artifact.
	ResolvesMarkers() bool
	// Repair produces a candidate rewrite of the artifact. Blocking and
	// long-latency: backed by a generative inference call.
	Repair(ctx context.Context, input Input) (string, error)
}
