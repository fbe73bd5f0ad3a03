// Package models defines the shared data types for verifix: verification
// scores, classified verification errors, and repair trials. These types are
// shared between the verify, repair, and driver packages.
package models

import "fmt"

// Sentinel values used when the verifier could not even compile the artifact.
// They guarantee that any genuine partial verification compares strictly
// better than a compilation failure.
const (
	// SentinelVerified is the VerifiedCount recorded for a compilation failure.
	SentinelVerified = -1
	// SentinelErrors is the ErrorCount recorded for a compilation failure.
	SentinelErrors = 999
)

// Score is an ordered measure of verification quality for one artifact.
// A Score is computed fresh after every verification attempt and is never
// mutated afterwards, only compared.
type Score struct {
	// VerifiedCount is the number of successfully verified units.
	VerifiedCount int `json:"verified_count"`
	// ErrorCount is the number of verification errors reported.
	ErrorCount int `json:"error_count"`
	// CompilationError indicates the artifact did not compile at all.
	CompilationError bool `json:"compilation_error"`
}

// NewScore creates a Score from a successful compilation.
func NewScore(verified, errors int) Score {
	return Score{VerifiedCount: verified, ErrorCount: errors}
}

// CompilationFailure returns the sentinel Score for an artifact that did not
// compile. VerifiedCount and ErrorCount are forced to sentinel values so the
// ordering invariant holds regardless of what the caller observed.
func CompilationFailure() Score {
	return Score{
		VerifiedCount:    SentinelVerified,
		ErrorCount:       SentinelErrors,
		CompilationError: true,
	}
}

// IsVerified reports whether the artifact fully verified.
func (s Score) IsVerified() bool {
	return !s.CompilationError && s.ErrorCount == 0
}

// Comparison is the result of ordering two Scores.
type Comparison int

const (
	// Worse means the first score is worse than the second.
	Worse Comparison = iota - 1
	// Equal means the scores are equivalent.
	Equal
	// Better means the first score is better than the second.
	Better
)

// String returns the comparison as a readable word.
func (c Comparison) String() string {
	switch c {
	case Worse:
		return "worse"
	case Better:
		return "better"
	default:
		return "equal"
	}
}

// Compare orders Score a against Score b. The ordering is total:
// a compiling artifact always beats a non-compiling one, then higher
// VerifiedCount wins, then lower ErrorCount wins.
func Compare(a, b Score) Comparison {
	if a.CompilationError != b.CompilationError {
		if b.CompilationError {
			return Better
		}
		return Worse
	}
	if a.VerifiedCount != b.VerifiedCount {
		if a.VerifiedCount > b.VerifiedCount {
			return Better
		}
		return Worse
	}
	if a.ErrorCount != b.ErrorCount {
		if a.ErrorCount < b.ErrorCount {
			return Better
		}
		return Worse
	}
	return Equal
}

// BetterThan reports whether s is strictly better than other.
func (s Score) BetterThan(other Score) bool {
	return Compare(s, other) == Better
}

// String renders the score for logs and reports.
func (s Score) String() string {
	if s.CompilationError {
		return "compilation failed"
	}
	return fmt.Sprintf("%d verified, %d errors", s.VerifiedCount, s.ErrorCount)
}
