package verify

import (
	"regexp"
	"strings"

	"github.com/verifix-dev/verifix/pkg/models"
)

// kindPattern maps diagnostic text to an ErrorKind. A pattern matches when
// every substring appears in the lowercased message. Patterns are checked in
// order, so more specific patterns must precede general ones.
type kindPattern struct {
	kind     models.ErrorKind
	contains []string
}

// kindPatterns is the classification table for verifier diagnostics.
// Unmatched messages fall through to KindOther.
var kindPatterns = []kindPattern{
	{models.KindPreconditionLengthFail, []string{"precondition not satisfied", "length"}},
	{models.KindPreconditionLengthFail, []string{"precondition not satisfied", "len("}},
	{models.KindConstructorInvariant, []string{"invariant", "constructor"}},
	{models.KindInvariantFailEntry, []string{"invariant not satisfied", "entry"}},
	{models.KindInvariantFailEntry, []string{"invariant not satisfied", "before loop"}},
	{models.KindInvariantFailExit, []string{"invariant not satisfied", "end of loop"}},
	{models.KindInvariantFailExit, []string{"invariant not satisfied", "exit"}},
	{models.KindTypeAnnotationMissing, []string{"type annotations needed"}},
	{models.KindTypeAnnotationMissing, []string{"cannot infer type"}},
	{models.KindTypeMismatch, []string{"mismatched types"}},
	{models.KindTypeMismatch, []string{"type mismatch"}},
	{models.KindArithmeticOverflow, []string{"overflow"}},
	{models.KindArithmeticOverflow, []string{"underflow"}},
	{models.KindDecreasesFail, []string{"decreases not satisfied"}},
	{models.KindDecreasesFail, []string{"could not prove termination"}},
	{models.KindMissingImportOrImpl, []string{"unresolved import"}},
	{models.KindMissingImportOrImpl, []string{"cannot find"}},
	{models.KindMissingImportOrImpl, []string{"no method named"}},
	{models.KindMissingImportOrImpl, []string{"not implemented"}},
	{models.KindModeError, []string{"mode"}},
	{models.KindStaleReferenceError, []string{"borrowed"}},
	{models.KindStaleReferenceError, []string{"stale"}},
	{models.KindPrivateFieldAccess, []string{"private"}},
	{models.KindAssertionFail, []string{"assertion failed"}},
	{models.KindAssertionFail, []string{"assert"}},
	{models.KindPreconditionFail, []string{"precondition not satisfied"}},
	{models.KindPreconditionFail, []string{"precondition"}},
	{models.KindPostconditionFail, []string{"postcondition not satisfied"}},
	{models.KindPostconditionFail, []string{"postcondition"}},
	{models.KindPostconditionFail, []string{"ensures"}},
}

// ClassifyMessage maps a raw diagnostic message to an ErrorKind.
func ClassifyMessage(message string) models.ErrorKind {
	lower := strings.ToLower(message)
	for _, p := range kindPatterns {
		matched := true
		for _, sub := range p.contains {
			if !strings.Contains(lower, sub) {
				matched = false
				break
			}
		}
		if matched {
			return p.kind
		}
	}
	return models.KindOther
}

var (
	// summaryRe matches the verifier's result line, e.g.
	// "verification results:: verified: 3 errors: 2".
	summaryRe = regexp.MustCompile(`verified:\s*(\d+)\s*,?\s*errors:\s*(\d+)`)
	// errorLineRe matches diagnostic headers like "error: assertion failed"
	// or "error[E0308]: mismatched types".
	errorLineRe = regexp.MustCompile(`^error(\[[A-Za-z0-9]+\])?:\s*(.+)$`)
	// locationRe matches the location pointer emitted under a diagnostic,
	// e.g. "  --> src/main.rs:14:9".
	locationRe = regexp.MustCompile(`^\s*-->\s*(\S+)`)
)

// ParseOutput turns raw verifier output into a Score and classified errors.
// If the output carries no verification summary and the tool did not exit
// cleanly, the artifact is treated as a compilation failure: the caller gets
// the sentinel Score and no structured failures, which routes the repair
// engine to the generic syntax path.
func ParseOutput(output string, exitCode int) (models.Score, []models.VerificationError) {
	var errors []models.VerificationError

	lines := strings.Split(output, "\n")
	for i, line := range lines {
		m := errorLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		message := m[2]

		location := ""
		if i+1 < len(lines) {
			if lm := locationRe.FindStringSubmatch(lines[i+1]); lm != nil {
				location = lm[1]
			}
		}

		errors = append(errors, models.VerificationError{
			Kind:     ClassifyMessage(message),
			Location: location,
			Message:  message,
		})
	}

	if m := summaryRe.FindStringSubmatch(output); m != nil {
		verified := atoi(m[1])
		errCount := atoi(m[2])
		return models.NewScore(verified, errCount), errors
	}

	// No summary line: a clean exit means the artifact verified with no
	// reported units; anything else never reached verification.
	if exitCode == 0 && len(errors) == 0 {
		return models.NewScore(0, 0), nil
	}
	return models.CompilationFailure(), nil
}

// atoi converts a digits-only string already validated by regexp.
func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
