package models

import "sort"

// ErrorKind classifies a verification failure. The enumeration is closed:
// diagnostics that do not match any known kind are mapped to KindOther.
type ErrorKind string

const (
	KindTypeMismatch           ErrorKind = "type-mismatch"
	KindPreconditionLengthFail ErrorKind = "precondition-length-fail"
	KindArithmeticOverflow     ErrorKind = "arithmetic-overflow"
	KindInvariantFailEntry     ErrorKind = "invariant-fail-entry"
	KindInvariantFailExit      ErrorKind = "invariant-fail-exit"
	KindConstructorInvariant   ErrorKind = "constructor-invariant"
	KindTypeAnnotationMissing  ErrorKind = "type-annotation-missing"
	KindDecreasesFail          ErrorKind = "decreases-fail"
	KindMissingImportOrImpl    ErrorKind = "missing-import-or-impl"
	KindModeError              ErrorKind = "mode-error"
	KindAssertionFail          ErrorKind = "assertion-fail"
	KindPreconditionFail       ErrorKind = "precondition-fail"
	KindStaleReferenceError    ErrorKind = "stale-reference-error"
	KindPostconditionFail      ErrorKind = "postcondition-fail"
	KindPrivateFieldAccess     ErrorKind = "private-field-access"
	KindOther                  ErrorKind = "other"
)

// otherPriority sorts KindOther after every recognized kind.
const otherPriority = 1 << 20

// defaultPriorities is the fixed total order over error kinds used to sort
// failures before dispatch. Structural and type errors block all downstream
// checks and are cheapest to fix first; semantic postcondition failures come
// last because their fixes are most likely to be invalidated by earlier
// structural fixes.
var defaultPriorities = map[ErrorKind]int{
	KindTypeMismatch:           1,
	KindPreconditionLengthFail: 2,
	KindArithmeticOverflow:     3,
	KindInvariantFailEntry:     4,
	KindInvariantFailExit:      5,
	KindConstructorInvariant:   6,
	KindTypeAnnotationMissing:  7,
	KindDecreasesFail:          8,
	KindMissingImportOrImpl:    9,
	KindModeError:              10,
	KindAssertionFail:          11,
	KindPreconditionFail:       12,
	KindStaleReferenceError:    13,
	KindPostconditionFail:      14,
	KindPrivateFieldAccess:     15,
}

// AllKinds lists every recognized kind in priority order, excluding KindOther.
func AllKinds() []ErrorKind {
	kinds := make([]ErrorKind, 0, len(defaultPriorities))
	for k := range defaultPriorities {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return defaultPriorities[kinds[i]] < defaultPriorities[kinds[j]]
	})
	return kinds
}

// Priority returns the dispatch priority for a kind. Lower is handled first.
// Unrecognized kinds sort last.
func Priority(kind ErrorKind) int {
	if p, ok := defaultPriorities[kind]; ok {
		return p
	}
	return otherPriority
}

// ParseKind maps a string to a recognized ErrorKind, or KindOther.
func ParseKind(s string) ErrorKind {
	kind := ErrorKind(s)
	if _, ok := defaultPriorities[kind]; ok {
		return kind
	}
	return KindOther
}

// VerificationError is a single classified failure extracted from a
// verification attempt. It is immutable and consumed once per repair round;
// each round re-verifies and reclassifies from scratch.
type VerificationError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`
	// Location is an opaque file position reference from the verifier.
	Location string `json:"location"`
	// Message is the raw diagnostic text.
	Message string `json:"message"`
}

// PriorityOrder resolves dispatch priorities with optional overrides from
// configuration. A nil or empty override map falls back to the defaults.
type PriorityOrder struct {
	overrides map[ErrorKind]int
}

// NewPriorityOrder builds a priority order with the given overrides.
func NewPriorityOrder(overrides map[ErrorKind]int) *PriorityOrder {
	return &PriorityOrder{overrides: overrides}
}

// Priority returns the effective priority for a kind.
func (p *PriorityOrder) Priority(kind ErrorKind) int {
	if p != nil && p.overrides != nil {
		if v, ok := p.overrides[kind]; ok {
			return v
		}
	}
	return Priority(kind)
}

// SortFailures sorts failures by priority, keeping the original discovery
// order for ties. The input slice is not modified.
func (p *PriorityOrder) SortFailures(failures []VerificationError) []VerificationError {
	sorted := make([]VerificationError, len(failures))
	copy(sorted, failures)
	sort.SliceStable(sorted, func(i, j int) bool {
		return p.Priority(sorted[i].Kind) < p.Priority(sorted[j].Kind)
	})
	return sorted
}
