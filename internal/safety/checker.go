// Package safety validates that a proposed rewrite of an artifact preserves
// the structural invariants of the original. A repair must never "solve" a
// failure by deleting the failing function or by silently dropping
// outstanding-work markers.
package safety

import (
	"strings"
	"sync"
)

// DefaultMarkers are the outstanding-work markers counted by the
// marker-preservation check. A candidate may never carry fewer of these than
// the original unless the repair module is explicitly permitted to resolve
// them.
var DefaultMarkers = []string{
	"TODO",
	"FIXME",
	"assume(false)",
	"admit()",
	"unimplemented!()",
}

// definitionKeywords mark a line as a definition site when they precede an
// immutable region's name.
var definitionKeywords = []string{
	"fn",
	"proof fn",
	"spec fn",
	"func",
	"def",
	"function",
	"method",
}

// Checker validates candidate rewrites against an original artifact.
type Checker struct {
	mu      sync.RWMutex
	regions []string
	markers []string
}

// Options control a single safety check.
type Options struct {
	// AllowMarkerResolution permits the candidate to resolve (remove)
	// outstanding-work markers. Granted only to modules whose job is to
	// discharge such obligations.
	AllowMarkerResolution bool
}

// New creates a Checker with the given immutable region names and the
// default marker set.
func New(regions []string) *Checker {
	return &Checker{
		regions: append([]string{}, regions...),
		markers: append([]string{}, DefaultMarkers...),
	}
}

// AddRegion adds a region name to the immutable allowlist.
func (c *Checker) AddRegion(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = append(c.regions, name)
}

// SetMarkers replaces the outstanding-work marker set.
func (c *Checker) SetMarkers(markers []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = append([]string{}, markers...)
}

// Regions returns a copy of the immutable region allowlist.
func (c *Checker) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.regions...)
}

// IsSafe reports whether candidate is a safe edit of original.
func (c *Checker) IsSafe(original, candidate string, opts Options) bool {
	safe, _ := c.IsSafeWithReason(original, candidate, opts)
	return safe
}

// IsSafeWithReason checks candidate against original and explains the first
// violation found. Two independent checks must both pass: every immutable
// region defined in the original must still be defined in the candidate, and
// the candidate must not carry fewer outstanding-work markers than the
// original. Never returns an error; a malformed candidate simply fails.
func (c *Checker) IsSafeWithReason(original, candidate string, opts Options) (bool, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, region := range c.regions {
		if !definesRegion(original, region) {
			// The allowlist may cover regions not present in this
			// artifact; those cannot be deleted by a rewrite of it.
			continue
		}
		if !definesRegion(candidate, region) {
			return false, "candidate removes immutable region: " + region
		}
	}

	if !opts.AllowMarkerResolution {
		for _, marker := range c.markers {
			origCount := strings.Count(original, marker)
			candCount := strings.Count(candidate, marker)
			if candCount < origCount {
				return false, "candidate drops outstanding-work marker: " + marker
			}
		}
	}

	return true, ""
}

// definesRegion reports whether code contains a definition of the named
// region: a line where a definition keyword precedes the name and the name
// is followed by an argument list or generics.
func definesRegion(code, name string) bool {
	for _, line := range strings.Split(code, "\n") {
		idx := strings.Index(line, name)
		if idx < 0 {
			continue
		}
		// The name must start a token and be followed by ( or < or whitespace.
		end := idx + len(name)
		if end < len(line) {
			next := line[end]
			if next != '(' && next != '<' && next != ' ' && next != '\t' {
				continue
			}
		}
		prefix := line[:idx]
		for _, kw := range definitionKeywords {
			if strings.Contains(prefix, kw+" ") || strings.HasSuffix(prefix, kw) {
				return true
			}
		}
	}
	return false
}
