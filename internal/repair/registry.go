package repair

import (
	"context"
	"fmt"
	"time"

	"github.com/verifix-dev/verifix/internal/safety"
	"github.com/verifix-dev/verifix/internal/session"
	"github.com/verifix-dev/verifix/internal/verify"
	"github.com/verifix-dev/verifix/pkg/models"
)

// priorFailureLimit caps how many prior trial summaries are passed to a
// module per invocation.
const priorFailureLimit = 5

// Config configures a Registry.
type Config struct {
	// Verifier re-verifies every candidate before acceptance. Required.
	Verifier verify.Verifier
	// Checker validates candidates before they are re-verified. Required.
	Checker *safety.Checker
	// Order decides dispatch order within a round. Defaults to the
	// standard priority table.
	Order *models.PriorityOrder
	// Generic handles kinds no registered module is bound to. Required.
	Generic Module
	// Syntax handles the compilation-failure path. Required.
	Syntax Module
	// Now supplies the clock for round deadlines. Defaults to time.Now.
	Now func() time.Time
	// Logf receives progress lines. Defaults to discarding them.
	Logf func(format string, args ...any)
}

// Registry binds error kinds to repair modules and executes repair rounds.
type Registry struct {
	byKind   map[models.ErrorKind]Module
	order    *models.PriorityOrder
	verifier verify.Verifier
	checker  *safety.Checker
	generic  Module
	syntax   Module
	now      func() time.Time
	logf     func(format string, args ...any)
}

// NewRegistry creates a Registry with no modules bound.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("registry: verifier is required")
	}
	if cfg.Checker == nil {
		return nil, fmt.Errorf("registry: safety checker is required")
	}
	if cfg.Generic == nil {
		return nil, fmt.Errorf("registry: generic module is required")
	}
	if cfg.Syntax == nil {
		return nil, fmt.Errorf("registry: syntax module is required")
	}

	order := cfg.Order
	if order == nil {
		order = models.NewPriorityOrder(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}

	return &Registry{
		byKind:   make(map[models.ErrorKind]Module),
		order:    order,
		verifier: cfg.Verifier,
		checker:  cfg.Checker,
		generic:  cfg.Generic,
		syntax:   cfg.Syntax,
		now:      now,
		logf:     logf,
	}, nil
}

// Register binds a module to every kind it handles. A kind may be bound to
// at most one module; a conflicting registration is rejected whole so the
// dispatch table stays deterministic.
func (r *Registry) Register(m Module) error {
	var claimed []models.ErrorKind
	for _, kind := range models.AllKinds() {
		if !m.Handles(kind) {
			continue
		}
		if existing, ok := r.byKind[kind]; ok {
			return fmt.Errorf("register %s: kind %s already bound to %s", m.Name(), kind, existing.Name())
		}
		claimed = append(claimed, kind)
	}
	for _, kind := range claimed {
		r.byKind[kind] = m
	}
	return nil
}

// moduleFor returns the module dispatched for a kind, falling back to the
// generic module.
func (r *Registry) moduleFor(kind models.ErrorKind) Module {
	if m, ok := r.byKind[kind]; ok {
		return m
	}
	return r.generic
}

// RepairAll runs one repair round against the given artifact. res must be
// the verification result for code. Failures are dispatched in priority
// order; the round deadline is re-checked before every repair step, and the
// working artifact only advances when a candidate scores strictly better
// than it. roundTimeout <= 0 disables the deadline.
func (r *Registry) RepairAll(ctx context.Context, sess *session.Session, code string, res *verify.Result, roundStart time.Time, roundTimeout time.Duration) RoundResult {
	working := code
	workingRes := res
	failures := r.order.SortFailures(res.Errors)

	result := RoundResult{}
	finish := func() RoundResult {
		result.FinalCode = working
		result.FinalResult = workingRes
		return result
	}

	expired := func() bool {
		return roundTimeout > 0 && r.now().Sub(roundStart) >= roundTimeout
	}

	// The compilation-failure path runs the syntax module once for the
	// whole artifact instead of dispatching per failure; a non-compiling
	// artifact has no trustworthy classified failures. A compiling result
	// re-enters the round with the fresh failure set.
	if res.Score.CompilationError {
		if expired() {
			result.TimedOut = true
			return finish()
		}
		result.Attempted++
		applied, verified, ok := r.attempt(ctx, sess, r.syntax, working, workingRes, nil)
		if ok {
			result.Applied = append(result.Applied, applied)
		}
		if !ok || !applied.Improved {
			// Still not compiling; the round has nothing to dispatch.
			return finish()
		}
		result.Improved = true
		working = applied.Trial.Code
		workingRes = verified
		if verified.Score.IsVerified() {
			result.Completed = true
			return finish()
		}
		failures = r.order.SortFailures(workingRes.Errors)
	}

	for _, failure := range failures {
		if expired() {
			result.TimedOut = true
			return finish()
		}
		if ctx.Err() != nil {
			return finish()
		}

		failure := failure
		module := r.moduleFor(failure.Kind)
		r.logf("repairing %s at %s with module %s", failure.Kind, failure.Location, module.Name())

		result.Attempted++
		applied, verified, ok := r.attempt(ctx, sess, module, working, workingRes, &failure)
		if !ok {
			continue
		}

		result.Applied = append(result.Applied, applied)
		if applied.Improved {
			result.Improved = true
			working = applied.Trial.Code
			workingRes = verified
			if verified.Score.IsVerified() {
				// Remaining failures are artifacts of an older
				// version; nothing left to repair.
				break
			}
			// Later failures in this round still come from the stale
			// failure list; the next round reclassifies from scratch.
		}
	}

	result.Completed = true
	return finish()
}

// attempt runs one module invocation end to end: produce a candidate, check
// it for safety, re-verify it, and record it as a trial. Returns ok=false
// when the candidate was rejected at any stage; rejected candidates leave no
// trace in trial history or the checkpoint.
func (r *Registry) attempt(ctx context.Context, sess *session.Session, module Module, working string, workingRes *verify.Result, failure *models.VerificationError) (AppliedRepair, *verify.Result, bool) {
	input := Input{
		Code:          working,
		Failure:       failure,
		RawOutput:     workingRes.RawOutput,
		PriorFailures: sess.PriorFailures(priorFailureLimit),
		Knowledge:     sess.Knowledge(),
	}

	candidate, err := safeRepair(ctx, module, input)
	if err != nil {
		r.logf("module %s failed: %v", module.Name(), err)
		return AppliedRepair{}, nil, false
	}

	opts := safety.Options{AllowMarkerResolution: module.ResolvesMarkers()}
	if safe, reason := r.checker.IsSafeWithReason(working, candidate, opts); !safe {
		r.logf("module %s candidate rejected: %s", module.Name(), reason)
		return AppliedRepair{}, nil, false
	}

	verified, err := r.verifier.Verify(ctx, candidate)
	if err != nil {
		r.logf("verifying %s candidate: %v", module.Name(), err)
		return AppliedRepair{}, nil, false
	}

	trial := sess.AppendTrial(candidate, verified.Score)
	if adopted, err := sess.Checkpoint().Consider(verified.Score, candidate); err != nil {
		r.logf("checkpoint: %v", err)
	} else if adopted {
		r.logf("checkpoint adopted: %s", verified.Score)
	}

	kind := models.KindOther
	if failure != nil {
		kind = failure.Kind
	}
	return AppliedRepair{
		Kind:     kind,
		Module:   module.Name(),
		Trial:    trial,
		Score:    verified.Score,
		Improved: verified.Score.BetterThan(workingRes.Score),
	}, verified, true
}

// safeRepair invokes a module and converts a panic into an error, so one
// misbehaving module cannot take down the round.
func safeRepair(ctx context.Context, module Module, input Input) (candidate string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module %s panicked: %v", module.Name(), rec)
		}
	}()
	return module.Repair(ctx, input)
}
