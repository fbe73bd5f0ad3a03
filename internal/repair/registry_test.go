package repair

import (
	"context"
	"testing"
	"time"

	"github.com/verifix-dev/verifix/internal/checkpoint"
	"github.com/verifix-dev/verifix/internal/safety"
	"github.com/verifix-dev/verifix/internal/session"
	"github.com/verifix-dev/verifix/internal/verify"
	"github.com/verifix-dev/verifix/pkg/models"
)

// fakeModule is a scriptable Module for registry tests.
type fakeModule struct {
	name     string
	kinds    map[models.ErrorKind]bool
	resolves bool
	repair   func(input Input) (string, error)
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) Handles(kind models.ErrorKind) bool { return f.kinds[kind] }

func (f *fakeModule) ResolvesMarkers() bool { return f.resolves }
func (f *fakeModule) Repair(_ context.Context, input Input) (string, error) {
	return f.repair(input)
}

// fakeVerifier scores candidates by exact artifact text.
type fakeVerifier struct {
	scores map[string]models.Score
}

func (f *fakeVerifier) Verify(_ context.Context, code string) (*verify.Result, error) {
	score, ok := f.scores[code]
	if !ok {
		score = models.CompilationFailure()
	}
	return &verify.Result{Score: score}, nil
}

// resultVerifier returns full verification results by exact artifact text.
type resultVerifier struct {
	results map[string]*verify.Result
}

func (r *resultVerifier) Verify(_ context.Context, code string) (*verify.Result, error) {
	if res, ok := r.results[code]; ok {
		return res, nil
	}
	return &verify.Result{Score: models.CompilationFailure()}, nil
}

// fakeClock advances a fixed step on demand.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession(t *testing.T, code string, score models.Score) *session.Session {
	t.Helper()
	sess := session.New(session.Config{Checkpoint: checkpoint.New("")})
	sess.AppendTrial(code, score)
	return sess
}

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	if cfg.Checker == nil {
		cfg.Checker = safety.New(nil)
	}
	if cfg.Generic == nil {
		cfg.Generic = &fakeModule{name: "generic", repair: func(input Input) (string, error) {
			return input.Code, nil
		}}
	}
	if cfg.Syntax == nil {
		cfg.Syntax = &fakeModule{name: "syntax", repair: func(input Input) (string, error) {
			return input.Code, nil
		}}
	}
	reg, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestRegister_RejectsConflictingKinds(t *testing.T) {
	reg := newTestRegistry(t, Config{
		Verifier: &fakeVerifier{},
	})

	first := &fakeModule{name: "first", kinds: map[models.ErrorKind]bool{models.KindTypeMismatch: true}}
	second := &fakeModule{name: "second", kinds: map[models.ErrorKind]bool{
		models.KindTypeMismatch: true,
		models.KindModeError:    true,
	}}

	if err := reg.Register(first); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := reg.Register(second); err == nil {
		t.Fatal("conflicting registration accepted")
	}
	// The rejected registration must not claim its non-conflicting kinds.
	if got := reg.moduleFor(models.KindModeError).Name(); got != "generic" {
		t.Errorf("mode-error bound to %s after rejected registration", got)
	}
}

func TestRepairAll_DispatchesInPriorityOrder(t *testing.T) {
	var dispatched []models.ErrorKind
	record := func(input Input) (string, error) {
		dispatched = append(dispatched, input.Failure.Kind)
		return input.Code + "x", nil
	}

	verifier := &fakeVerifier{scores: map[string]models.Score{
		"base":    models.NewScore(2, 3),
		"basex":   models.NewScore(2, 3),
		"basexx":  models.NewScore(2, 3),
		"basexxx": models.NewScore(2, 3),
	}}

	reg := newTestRegistry(t, Config{Verifier: verifier})
	for _, kind := range []models.ErrorKind{
		models.KindPostconditionFail,
		models.KindTypeMismatch,
		models.KindArithmeticOverflow,
	} {
		module := &fakeModule{
			name:   string(kind),
			kinds:  map[models.ErrorKind]bool{kind: true},
			repair: record,
		}
		if err := reg.Register(module); err != nil {
			t.Fatalf("register %s: %v", kind, err)
		}
	}

	sess := newTestSession(t, "base", models.NewScore(2, 3))
	res := &verify.Result{
		Score: models.NewScore(2, 3),
		Errors: []models.VerificationError{
			{Kind: models.KindPostconditionFail, Message: "post"},
			{Kind: models.KindTypeMismatch, Message: "type"},
			{Kind: models.KindArithmeticOverflow, Message: "overflow"},
		},
	}

	result := reg.RepairAll(context.Background(), sess, "base", res, time.Now(), 0)

	want := []models.ErrorKind{
		models.KindTypeMismatch,
		models.KindArithmeticOverflow,
		models.KindPostconditionFail,
	}
	if len(dispatched) != len(want) {
		t.Fatalf("dispatched %d repairs, want %d", len(dispatched), len(want))
	}
	for i, kind := range want {
		if dispatched[i] != kind {
			t.Errorf("dispatch[%d] = %s, want %s", i, dispatched[i], kind)
		}
	}
	if !result.Completed || result.TimedOut {
		t.Errorf("result = completed %v, timed out %v; want completed and not timed out", result.Completed, result.TimedOut)
	}
}

func TestRepairAll_RoundTimeoutTruncates(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	step := func(input Input) (string, error) {
		clock.advance(6 * time.Second)
		return input.Code, nil
	}

	verifier := &fakeVerifier{scores: map[string]models.Score{
		"base": models.NewScore(1, 3),
	}}
	reg := newTestRegistry(t, Config{
		Verifier: verifier,
		Now:      clock.now,
		Generic:  &fakeModule{name: "generic", repair: step},
	})

	sess := newTestSession(t, "base", models.NewScore(1, 3))
	res := &verify.Result{
		Score: models.NewScore(1, 3),
		Errors: []models.VerificationError{
			{Kind: models.KindAssertionFail},
			{Kind: models.KindAssertionFail},
			{Kind: models.KindAssertionFail},
		},
	}

	// 10s budget, 6s per step: the deadline check admits the steps at 0s
	// and 6s, then blocks the third at 12s.
	result := reg.RepairAll(context.Background(), sess, "base", res, clock.t, 10*time.Second)

	if !result.TimedOut {
		t.Fatal("round did not time out")
	}
	if result.Completed {
		t.Error("timed-out round reported completed")
	}
	if result.Attempted != 2 {
		t.Errorf("attempted %d repairs before timeout, want 2", result.Attempted)
	}
}

func TestRepairAll_ZeroTimeoutRunsToCompletion(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	step := func(input Input) (string, error) {
		clock.advance(time.Hour)
		return input.Code, nil
	}

	verifier := &fakeVerifier{scores: map[string]models.Score{
		"base": models.NewScore(1, 2),
	}}
	reg := newTestRegistry(t, Config{
		Verifier: verifier,
		Now:      clock.now,
		Generic:  &fakeModule{name: "generic", repair: step},
	})

	sess := newTestSession(t, "base", models.NewScore(1, 2))
	res := &verify.Result{
		Score: models.NewScore(1, 2),
		Errors: []models.VerificationError{
			{Kind: models.KindAssertionFail},
			{Kind: models.KindPostconditionFail},
		},
	}

	result := reg.RepairAll(context.Background(), sess, "base", res, clock.t, 0)

	if result.TimedOut {
		t.Error("disabled deadline still timed out")
	}
	if !result.Completed || result.Attempted != 2 {
		t.Errorf("completed %v with %d attempts, want completed with 2", result.Completed, result.Attempted)
	}
}

func TestRepairAll_UnsafeCandidateLeavesNoTrace(t *testing.T) {
	checker := safety.New([]string{"push"})
	verifier := &fakeVerifier{scores: map[string]models.Score{
		"fn push(x: u32) {}": models.NewScore(1, 1),
	}}
	deleter := &fakeModule{name: "generic", repair: func(input Input) (string, error) {
		return "fn shove(x: u32) {}", nil
	}}
	reg := newTestRegistry(t, Config{
		Verifier: verifier,
		Checker:  checker,
		Generic:  deleter,
	})

	sess := newTestSession(t, "fn push(x: u32) {}", models.NewScore(1, 1))
	sess.Checkpoint().Consider(models.NewScore(1, 1), "fn push(x: u32) {}")

	res := &verify.Result{
		Score:  models.NewScore(1, 1),
		Errors: []models.VerificationError{{Kind: models.KindAssertionFail}},
	}
	result := reg.RepairAll(context.Background(), sess, "fn push(x: u32) {}", res, time.Now(), 0)

	if len(result.Applied) != 0 {
		t.Fatalf("unsafe candidate was applied: %+v", result.Applied)
	}
	if got := len(sess.Trials()); got != 1 {
		t.Errorf("trial history grew to %d entries, want 1", got)
	}
	if code, _, _ := sess.Checkpoint().Best(); code != "fn push(x: u32) {}" {
		t.Errorf("checkpoint changed to %q", code)
	}
}

func TestRepairAll_SyntaxPathOnCompilationFailure(t *testing.T) {
	syntaxCalls := 0
	syntax := &fakeModule{name: "syntax", repair: func(input Input) (string, error) {
		syntaxCalls++
		if input.Failure != nil {
			t.Error("syntax path received a classified failure")
		}
		return "fixed", nil
	}}
	genericCalls := 0
	generic := &fakeModule{name: "generic", repair: func(input Input) (string, error) {
		genericCalls++
		return input.Code, nil
	}}

	verifier := &fakeVerifier{scores: map[string]models.Score{
		"fixed": models.NewScore(3, 2),
	}}
	reg := newTestRegistry(t, Config{
		Verifier: verifier,
		Generic:  generic,
		Syntax:   syntax,
	})

	sess := newTestSession(t, "broken(", models.CompilationFailure())
	res := &verify.Result{Score: models.CompilationFailure(), RawOutput: "error: expected )"}

	result := reg.RepairAll(context.Background(), sess, "broken(", res, time.Now(), 0)

	if syntaxCalls != 1 {
		t.Errorf("syntax module called %d times, want 1", syntaxCalls)
	}
	if genericCalls != 0 {
		t.Errorf("generic module called %d times on syntax path", genericCalls)
	}
	if !result.Improved {
		t.Error("compile fix not reported as improvement")
	}
	if code, score, ok := sess.Checkpoint().Best(); !ok || code != "fixed" || !score.BetterThan(models.CompilationFailure()) {
		t.Errorf("checkpoint = %q, %s, %v after syntax fix", code, score, ok)
	}
}

func TestRepairAll_SyntaxRepairContinuesIntoFailures(t *testing.T) {
	verifier := &resultVerifier{results: map[string]*verify.Result{
		"fixed": {
			Score:  models.NewScore(3, 1),
			Errors: []models.VerificationError{{Kind: models.KindAssertionFail, Message: "assert"}},
		},
		"done": {Score: models.NewScore(4, 0)},
	}}
	syntax := &fakeModule{name: "syntax", repair: func(Input) (string, error) {
		return "fixed", nil
	}}
	proofCalls := 0
	proofs := &fakeModule{
		name:  "proofs",
		kinds: map[models.ErrorKind]bool{models.KindAssertionFail: true},
		repair: func(input Input) (string, error) {
			proofCalls++
			if input.Code != "fixed" {
				t.Errorf("proof module repaired %q, want the syntax-fixed artifact", input.Code)
			}
			return "done", nil
		},
	}

	reg := newTestRegistry(t, Config{Verifier: verifier, Syntax: syntax})
	if err := reg.Register(proofs); err != nil {
		t.Fatalf("register: %v", err)
	}

	sess := newTestSession(t, "broken(", models.CompilationFailure())
	res := &verify.Result{Score: models.CompilationFailure(), RawOutput: "error: expected )"}

	// One round carries the artifact from compile failure through the
	// reclassified failure set to fully verified.
	result := reg.RepairAll(context.Background(), sess, "broken(", res, time.Now(), 0)

	if proofCalls != 1 {
		t.Errorf("per-failure module called %d times in the syntax round, want 1", proofCalls)
	}
	if result.Attempted != 2 || len(result.Applied) != 2 {
		t.Errorf("attempted %d, applied %d; want 2 and 2", result.Attempted, len(result.Applied))
	}
	if !result.Completed || !result.Improved {
		t.Errorf("completed %v, improved %v; want both", result.Completed, result.Improved)
	}
	if result.FinalCode != "done" || !result.FinalResult.Score.IsVerified() {
		t.Errorf("final = %q (%s), want done fully verified", result.FinalCode, result.FinalResult.Score)
	}
}

func TestRepairAll_SyntaxRepairStillFailingIsIncomplete(t *testing.T) {
	// Every candidate the syntax module produces also fails to compile.
	verifier := &fakeVerifier{}
	syntax := &fakeModule{name: "syntax", repair: func(Input) (string, error) {
		return "still broken(", nil
	}}
	reg := newTestRegistry(t, Config{Verifier: verifier, Syntax: syntax})

	sess := newTestSession(t, "broken(", models.CompilationFailure())
	res := &verify.Result{Score: models.CompilationFailure()}

	result := reg.RepairAll(context.Background(), sess, "broken(", res, time.Now(), 0)

	if result.Completed {
		t.Error("round without a compiling artifact reported completed")
	}
	if result.Improved {
		t.Error("failed syntax repair reported as improvement")
	}
	if result.FinalCode != "broken(" {
		t.Errorf("final = %q, want the artifact as received", result.FinalCode)
	}
}

func TestRepairAll_WorkingArtifactAdvancesOnlyOnImprovement(t *testing.T) {
	var inputs []string

	improver := &fakeModule{
		name:  "improver",
		kinds: map[models.ErrorKind]bool{models.KindTypeMismatch: true},
		repair: func(input Input) (string, error) {
			inputs = append(inputs, input.Code)
			return "better", nil
		},
	}
	regressor := &fakeModule{
		name:  "regressor",
		kinds: map[models.ErrorKind]bool{models.KindAssertionFail: true},
		repair: func(input Input) (string, error) {
			inputs = append(inputs, input.Code)
			return "worse", nil
		},
	}
	last := &fakeModule{
		name:  "last",
		kinds: map[models.ErrorKind]bool{models.KindPostconditionFail: true},
		repair: func(input Input) (string, error) {
			inputs = append(inputs, input.Code)
			return input.Code, nil
		},
	}

	verifier := &fakeVerifier{scores: map[string]models.Score{
		"base":   models.NewScore(2, 3),
		"better": models.NewScore(4, 1),
		"worse":  models.NewScore(1, 5),
	}}
	reg := newTestRegistry(t, Config{Verifier: verifier})
	for _, m := range []Module{improver, regressor, last} {
		if err := reg.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	sess := newTestSession(t, "base", models.NewScore(2, 3))
	res := &verify.Result{
		Score: models.NewScore(2, 3),
		Errors: []models.VerificationError{
			{Kind: models.KindTypeMismatch},
			{Kind: models.KindAssertionFail},
			{Kind: models.KindPostconditionFail},
		},
	}

	result := reg.RepairAll(context.Background(), sess, "base", res, time.Now(), 0)

	// The improving candidate becomes the working artifact; the regressing
	// one is recorded as a trial but never becomes the base for later work.
	want := []string{"base", "better", "better"}
	if len(inputs) != len(want) {
		t.Fatalf("modules saw %d inputs, want %d", len(inputs), len(want))
	}
	for i := range want {
		if inputs[i] != want[i] {
			t.Errorf("input[%d] = %q, want %q", i, inputs[i], want[i])
		}
	}

	if !result.Improved {
		t.Error("round not marked improved")
	}
	if code, score, ok := sess.Checkpoint().Best(); !ok || code != "better" || score != models.NewScore(4, 1) {
		t.Errorf("checkpoint = %q, %s, %v; want better at 4 verified, 1 errors", code, score, ok)
	}
	if got := len(sess.Trials()); got != 4 {
		t.Errorf("trial history has %d entries, want 4 (initial plus three candidates)", got)
	}
}

func TestRepairAll_ModulePanicSkipsFailure(t *testing.T) {
	panicker := &fakeModule{
		name:  "panicker",
		kinds: map[models.ErrorKind]bool{models.KindTypeMismatch: true},
		repair: func(Input) (string, error) {
			panic("prompt template exploded")
		},
	}
	verifier := &fakeVerifier{scores: map[string]models.Score{
		"base":  models.NewScore(1, 2),
		"basex": models.NewScore(2, 1),
	}}
	reg := newTestRegistry(t, Config{
		Verifier: verifier,
		Generic: &fakeModule{name: "generic", repair: func(input Input) (string, error) {
			return input.Code + "x", nil
		}},
	})
	if err := reg.Register(panicker); err != nil {
		t.Fatalf("register: %v", err)
	}

	sess := newTestSession(t, "base", models.NewScore(1, 2))
	res := &verify.Result{
		Score: models.NewScore(1, 2),
		Errors: []models.VerificationError{
			{Kind: models.KindTypeMismatch},
			{Kind: models.KindAssertionFail},
		},
	}

	result := reg.RepairAll(context.Background(), sess, "base", res, time.Now(), 0)

	if !result.Completed {
		t.Error("panic aborted the round")
	}
	if len(result.Applied) != 1 || result.Applied[0].Module != "generic" {
		t.Fatalf("applied = %+v, want one generic repair", result.Applied)
	}
}
