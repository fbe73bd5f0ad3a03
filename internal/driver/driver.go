package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/verifix-dev/verifix/internal/repair"
	"github.com/verifix-dev/verifix/internal/session"
	"github.com/verifix-dev/verifix/internal/verify"
	"github.com/verifix-dev/verifix/pkg/models"
)

// State is a phase of the run state machine. StateRunning is the only
// non-terminal state; every run ends in exactly one terminal state.
type State string

const (
	StateRunning         State = "RUNNING"
	StateVerified        State = "VERIFIED"
	StateRoundTimeout    State = "ROUND_TIMEOUT"
	StateNoProgress      State = "NO_PROGRESS"
	StateBudgetExhausted State = "BUDGET_EXHAUSTED"
	StateStopped         State = "STOPPED"
)

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Event is a progress notification emitted once per state change and once
// per finished round, for live displays.
type Event struct {
	// State is the driver state after the event.
	State State
	// Round is the 1-based round number, 0 before the first round.
	Round int
	// Score is the working artifact's score after the event.
	Score models.Score
	// Attempted and Applied count the finished round's repair work.
	Attempted int
	Applied   int
	// Message is a human-readable account of the event.
	Message string
}

// RoundRecord describes one finished repair round for the final report.
type RoundRecord struct {
	// Number is the 1-based round number.
	Number int `json:"number"`
	// Duration is the round's wall-clock time.
	Duration time.Duration `json:"duration"`
	// Attempted counts module invocations, Applied accepted candidates.
	Attempted int `json:"attempted"`
	Applied   int `json:"applied"`
	// Improved and TimedOut mirror the round result.
	Improved bool `json:"improved"`
	TimedOut bool `json:"timed_out"`
	// Score is the working artifact's score at round end.
	Score models.Score `json:"score"`
}

// RunReport is the terminal account of a run. The run always terminates
// with an artifact: FinalCode is the best artifact seen, checkpointed best
// included.
type RunReport struct {
	// State is the terminal state.
	State State `json:"state"`
	// FinalCode is the artifact the run settles on.
	FinalCode string `json:"-"`
	// FinalScore is FinalCode's score.
	FinalScore models.Score `json:"final_score"`
	// Restored indicates FinalCode came from the checkpoint rather than
	// the last working artifact.
	Restored bool `json:"restored"`
	// Rounds lists every finished round in order.
	Rounds []RoundRecord `json:"rounds"`
	// TrialCount is the total number of accepted trials, the initial
	// artifact included.
	TrialCount int `json:"trial_count"`
	// Elapsed is the run's total wall-clock time.
	Elapsed time.Duration `json:"elapsed"`
}

// Config configures a Driver.
type Config struct {
	// Registry executes repair rounds. Required.
	Registry *repair.Registry
	// Verifier checks the initial artifact. Required.
	Verifier verify.Verifier
	// Session holds the run's trial history and checkpoint. Required.
	Session *session.Session
	// MaxRounds is the global round budget. Every started round counts
	// against it, timed-out and zero-progress rounds included. Values
	// below 1 are treated as 1.
	MaxRounds int
	// RoundTimeout bounds each round; <= 0 disables the deadline.
	RoundTimeout time.Duration
	// Paused reports whether the run should hold before starting the next
	// round. Optional; consulted at every round boundary.
	Paused func() bool
	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
	// Logger receives the run log. Nil disables logging.
	Logger *DebugLogger
	// OnEvent receives progress events. Optional.
	OnEvent func(Event)
}

// Driver runs the repair state machine for one artifact.
type Driver struct {
	registry     *repair.Registry
	verifier     verify.Verifier
	sess         *session.Session
	maxRounds    int
	roundTimeout time.Duration
	paused       func() bool
	pausePoll    time.Duration
	now          func() time.Time
	logger       *DebugLogger
	onEvent      func(Event)

	stopRequested atomic.Bool
}

// pausePollInterval is how often a paused driver rechecks the pause state.
const pausePollInterval = 500 * time.Millisecond

// New creates a Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("driver: registry is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("driver: verifier is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("driver: session is required")
	}

	maxRounds := cfg.MaxRounds
	if maxRounds < 1 {
		maxRounds = 1
	}
	paused := cfg.Paused
	if paused == nil {
		paused = func() bool { return false }
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	onEvent := cfg.OnEvent
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	return &Driver{
		registry:     cfg.Registry,
		verifier:     cfg.Verifier,
		sess:         cfg.Session,
		maxRounds:    maxRounds,
		roundTimeout: cfg.RoundTimeout,
		paused:       paused,
		pausePoll:    pausePollInterval,
		now:          now,
		logger:       cfg.Logger,
		onEvent:      onEvent,
	}, nil
}

// Stop requests a graceful stop. The current blocking call finishes; the
// driver transitions to StateStopped at the next round boundary.
func (d *Driver) Stop() {
	d.stopRequested.Store(true)
}

// Run repairs the artifact until it verifies or a terminal condition is
// reached. Run returns an error only for infrastructure failures before the
// loop starts; once rounds run, every outcome is a RunReport.
func (d *Driver) Run(ctx context.Context, code string) (*RunReport, error) {
	start := d.now()

	res, err := d.verifier.Verify(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("initial verification: %w", err)
	}
	d.sess.AppendTrial(code, res.Score)
	if _, err := d.sess.Checkpoint().Consider(res.Score, code); err != nil {
		d.logger.Log("checkpoint: %v", err)
	}
	d.logger.Log("initial verification: %s", res.Score)
	d.onEvent(Event{State: StateRunning, Score: res.Score, Message: "initial verification: " + res.Score.String()})

	working := code
	state := StateRunning
	report := &RunReport{}

	if res.Score.IsVerified() {
		state = StateVerified
	}

	for state == StateRunning {
		if ctx.Err() != nil || d.stopRequested.Load() {
			state = StateStopped
			break
		}
		if len(report.Rounds) >= d.maxRounds {
			state = StateBudgetExhausted
			break
		}
		if d.waitWhilePaused(ctx) {
			state = StateStopped
			break
		}

		roundStart := d.now()
		round := d.registry.RepairAll(ctx, d.sess, working, res, roundStart, d.roundTimeout)
		working = round.FinalCode
		res = round.FinalResult

		record := RoundRecord{
			Number:    len(report.Rounds) + 1,
			Duration:  d.now().Sub(roundStart),
			Attempted: round.Attempted,
			Applied:   len(round.Applied),
			Improved:  round.Improved,
			TimedOut:  round.TimedOut,
			Score:     res.Score,
		}
		report.Rounds = append(report.Rounds, record)
		d.logger.Log("round %d: %d attempted, %d applied, improved=%v, timed_out=%v, score %s",
			record.Number, record.Attempted, record.Applied, record.Improved, record.TimedOut, res.Score)

		switch {
		case res.Score.IsVerified():
			state = StateVerified
		case ctx.Err() != nil || d.stopRequested.Load():
			state = StateStopped
		case round.TimedOut:
			// Transient unless the budget is also spent; the loop
			// starts a fresh round with a fresh deadline.
			if len(report.Rounds) >= d.maxRounds {
				state = StateBudgetExhausted
			} else {
				d.logger.Log("round %d timed out, starting fresh round", record.Number)
				d.emitRound(StateRoundTimeout, record)
				continue
			}
		case !round.Improved:
			state = StateNoProgress
		case len(report.Rounds) >= d.maxRounds:
			state = StateBudgetExhausted
		}

		if state == StateRunning {
			d.emitRound(StateRunning, record)
		}
	}

	report.State = state
	report.FinalCode, report.FinalScore, report.Restored = d.finalArtifact(working, res.Score)
	report.TrialCount = len(d.sess.Trials())
	report.Elapsed = d.now().Sub(start)

	d.logger.Log("terminated: %s, final score %s, restored=%v after %d rounds",
		state, report.FinalScore, report.Restored, len(report.Rounds))
	d.onEvent(Event{
		State:   state,
		Round:   len(report.Rounds),
		Score:   report.FinalScore,
		Message: fmt.Sprintf("terminated: %s (%s)", state, report.FinalScore),
	})
	return report, nil
}

// waitWhilePaused holds the driver at a round boundary while a pause is in
// effect. A stop request or context cancellation wins over the pause; the
// return value reports that the run should stop.
func (d *Driver) waitWhilePaused(ctx context.Context) bool {
	held := false
	for d.paused() {
		if ctx.Err() != nil || d.stopRequested.Load() {
			return true
		}
		if !held {
			held = true
			d.logger.Log("paused, holding before next round")
			d.onEvent(Event{State: StateRunning, Message: "paused, holding before next round"})
		}
		time.Sleep(d.pausePoll)
	}
	if held {
		d.logger.Log("resumed")
		d.onEvent(Event{State: StateRunning, Message: "resumed"})
	}
	return false
}

// finalArtifact picks the artifact the run settles on. In every non-verified
// terminal state the checkpointed best replaces the working artifact unless
// the working artifact is at least as good.
func (d *Driver) finalArtifact(working string, workingScore models.Score) (string, models.Score, bool) {
	bestCode, bestScore, ok := d.sess.Checkpoint().Best()
	if !ok || !bestScore.BetterThan(workingScore) {
		return working, workingScore, false
	}
	return bestCode, bestScore, true
}

func (d *Driver) emitRound(state State, record RoundRecord) {
	d.onEvent(Event{
		State:     state,
		Round:     record.Number,
		Score:     record.Score,
		Attempted: record.Attempted,
		Applied:   record.Applied,
		Message:   fmt.Sprintf("round %d: %s", record.Number, record.Score),
	})
}
