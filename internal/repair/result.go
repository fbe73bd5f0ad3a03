package repair

import (
	"github.com/verifix-dev/verifix/internal/verify"
	"github.com/verifix-dev/verifix/pkg/models"
)

// AppliedRepair records one candidate that passed the safety check and was
// accepted into trial history.
type AppliedRepair struct {
	// Kind is the failure kind the repair addressed. KindOther for the
	// generic syntax path.
	Kind models.ErrorKind
	// Module is the name of the module that produced the candidate.
	Module string
	// Trial is the accepted trial.
	Trial *models.Trial
	// Score is the candidate's verification score.
	Score models.Score
	// Improved reports whether the candidate scored strictly better than
	// the artifact the repair started from. Only improved repairs count
	// as completed for early-stop heuristics.
	Improved bool
}

// RoundResult is the outcome of one repair round. The round itself never
// fails; the caller decides from these fields whether to run another round.
type RoundResult struct {
	// Applied lists accepted candidates in dispatch order.
	Applied []AppliedRepair
	// Attempted is the number of failures a module was invoked for.
	Attempted int
	// Completed reports whether the full failure list was processed.
	Completed bool
	// TimedOut reports whether the round deadline truncated the work.
	TimedOut bool
	// Improved reports whether any repair in the round improved the score.
	Improved bool
	// FinalCode is the working artifact at round end. Equal to the input
	// artifact when no repair improved on it.
	FinalCode string
	// FinalResult is the verification result for FinalCode, so the caller
	// can chain rounds without re-verifying.
	FinalResult *verify.Result
}
