// Package session holds the run-scoped state for a repair run: the
// append-only trial history, knowledge snippets used for prompt enrichment,
// and the pointer to the best checkpoint. A session lives for exactly one
// run and carries no cross-run state beyond explicit checkpoint files.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verifix-dev/verifix/internal/checkpoint"
	"github.com/verifix-dev/verifix/pkg/models"
)

// Session is the process-scoped context for one repair run. All mutation
// happens on the single driver goroutine; the mutex exists so trial appends
// and best-pointer reads stay correct if independent error kinds are ever
// repaired in parallel within a round.
type Session struct {
	mu sync.Mutex

	// ID identifies the run, for logs and the history database.
	ID string

	trials    []*models.Trial
	knowledge map[string]string
	best      *checkpoint.Tracker

	trialsDir string
	fileExt   string
}

// Config configures a new Session.
type Config struct {
	// Checkpoint tracks the best artifact. Required.
	Checkpoint *checkpoint.Tracker
	// TrialsDir, if non-empty, is where accepted trial artifacts are
	// written so prompts can reference prior attempts by path.
	TrialsDir string
	// FileExt is the artifact extension for persisted trials.
	FileExt string
}

// New creates a Session with a fresh run ID.
func New(cfg Config) *Session {
	ext := cfg.FileExt
	if ext == "" {
		ext = ".rs"
	}
	return &Session{
		ID:        uuid.New().String(),
		knowledge: make(map[string]string),
		best:      cfg.Checkpoint,
		trialsDir: cfg.TrialsDir,
		fileExt:   ext,
	}
}

// AppendTrial accepts a new artifact version into history with the next
// sequence number and returns the created Trial. Trials are strictly
// append-only: they are never reordered or removed.
func (s *Session) AppendTrial(code string, score models.Score) *models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()

	trial := &models.Trial{
		ID:        len(s.trials) + 1,
		Code:      code,
		Score:     score,
		CreatedAt: time.Now(),
	}

	if s.trialsDir != "" {
		path := filepath.Join(s.trialsDir, fmt.Sprintf("trial-%03d%s", trial.ID, s.fileExt))
		if err := os.MkdirAll(s.trialsDir, 0755); err == nil {
			if err := os.WriteFile(path, []byte(code), 0644); err == nil {
				trial.Path = path
			}
		}
	}

	s.trials = append(s.trials, trial)
	return trial
}

// Current returns the latest trial, or nil if none has been accepted yet.
func (s *Session) Current() *models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.trials) == 0 {
		return nil
	}
	return s.trials[len(s.trials)-1]
}

// Trials returns the trial history in acceptance order.
func (s *Session) Trials() []*models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Trial{}, s.trials...)
}

// AddKnowledge stores a knowledge snippet for prompt enrichment.
func (s *Session) AddKnowledge(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge[id] = text
}

// Knowledge returns a copy of the knowledge snippets.
func (s *Session) Knowledge() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.knowledge))
	for k, v := range s.knowledge {
		out[k] = v
	}
	return out
}

// Checkpoint returns the session's best-artifact tracker.
func (s *Session) Checkpoint() *checkpoint.Tracker {
	return s.best
}

// PriorFailures summarizes earlier trials that did not verify, newest last,
// capped at limit entries. Used to tell the repair backend what has already
// been tried.
func (s *Session) PriorFailures(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []string
	for _, trial := range s.trials {
		if trial.Score.IsVerified() {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("trial %d: %s", trial.ID, trial.Score))
	}
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[len(summaries)-limit:]
	}
	return summaries
}
