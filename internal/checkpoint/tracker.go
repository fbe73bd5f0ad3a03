// Package checkpoint tracks the best-scoring artifact seen during a repair
// run and persists it durably. The checkpoint is the run's sole recovery
// mechanism: if no round ever reaches a verifying state, the terminal output
// is the last adopted checkpoint, not the final trial.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/verifix-dev/verifix/pkg/models"
)

// Tracker records the best (artifact, Score) pair seen so far. Once set, the
// best score is monotonically non-decreasing under the Score ordering for
// the lifetime of the run.
type Tracker struct {
	mu        sync.Mutex
	path      string
	bestCode  string
	bestScore models.Score
	hasBest   bool
}

// storedCheckpoint is the on-disk representation of an adopted checkpoint.
type storedCheckpoint struct {
	Code      string       `json:"code"`
	Score     models.Score `json:"score"`
	AdoptedAt time.Time    `json:"adopted_at"`
}

// New creates a Tracker. If path is non-empty, every adopted checkpoint is
// persisted there atomically.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Load restores a previously persisted checkpoint into a new Tracker.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var stored storedCheckpoint
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}

	return &Tracker{
		path:      path,
		bestCode:  stored.Code,
		bestScore: stored.Score,
		hasBest:   true,
	}, nil
}

// Consider offers a scored artifact for adoption. It adopts iff no best
// exists yet or the score is strictly better than the current best, and
// reports whether adoption happened. Adoption persists the pair before
// returning; a persistence failure keeps the in-memory best and is returned
// so the caller can log it.
func (t *Tracker) Consider(score models.Score, code string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasBest && models.Compare(score, t.bestScore) != models.Better {
		return false, nil
	}

	t.bestCode = code
	t.bestScore = score
	t.hasBest = true

	if t.path == "" {
		return true, nil
	}
	if err := t.persist(); err != nil {
		return true, fmt.Errorf("persist checkpoint: %w", err)
	}
	return true, nil
}

// Best returns the current best pair. ok is false if nothing has been
// adopted yet.
func (t *Tracker) Best() (code string, score models.Score, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bestCode, t.bestScore, t.hasBest
}

// persist writes the checkpoint with write-temp-then-rename so a crash
// mid-write leaves the previous checkpoint intact. Caller holds the lock.
func (t *Tracker) persist() error {
	stored := storedCheckpoint{
		Code:      t.bestCode,
		Score:     t.bestScore,
		AdoptedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}
