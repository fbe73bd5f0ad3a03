package models

import "time"

// Trial is one artifact version accepted into a session's history. Trials
// are never mutated after creation; every edit produces a new Trial with the
// next sequence number.
type Trial struct {
	// ID is a monotonic sequence number within a session.
	ID int `json:"id"`
	// Code is the artifact text.
	Code string `json:"-"`
	// Score is the verification score for this artifact.
	Score Score `json:"score"`
	// Path is where the artifact was persisted, if anywhere.
	Path string `json:"path,omitempty"`
	// CreatedAt records when the trial was accepted.
	CreatedAt time.Time `json:"created_at"`
}
