package domain

import (
	"fmt"
	"time"
)

// Status enumerates render job lifecycle states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusRetrying   Status = "RETRYING"
)

// Terminal reports whether a job in this status is finished and must never be
// picked up again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusRetrying},
	StatusRetrying:   {StatusProcessing, StatusFailed},
}

// Transition validates a status change. Terminal states have no outgoing
// edges, so COMPLETED -> PROCESSING and similar revivals fail closed.
func Transition(from, to Status) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Job is one persisted unit of generation work. Rows are created by the
// intake layer in PENDING and mutated only by the orchestrator and the
// reaper. UpdatedAt doubles as the liveness signal for stuck detection.
type Job struct {
	ID           string
	OwnerID      string
	Model        string
	Prompt       string
	Width        int
	Height       int
	Strength     float64
	Guidance     float64
	InputImages  []string
	UploadRemote bool
	ArtifactRef  string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
