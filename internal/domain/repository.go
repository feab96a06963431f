package domain

import (
	"context"
	"time"
)

// JobStore is the persistence port for render jobs. Claim and ReapStuck are
// conditional transitions guarded by the expected previous state, which keeps
// concurrent workers and the reaper from stepping on each other's claims.
type JobStore interface {
	// FetchEligiblePending returns PENDING jobs whose model is in the given
	// set, newest-first within owner, at most perOwnerCap per owner.
	FetchEligiblePending(ctx context.Context, models []string, perOwnerCap int) ([]Job, error)

	// Claim atomically moves a job from expected to PROCESSING. It reports
	// false when another worker won the claim.
	Claim(ctx context.Context, jobID string, expected Status) (bool, error)

	MarkCompleted(ctx context.Context, jobID, artifactRef string) error
	MarkFailed(ctx context.Context, jobID, reason string) error

	// FetchStuck returns jobs wedged in one of the given non-terminal
	// statuses with no liveness update since olderThan.
	FetchStuck(ctx context.Context, statuses []Status, olderThan time.Time) ([]Job, error)

	// ReapStuck force-fails a single stuck job, guarded by both status and
	// the stale timestamp so a freshly claimed job is never reaped.
	ReapStuck(ctx context.Context, jobID string, statuses []Status, olderThan time.Time) (bool, error)
}
