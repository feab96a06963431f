package orchestrator

import (
	"context"

	"renderworker/internal/domain"
)

// reapableStatuses are the non-terminal states a crashed worker can leave a
// job in. PENDING is excluded: unpicked work is backlog, not stuck.
var reapableStatuses = []domain.Status{domain.StatusProcessing, domain.StatusRetrying}

// reapStuck force-fails jobs with no liveness update past the stuck
// threshold. Each reap is a conditional transition guarded by status and the
// stale timestamp, so a job a live worker just re-claimed is left alone and
// a second reaper pass with no time elapsed mutates nothing.
func (o *Orchestrator) reapStuck(ctx context.Context) error {
	cutoff := o.now().Add(-o.stuckAfter)
	stuck, err := o.store.FetchStuck(ctx, reapableStatuses, cutoff)
	if err != nil {
		return err
	}
	for _, job := range stuck {
		reaped, err := o.store.ReapStuck(ctx, job.ID, reapableStatuses, cutoff)
		if err != nil {
			return err
		}
		if reaped {
			o.logger.Warn().
				Str("job_id", job.ID).
				Str("owner_id", job.OwnerID).
				Time("updated_at", job.UpdatedAt).
				Msg("orchestrator: reaped stuck job")
		}
	}
	return nil
}
