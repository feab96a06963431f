package repo

import (
	"context"
	"time"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore on PostgreSQL.
type JobRepositoryPG struct {
	runner infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by the shared SQL runner.
func NewJobRepository(runner infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{runner: runner}
}

func (r *JobRepositoryPG) FetchEligiblePending(ctx context.Context, models []string, perOwnerCap int) ([]domain.Job, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QFetchEligiblePending, models, perOwnerCap)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string, expected domain.Status) (bool, error) {
	if err := domain.Transition(expected, domain.StatusProcessing); err != nil {
		return false, err
	}
	tag, err := r.runner.Exec(ctx, sqlinline.QClaimJob, jobID, expected, domain.StatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID, artifactRef string) error {
	_, err := r.runner.Exec(ctx, sqlinline.QMarkCompleted, jobID, artifactRef)
	return err
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, reason string) error {
	_, err := r.runner.Exec(ctx, sqlinline.QMarkFailed, jobID, reason)
	return err
}

func (r *JobRepositoryPG) FetchStuck(ctx context.Context, statuses []domain.Status, olderThan time.Time) ([]domain.Job, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QFetchStuck, statusStrings(statuses), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *JobRepositoryPG) ReapStuck(ctx context.Context, jobID string, statuses []domain.Status, olderThan time.Time) (bool, error) {
	tag, err := r.runner.Exec(ctx, sqlinline.QReapStuck, jobID, statusStrings(statuses), olderThan, "reaped: no liveness update past deadline")
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountByStatus powers the ops stats endpoint.
func (r *JobRepositoryPG) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.runner.Query(ctx, sqlinline.QCountByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status domain.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// statusStrings converts the status set to plain strings for the = any($n)
// parameters; pgx cannot encode a slice of a named string type.
func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanJobs(rows rowScanner) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(
			&job.ID,
			&job.OwnerID,
			&job.Model,
			&job.Prompt,
			&job.Width,
			&job.Height,
			&job.Strength,
			&job.Guidance,
			&job.InputImages,
			&job.UploadRemote,
			&job.ArtifactRef,
			&job.Status,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

var _ domain.JobStore = (*JobRepositoryPG)(nil)
