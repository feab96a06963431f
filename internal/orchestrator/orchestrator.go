// Package orchestrator turns the backlog of pending render jobs into
// completed artifacts. One pass reaps stuck work, fetches a bounded batch of
// eligible jobs, and drives each job through its backend adapter and the
// artifact materializer. Jobs are processed sequentially: the polling
// adapters already block for tens of seconds, and the per-owner batch cap is
// the only backpressure signal.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"renderworker/internal/artifact"
	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/providers/backend"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Store        domain.JobStore
	Registry     Registry
	Materializer *artifact.Materializer
	Logger       infra.Logger
	PerOwnerCap  int
	StuckAfter   time.Duration
	Now          func() time.Time
}

type Orchestrator struct {
	store        domain.JobStore
	registry     Registry
	materializer *artifact.Materializer
	logger       infra.Logger
	perOwnerCap  int
	stuckAfter   time.Duration
	now          func() time.Time
}

func New(opts Options) *Orchestrator {
	perOwnerCap := opts.PerOwnerCap
	if perOwnerCap <= 0 {
		perOwnerCap = 3
	}
	stuckAfter := opts.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = 15 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:        opts.Store,
		registry:     opts.Registry,
		materializer: opts.Materializer,
		logger:       opts.Logger,
		perOwnerCap:  perOwnerCap,
		stuckAfter:   stuckAfter,
		now:          now,
	}
}

// RunOnce executes a single pass. Per-job failures mark the job FAILED and
// never abort the batch; only store access for the reaper or the batch fetch
// is fatal for the pass.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	if err := o.reapStuck(ctx); err != nil {
		return fmt.Errorf("reap stuck jobs: %w", err)
	}

	jobs, err := o.store.FetchEligiblePending(ctx, o.registry.Models(), o.perOwnerCap)
	if err != nil {
		return fmt.Errorf("fetch pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		o.logger.Debug().Msg("orchestrator: no pending jobs")
		return nil
	}
	o.logger.Info().Int("count", len(jobs)).Msg("orchestrator: picked up pending jobs")

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.processJob(ctx, job)
	}
	return nil
}

func (o *Orchestrator) processJob(ctx context.Context, job domain.Job) {
	logger := o.logger.With().
		Str("job_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("model", job.Model).
		Logger()

	capability, ok := o.registry[job.Model]
	if !ok {
		// The fetch query filters on registry models, so this only happens
		// if the registry changed mid-pass. Leave the job PENDING.
		logger.Warn().Msg("orchestrator: model not in registry, skipping")
		return
	}

	claimed, err := o.store.Claim(ctx, job.ID, domain.StatusPending)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator: claim failed")
		return
	}
	if !claimed {
		logger.Debug().Msg("orchestrator: lost claim to another worker")
		return
	}
	logger.Info().Msg("orchestrator: processing job")

	resultURL, err := capability.Adapter.Generate(ctx, backend.GenerationRequest{
		JobID:       job.ID,
		Model:       capability.ProviderModel,
		Prompt:      job.Prompt,
		Width:       job.Width,
		Height:      job.Height,
		Strength:    job.Strength,
		Guidance:    job.Guidance,
		InputImages: job.InputImages,
	})
	if err != nil {
		o.failJob(ctx, logger, job, fmt.Errorf("generate: %w", err))
		return
	}

	tempPath, err := o.materializer.Fetch(ctx, resultURL)
	if err != nil {
		o.failJob(ctx, logger, job, fmt.Errorf("download artifact: %w", err))
		return
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", tempPath).Msg("orchestrator: temp file cleanup failed")
		}
	}()

	ref, err := o.materializer.Persist(ctx, tempPath, artifactKey(job), job.UploadRemote)
	if err != nil {
		o.failJob(ctx, logger, job, fmt.Errorf("persist artifact: %w", err))
		return
	}

	if err := o.store.MarkCompleted(ctx, job.ID, ref); err != nil {
		logger.Error().Err(err).Msg("orchestrator: mark completed failed")
		return
	}
	logger.Info().Str("artifact_ref", ref).Msg("orchestrator: job completed")
}

func (o *Orchestrator) failJob(ctx context.Context, logger infra.Logger, job domain.Job, jobErr error) {
	// A shutdown cancels mid-flight adapter calls; the status write would
	// fail on the same dead context. Leave the job PROCESSING and let the
	// reaper recover it, the same path as a crashed worker.
	if ctx.Err() != nil {
		logger.Warn().Err(jobErr).Msg("orchestrator: pass cancelled mid-job, leaving job for the reaper")
		return
	}
	logger.Error().Err(jobErr).Msg("orchestrator: job failed")
	if err := o.store.MarkFailed(ctx, job.ID, jobErr.Error()); err != nil {
		logger.Error().Err(err).Msg("orchestrator: mark failed failed")
	}
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// artifactKey names artifacts deterministically from job identity so reruns
// overwrite rather than accumulate.
func artifactKey(job domain.Job) string {
	return fmt.Sprintf("images/prompt_%s_%s_%s.png", slug(job.Model), job.ID, job.OwnerID)
}
