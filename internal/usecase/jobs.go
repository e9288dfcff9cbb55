package usecase

import (
	"context"
	"log/slog"
	"time"

	"maildigest/internal/domain"
	"maildigest/internal/ports"
)

// Jobs binds the recurring work to schedulers: periodic digests, the
// important-mail watcher, and session expiry sweeps.
type Jobs struct {
	pipeline  *Pipeline
	watcher   *AlertWatcher
	transport ports.Transport

	digestSched ports.Scheduler
	alertSched  ports.Scheduler
	sweepSched  ports.Scheduler

	conversationID string
	logger         *slog.Logger
}

// NewJobs wires the recurring jobs. Any scheduler may be nil to disable
// its job.
func NewJobs(pipeline *Pipeline, watcher *AlertWatcher, transport ports.Transport, digestSched, alertSched, sweepSched ports.Scheduler, conversationID string, logger *slog.Logger) *Jobs {
	return &Jobs{
		pipeline:       pipeline,
		watcher:        watcher,
		transport:      transport,
		digestSched:    digestSched,
		alertSched:     alertSched,
		sweepSched:     sweepSched,
		conversationID: conversationID,
		logger:         logger,
	}
}

// Start launches all configured schedulers.
func (j *Jobs) Start(ctx context.Context) error {
	if j.digestSched != nil {
		if err := j.digestSched.Start(ctx, func(time.Time) { j.runDigest(ctx) }); err != nil {
			return err
		}
	}
	if j.alertSched != nil && j.watcher != nil {
		if err := j.alertSched.Start(ctx, func(now time.Time) {
			if err := j.watcher.Check(ctx, now); err != nil && j.logger != nil {
				j.logger.Warn("important-mail check failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}
	if j.sweepSched != nil {
		if err := j.sweepSched.Start(ctx, func(time.Time) {
			if n := j.pipeline.Sweep(); n > 0 && j.logger != nil {
				j.logger.Debug("expired digest sessions swept", "count", n)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts all configured schedulers.
func (j *Jobs) Stop(ctx context.Context) {
	for _, s := range []ports.Scheduler{j.digestSched, j.alertSched, j.sweepSched} {
		if s == nil {
			continue
		}
		if err := s.Stop(ctx); err != nil && j.logger != nil {
			j.logger.Warn("scheduler stop failed", "error", err)
		}
	}
}

func (j *Jobs) runDigest(ctx context.Context) {
	blocks, err := j.pipeline.BuildDigest(ctx, j.conversationID)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("periodic digest failed", "error", err)
		}
		return
	}
	j.deliver(ctx, blocks)
}

func (j *Jobs) deliver(ctx context.Context, blocks []domain.Block) {
	if j.transport == nil {
		return
	}
	if err := j.transport.Send(ctx, j.conversationID, blocks); err != nil && j.logger != nil {
		j.logger.Error("digest delivery failed", "error", err)
	}
}
