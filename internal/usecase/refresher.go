package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"CommentInbox/internal/ports"
)

// Refresher re-fetches the stored page on every scheduler tick.
type Refresher struct {
	driver      ports.Scheduler
	pipeline    *Pipeline
	credentials ports.CredentialStore
	logger      *slog.Logger
}

// NewRefresher returns a helper to start/stop periodic refreshes.
func NewRefresher(driver ports.Scheduler, pipeline *Pipeline, credentials ports.CredentialStore, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		driver:      driver,
		pipeline:    pipeline,
		credentials: credentials,
		logger:      logger.With("component", "refresher"),
	}
}

// Start registers the refresh job with the scheduler.
func (r *Refresher) Start(ctx context.Context) error {
	if r.driver == nil || r.pipeline == nil || r.credentials == nil {
		return nil
	}

	job := func(trigger time.Time) {
		r.Refresh(ctx, trigger)
	}

	return r.driver.Start(ctx, job)
}

// Refresh triggers one fetch with the stored credentials and waits for it.
// Missing credentials skip the run.
func (r *Refresher) Refresh(ctx context.Context, trigger time.Time) {
	logger := r.logger.With("run_id", uuid.NewString(), "trigger", trigger.Format(time.RFC3339))

	pageID, err := r.credentials.PageID(ctx)
	if err != nil {
		logger.Warn("load page id", "error", err)
		return
	}
	token, err := r.credentials.PageToken(ctx)
	if err != nil {
		logger.Warn("load page token", "error", err)
		return
	}
	if pageID == "" || token == "" {
		logger.Debug("no page selected, skipping refresh")
		return
	}

	select {
	case <-r.pipeline.TriggerFetch(pageID, token):
		logger.Info("refresh finished", "comments", r.pipeline.TotalComments())
	case <-ctx.Done():
	}
}

// Stop gracefully tears down the underlying scheduler.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}

	return r.driver.Stop(ctx)
}
