// Package jobs contains the portal's scheduled jobs.
package jobs

import (
	"context"
	"log/slog"
	"time"
)

// JobNameRefreshSession is the registered name of RefreshSessionJob.
const JobNameRefreshSession = "session.refresh"

// SessionRefresher is the part of the resolver the job drives.
type SessionRefresher interface {
	// RefreshSession exchanges the refresh token when the access token is
	// close to expiry. It reports whether a refresh happened.
	RefreshSession(ctx context.Context) (bool, error)
}

// RefreshSessionJob keeps the stored session valid while the process runs.
type RefreshSessionJob struct {
	refresher SessionRefresher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRefreshSessionJob creates the job. timeout bounds one run; zero means 30s.
func NewRefreshSessionJob(refresher SessionRefresher, timeout time.Duration, logger *slog.Logger) *RefreshSessionJob {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshSessionJob{
		refresher: refresher,
		timeout:   timeout,
		logger:    logger.With("job", JobNameRefreshSession),
	}
}

// Name implements scheduler.Job.
func (j *RefreshSessionJob) Name() string {
	return JobNameRefreshSession
}

// Description implements scheduler.Job.
func (j *RefreshSessionJob) Description() string {
	return "Refreshes the backend session before the access token expires"
}

// Run implements scheduler.Job.
func (j *RefreshSessionJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	refreshed, err := j.refresher.RefreshSession(ctx)
	if err != nil {
		return err
	}
	if refreshed {
		j.logger.Info("session refreshed")
	}
	return nil
}
