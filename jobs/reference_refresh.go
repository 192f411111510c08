package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atmos-esg/atmos/internal/jobs"
)

// CacheRefresher invalidates the reference data cache.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
}

// ReferenceRefreshJob bumps the emission factor cache so replicas reload
// fresh factor data on the next lookup.
type ReferenceRefreshJob struct {
	Refresher CacheRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReferenceRefreshJob initialises the refresh handler.
func NewReferenceRefreshJob(refresher CacheRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReferenceRefreshJob {
	return &ReferenceRefreshJob{Refresher: refresher, Logger: logger, Metrics: metrics}
}

// Handle executes the cache refresh.
func (j *ReferenceRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("reference refresh: handler not configured")
	}
	var payload ReferenceRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReferenceRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.Reason != "" {
		logger = logger.With(slog.String("reason", payload.Reason))
	}
	if err := j.Refresher.Refresh(ctx); err != nil {
		resultErr = err
		logger.Error("reference cache refresh failed", slog.Any("error", err))
		return resultErr
	}
	logger.Info("reference cache refreshed")
	return nil
}

func (j *ReferenceRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReferenceRefreshJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
