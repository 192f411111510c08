package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/atmos-esg/atmos/internal/jobs"
)

// scopeSumTolerance is the accepted relative gap between a reported total
// and the sum of its per-scope amounts.
const scopeSumTolerance = 0.02

// QualityScanJob inspects ingested emissions records looking for totals that
// deviate sharply from an entity's history or disagree with their scope
// breakdown.
type QualityScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQualityScanJob initialises the quality scan handler.
func NewQualityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *QualityScanJob {
	return &QualityScanJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the quality scan logic.
func (j *QualityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("quality scan: handler not configured")
	}
	var payload QualityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowYears <= 0 {
		payload.WindowYears = 5
	}
	if payload.Z <= 0 {
		payload.Z = 2.5
	}

	tracker := j.metrics().Track(TaskQualityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int("window_years", payload.WindowYears),
		slog.Float64("z_threshold", payload.Z),
	)
	logger.Info("starting emissions quality scan")
	start := j.now()

	entities, anomalies, err := j.scan(ctx, payload, start)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range anomalies {
		logger.Warn("emissions anomaly detected",
			slog.String("entity_id", a.entityID),
			slog.Int("reporting_year", a.year),
			slog.String("kind", a.kind),
			slog.String("severity", a.severity),
			slog.Float64("value", a.value),
		)
		j.metrics().AddAnomalies(a.severity, a.entityID, 1)
	}

	logger.Info("completed emissions quality scan",
		slog.Int("entities", entities),
		slog.Int("anomalies", len(anomalies)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

type scanAnomaly struct {
	entityID string
	year     int
	kind     string
	severity string
	value    float64
}

type entitySeries struct {
	years  []int
	totals []float64
}

func (j *QualityScanJob) scan(ctx context.Context, payload QualityScanPayload, now time.Time) (int, []scanAnomaly, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("quality scan: pool not configured")
	}
	fromYear := now.Year() - payload.WindowYears + 1
	const query = `
SELECT DISTINCT ON (entity_id, reporting_year)
       entity_id::text, reporting_year,
       total_co2e, scope1_co2e, scope2_co2e, scope3_co2e
FROM entity_emissions_records
WHERE reporting_year >= $1
ORDER BY entity_id, reporting_year, created_at DESC`
	rows, err := j.Pool.Query(ctx, query, fromYear)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	series := make(map[string]*entitySeries)
	var anomalies []scanAnomaly
	for rows.Next() {
		var (
			entityID          string
			year              int
			total, s1, s2, s3 *float64
		)
		if err := rows.Scan(&entityID, &year, &total, &s1, &s2, &s3); err != nil {
			return 0, nil, err
		}
		if a, ok := checkScopeSum(entityID, year, total, s1, s2, s3); ok {
			anomalies = append(anomalies, a)
		}
		if total == nil {
			continue
		}
		entry := series[entityID]
		if entry == nil {
			entry = &entitySeries{}
			series[entityID] = entry
		}
		entry.years = append(entry.years, year)
		entry.totals = append(entry.totals, *total)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	for entityID, entry := range series {
		if len(entry.totals) < 3 {
			continue
		}
		mean, stddev := meanStddev(entry.totals)
		if stddev == 0 {
			continue
		}
		for i, total := range entry.totals {
			z := math.Abs(total-mean) / stddev
			if z < payload.Z {
				continue
			}
			severity := "warning"
			if z >= payload.Z*2 {
				severity = "critical"
			}
			anomalies = append(anomalies, scanAnomaly{
				entityID: entityID,
				year:     entry.years[i],
				kind:     "total_deviation",
				severity: severity,
				value:    z,
			})
		}
	}
	return len(series), anomalies, nil
}

// checkScopeSum flags records whose total disagrees with the sum of their
// measured scopes. Records with no measured scopes are skipped.
func checkScopeSum(entityID string, year int, total, s1, s2, s3 *float64) (scanAnomaly, bool) {
	if total == nil {
		return scanAnomaly{}, false
	}
	sum := 0.0
	measured := false
	for _, v := range []*float64{s1, s2, s3} {
		if v != nil {
			sum += *v
			measured = true
		}
	}
	if !measured || *total == 0 {
		return scanAnomaly{}, false
	}
	gap := math.Abs(*total-sum) / *total
	if gap <= scopeSumTolerance {
		return scanAnomaly{}, false
	}
	return scanAnomaly{
		entityID: entityID,
		year:     year,
		kind:     "scope_sum_mismatch",
		severity: "warning",
		value:    gap,
	}, true
}

func meanStddev(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func (j *QualityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *QualityScanJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *QualityScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
