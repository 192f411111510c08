package consolidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmos-esg/atmos/internal/platform/db"
)

// uniqueViolation is the PostgreSQL error code raised when a concurrent
// writer claimed the same (company, year, version) slot first.
const uniqueViolation = "23505"

// Repository provides pgx-backed persistence for consolidation artifacts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const consolidationColumns = `
id, company_id, reporting_year, period_start, period_end, method, consolidated_at, version,
total_co2e, total_scope1_co2e, total_scope2_co2e, total_scope3_co2e,
entity_count, included_entities, entities_with_scope1, entities_with_scope2, entities_with_scope3,
completeness_score, confidence_score, status, validation_status, is_final,
adjustments, approved_by, approved_at, approval_notes`

// Insert persists the artifact, its contribution snapshot and the created
// audit event in one transaction. The next version is read inside the same
// transaction; the unique constraint on (company_id, reporting_year, version)
// turns a lost race into ErrVersionConflict for the caller to retry.
func (r *Repository) Insert(ctx context.Context, c Consolidation, ev AuditEvent) (Consolidation, error) {
	if r == nil || r.pool == nil {
		return Consolidation{}, fmt.Errorf("consolidation repo not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const versionQuery = `
SELECT COALESCE(MAX(version), 0) + 1
FROM consolidations
WHERE company_id = $1 AND reporting_year = $2`
		if err := tx.QueryRow(ctx, versionQuery, c.CompanyID, c.ReportingYear).Scan(&c.Version); err != nil {
			return err
		}

		adjustments, err := marshalAdjustments(c.Adjustments)
		if err != nil {
			return err
		}
		const insertQuery = `
INSERT INTO consolidations (` + consolidationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`
		if _, err := tx.Exec(ctx, insertQuery,
			c.ID, c.CompanyID, c.ReportingYear, c.PeriodStart, c.PeriodEnd, string(c.Method), c.ConsolidatedAt, c.Version,
			c.TotalCO2e, c.TotalScope1CO2e, c.TotalScope2CO2e, c.TotalScope3CO2e,
			c.EntityCount, c.IncludedEntities, c.EntitiesWithScope1, c.EntitiesWithScope2, c.EntitiesWithScope3,
			c.CompletenessScore, c.ConfidenceScore, string(c.Status), c.ValidationStatus, c.IsFinal,
			adjustments, c.ApprovedBy, c.ApprovedAt, c.ApprovalNotes,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrVersionConflict
			}
			return err
		}

		batch := &pgx.Batch{}
		const contributionQuery = `
INSERT INTO consolidation_contributions (
  consolidation_id, position, entity_id, entity_name, ownership_percentage, factor,
  original_total_co2e, original_scope1_co2e, original_scope2_co2e, original_scope3_co2e,
  consolidated_total_co2e, consolidated_scope1_co2e, consolidated_scope2_co2e, consolidated_scope3_co2e,
  data_completeness, quality_score, included, exclusion_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
		for i, contrib := range c.Contributions {
			batch.Queue(contributionQuery,
				c.ID, i, contrib.EntityID, contrib.EntityName, contrib.OwnershipPercentage, contrib.Factor,
				contrib.OriginalTotalCO2e, contrib.OriginalScope1CO2e, contrib.OriginalScope2CO2e, contrib.OriginalScope3CO2e,
				contrib.ConsolidatedTotalCO2e, contrib.ConsolidatedScope1CO2e, contrib.ConsolidatedScope2CO2e, contrib.ConsolidatedScope3CO2e,
				contrib.DataCompleteness, contrib.QualityScore, contrib.Included, contrib.ExclusionReason,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range c.Contributions {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		if err := results.Close(); err != nil {
			return err
		}

		return insertEventTx(ctx, tx, ev)
	})
	if err != nil {
		return Consolidation{}, err
	}
	return c, nil
}

// GetByID fetches one artifact with its full contribution snapshot.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Consolidation, error) {
	if r == nil || r.pool == nil {
		return Consolidation{}, fmt.Errorf("consolidation repo not initialised")
	}
	query := `SELECT ` + consolidationColumns + ` FROM consolidations WHERE id = $1`
	c, err := scanConsolidation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Consolidation{}, ErrNotFound
		}
		return Consolidation{}, err
	}
	contribs, err := r.contributions(ctx, id)
	if err != nil {
		return Consolidation{}, err
	}
	c.Contributions = contribs
	return c, nil
}

// List returns artifacts for a company ordered by consolidation timestamp
// descending. Contribution snapshots are not attached on listings.
func (r *Repository) List(ctx context.Context, companyID uuid.UUID, f ListFilters) ([]Consolidation, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	query := `
SELECT ` + consolidationColumns + `
FROM consolidations
WHERE company_id = $1
  AND ($2 = 0 OR reporting_year = $2)
  AND ($3 = '' OR status = $3)
ORDER BY consolidated_at DESC
LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query, companyID, f.ReportingYear, f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Consolidation
	for rows.Next() {
		c, err := scanConsolidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Approve flips a completed artifact to approved. The status is re-read with
// a row lock inside the transaction so concurrent approvers cannot both win.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID, actorID, notes string, at time.Time) (Consolidation, error) {
	if r == nil || r.pool == nil {
		return Consolidation{}, fmt.Errorf("consolidation repo not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM consolidations WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if Status(status) == StatusApproved {
			return ErrAlreadyApproved
		}
		const update = `
UPDATE consolidations
SET status = $2, is_final = TRUE, approved_by = $3, approved_at = $4, approval_notes = $5
WHERE id = $1`
		if _, err := tx.Exec(ctx, update, id, string(StatusApproved), actorID, at, notes); err != nil {
			return err
		}
		return insertEventTx(ctx, tx, AuditEvent{
			ID:              uuid.New(),
			ConsolidationID: id,
			EventType:       EventApproved,
			ActorID:         actorID,
			OccurredAt:      at,
		})
	})
	if err != nil {
		return Consolidation{}, err
	}
	return r.GetByID(ctx, id)
}

// Summary aggregates counts and latest totals for a company and year.
func (r *Repository) Summary(ctx context.Context, companyID uuid.UUID, year int) (Summary, error) {
	if r == nil || r.pool == nil {
		return Summary{}, fmt.Errorf("consolidation repo not initialised")
	}
	const countQuery = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'approved'),
       COUNT(*) FILTER (WHERE status = 'completed')
FROM consolidations
WHERE company_id = $1 AND reporting_year = $2`
	s := Summary{CompanyID: companyID, ReportingYear: year}
	if err := r.pool.QueryRow(ctx, countQuery, companyID, year).Scan(&s.Count, &s.ApprovedCount, &s.DraftCount); err != nil {
		return Summary{}, err
	}
	if s.Count == 0 {
		return Summary{}, ErrNotFound
	}
	const latestQuery = `
SELECT version, total_co2e, total_scope1_co2e, total_scope2_co2e, total_scope3_co2e,
       entity_count, included_entities
FROM consolidations
WHERE company_id = $1 AND reporting_year = $2
ORDER BY version DESC
LIMIT 1`
	var entityCount, includedEntities int
	if err := r.pool.QueryRow(ctx, latestQuery, companyID, year).Scan(
		&s.LatestVersion, &s.LatestTotalCO2e, &s.LatestTotalScope1CO2e, &s.LatestTotalScope2CO2e, &s.LatestTotalScope3CO2e,
		&entityCount, &includedEntities,
	); err != nil {
		return Summary{}, err
	}
	if entityCount > 0 {
		s.EntityCoveragePercent = float64(includedEntities) / float64(entityCount) * 100
	}
	return s, nil
}

// ListEvents returns the append-only trail for one consolidation, oldest first.
func (r *Repository) ListEvents(ctx context.Context, consolidationID uuid.UUID) ([]AuditEvent, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT id, consolidation_id, event_type, actor_id, occurred_at, entity_ids, duration_ms
FROM consolidation_audit_events
WHERE consolidation_id = $1
ORDER BY occurred_at ASC`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.ID, &ev.ConsolidationID, &ev.EventType, &ev.ActorID, &ev.OccurredAt, &ev.EntityIDs, &ev.DurationMillis); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *Repository) contributions(ctx context.Context, consolidationID uuid.UUID) ([]EntityContribution, error) {
	const query = `
SELECT entity_id, entity_name, ownership_percentage, factor,
       original_total_co2e, original_scope1_co2e, original_scope2_co2e, original_scope3_co2e,
       consolidated_total_co2e, consolidated_scope1_co2e, consolidated_scope2_co2e, consolidated_scope3_co2e,
       data_completeness, quality_score, included, exclusion_reason
FROM consolidation_contributions
WHERE consolidation_id = $1
ORDER BY position`
	rows, err := r.pool.Query(ctx, query, consolidationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contribs []EntityContribution
	for rows.Next() {
		var c EntityContribution
		if err := rows.Scan(
			&c.EntityID, &c.EntityName, &c.OwnershipPercentage, &c.Factor,
			&c.OriginalTotalCO2e, &c.OriginalScope1CO2e, &c.OriginalScope2CO2e, &c.OriginalScope3CO2e,
			&c.ConsolidatedTotalCO2e, &c.ConsolidatedScope1CO2e, &c.ConsolidatedScope2CO2e, &c.ConsolidatedScope3CO2e,
			&c.DataCompleteness, &c.QualityScore, &c.Included, &c.ExclusionReason,
		); err != nil {
			return nil, err
		}
		contribs = append(contribs, c)
	}
	return contribs, rows.Err()
}

func insertEventTx(ctx context.Context, tx pgx.Tx, ev AuditEvent) error {
	const query = `
INSERT INTO consolidation_audit_events (id, consolidation_id, event_type, actor_id, occurred_at, entity_ids, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := tx.Exec(ctx, query, ev.ID, ev.ConsolidationID, ev.EventType, ev.ActorID, ev.OccurredAt, ev.EntityIDs, ev.DurationMillis)
	return err
}

func marshalAdjustments(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsolidation(row rowScanner) (Consolidation, error) {
	var (
		c           Consolidation
		method      string
		status      string
		adjustments []byte
	)
	err := row.Scan(
		&c.ID, &c.CompanyID, &c.ReportingYear, &c.PeriodStart, &c.PeriodEnd, &method, &c.ConsolidatedAt, &c.Version,
		&c.TotalCO2e, &c.TotalScope1CO2e, &c.TotalScope2CO2e, &c.TotalScope3CO2e,
		&c.EntityCount, &c.IncludedEntities, &c.EntitiesWithScope1, &c.EntitiesWithScope2, &c.EntitiesWithScope3,
		&c.CompletenessScore, &c.ConfidenceScore, &status, &c.ValidationStatus, &c.IsFinal,
		&adjustments, &c.ApprovedBy, &c.ApprovedAt, &c.ApprovalNotes,
	)
	if err != nil {
		return Consolidation{}, err
	}
	c.Method = Method(method)
	c.Status = Status(status)
	if len(adjustments) > 0 {
		if err := json.Unmarshal(adjustments, &c.Adjustments); err != nil {
			return Consolidation{}, err
		}
	}
	return c, nil
}
