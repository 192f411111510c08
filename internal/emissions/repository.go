package emissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides persistence for entity emissions records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an emissions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, entity_id, reporting_year, total_co2e, scope1_co2e, scope2_co2e, scope3_co2e, validation_status, created_at`

// Insert persists a newly ingested record.
func (r *Repository) Insert(ctx context.Context, in IngestInput) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, fmt.Errorf("emissions repo not initialised")
	}
	status := in.ValidationStatus
	if status == "" {
		status = StatusUnvalidated
	}
	query := `
INSERT INTO entity_emissions_records (id, entity_id, reporting_year, total_co2e, scope1_co2e, scope2_co2e, scope3_co2e, validation_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + recordColumns
	var rec Record
	err := r.pool.QueryRow(ctx, query, uuid.New(), in.EntityID, in.ReportingYear, in.TotalCO2e, in.Scope1CO2e, in.Scope2CO2e, in.Scope3CO2e, string(status)).
		Scan(&rec.ID, &rec.EntityID, &rec.ReportingYear, &rec.TotalCO2e, &rec.Scope1CO2e, &rec.Scope2CO2e, &rec.Scope3CO2e, &rec.ValidationStatus, &rec.CreatedAt)
	return rec, err
}

// LatestForEntityYear returns the most recent record for an entity and
// reporting year, or nil when the entity has not reported.
func (r *Repository) LatestForEntityYear(ctx context.Context, entityID uuid.UUID, year int) (*Record, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("emissions repo not initialised")
	}
	query := `
SELECT ` + recordColumns + `
FROM entity_emissions_records
WHERE entity_id = $1 AND reporting_year = $2
ORDER BY created_at DESC
LIMIT 1`
	var rec Record
	err := r.pool.QueryRow(ctx, query, entityID, year).
		Scan(&rec.ID, &rec.EntityID, &rec.ReportingYear, &rec.TotalCO2e, &rec.Scope1CO2e, &rec.Scope2CO2e, &rec.Scope3CO2e, &rec.ValidationStatus, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListForEntity returns all records for an entity, newest first.
func (r *Repository) ListForEntity(ctx context.Context, entityID uuid.UUID, year int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("emissions repo not initialised")
	}
	query := `
SELECT ` + recordColumns + `
FROM entity_emissions_records
WHERE entity_id = $1 AND ($2 = 0 OR reporting_year = $2)
ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, entityID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.ReportingYear, &rec.TotalCO2e, &rec.Scope1CO2e, &rec.Scope2CO2e, &rec.Scope3CO2e, &rec.ValidationStatus, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
