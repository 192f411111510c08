package reference

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides pgx-backed access to the emission_factors table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a reference repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns factors matching the filters, ordered by category.
func (r *Repository) List(ctx context.Context, f Filters) ([]Factor, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("reference repo not initialised")
	}
	const query = `
SELECT id, category, subcategory, unit, kg_co2e_per_unit, source, published_year, updated_at
FROM emission_factors
WHERE ($1 = '' OR category = $1)
  AND ($2 = 0 OR published_year = $2)
ORDER BY category, subcategory`
	rows, err := r.pool.Query(ctx, query, f.Category, f.PublishedYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var factors []Factor
	for rows.Next() {
		var factor Factor
		if err := rows.Scan(&factor.ID, &factor.Category, &factor.Subcategory, &factor.Unit,
			&factor.KgCO2ePerUnit, &factor.Source, &factor.PublishedYear, &factor.UpdatedAt); err != nil {
			return nil, err
		}
		factors = append(factors, factor)
	}
	return factors, rows.Err()
}

// GetByID fetches one factor.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Factor, error) {
	if r == nil || r.pool == nil {
		return Factor{}, fmt.Errorf("reference repo not initialised")
	}
	const query = `
SELECT id, category, subcategory, unit, kg_co2e_per_unit, source, published_year, updated_at
FROM emission_factors
WHERE id = $1`
	var factor Factor
	err := r.pool.QueryRow(ctx, query, id).Scan(&factor.ID, &factor.Category, &factor.Subcategory,
		&factor.Unit, &factor.KgCO2ePerUnit, &factor.Source, &factor.PublishedYear, &factor.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Factor{}, ErrNotFound
		}
		return Factor{}, err
	}
	return factor, nil
}
