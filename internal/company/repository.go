package company

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides persistence for companies and their entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a company repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertCompany persists a new company.
func (r *Repository) InsertCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	if r == nil || r.pool == nil {
		return Company{}, fmt.Errorf("company repo not initialised")
	}
	const query = `
INSERT INTO companies (id, name, registry_code, sector)
VALUES ($1, $2, $3, $4)
RETURNING id, name, registry_code, sector, created_at, updated_at`
	var c Company
	err := r.pool.QueryRow(ctx, query, uuid.New(), in.Name, in.RegistryCode, in.Sector).
		Scan(&c.ID, &c.Name, &c.RegistryCode, &c.Sector, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCompany fetches a company by id.
func (r *Repository) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	if r == nil || r.pool == nil {
		return Company{}, fmt.Errorf("company repo not initialised")
	}
	const query = `SELECT id, name, registry_code, sector, created_at, updated_at FROM companies WHERE id = $1`
	var c Company
	if err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.RegistryCode, &c.Sector, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// ListCompanies returns companies ordered by name.
func (r *Repository) ListCompanies(ctx context.Context, limit, offset int) ([]Company, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("company repo not initialised")
	}
	const query = `
SELECT id, name, registry_code, sector, created_at, updated_at
FROM companies
ORDER BY name
LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Name, &c.RegistryCode, &c.Sector, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// UpdateCompany mutates company metadata.
func (r *Repository) UpdateCompany(ctx context.Context, id uuid.UUID, in UpdateCompanyInput) (Company, error) {
	if r == nil || r.pool == nil {
		return Company{}, fmt.Errorf("company repo not initialised")
	}
	const query = `
UPDATE companies SET name = $2, sector = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, name, registry_code, sector, created_at, updated_at`
	var c Company
	if err := r.pool.QueryRow(ctx, query, id, in.Name, in.Sector).Scan(&c.ID, &c.Name, &c.RegistryCode, &c.Sector, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// InsertEntity persists a new entity under a company.
func (r *Repository) InsertEntity(ctx context.Context, in CreateEntityInput) (Entity, error) {
	if r == nil || r.pool == nil {
		return Entity{}, fmt.Errorf("company repo not initialised")
	}
	const query = `
INSERT INTO company_entities (id, company_id, name, entity_type, ownership_percentage, operational_control, financial_control, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
RETURNING id, company_id, name, entity_type, ownership_percentage, operational_control, financial_control, active, created_at, updated_at`
	var e Entity
	err := r.pool.QueryRow(ctx, query, uuid.New(), in.CompanyID, in.Name, in.EntityType, in.OwnershipPercentage, in.OperationalControl, in.FinancialControl).
		Scan(&e.ID, &e.CompanyID, &e.Name, &e.EntityType, &e.OwnershipPercentage, &e.OperationalControl, &e.FinancialControl, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// UpdateEntity mutates entity attributes.
func (r *Repository) UpdateEntity(ctx context.Context, companyID, entityID uuid.UUID, in UpdateEntityInput) (Entity, error) {
	if r == nil || r.pool == nil {
		return Entity{}, fmt.Errorf("company repo not initialised")
	}
	const query = `
UPDATE company_entities
SET name = $3, entity_type = $4, ownership_percentage = $5, operational_control = $6, financial_control = $7, active = $8, updated_at = NOW()
WHERE company_id = $1 AND id = $2
RETURNING id, company_id, name, entity_type, ownership_percentage, operational_control, financial_control, active, created_at, updated_at`
	var e Entity
	err := r.pool.QueryRow(ctx, query, companyID, entityID, in.Name, in.EntityType, in.OwnershipPercentage, in.OperationalControl, in.FinancialControl, in.Active).
		Scan(&e.ID, &e.CompanyID, &e.Name, &e.EntityType, &e.OwnershipPercentage, &e.OperationalControl, &e.FinancialControl, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, ErrEntityNotFound
		}
		return Entity{}, err
	}
	return e, nil
}

// ActiveEntities returns the active entities of a company in stable order.
func (r *Repository) ActiveEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("company repo not initialised")
	}
	const query = `
SELECT id, company_id, name, entity_type, ownership_percentage, operational_control, financial_control, active, created_at, updated_at
FROM company_entities
WHERE company_id = $1 AND active
ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.EntityType, &e.OwnershipPercentage, &e.OperationalControl, &e.FinancialControl, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ListEntities returns all entities of a company, active or not.
func (r *Repository) ListEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("company repo not initialised")
	}
	const query = `
SELECT id, company_id, name, entity_type, ownership_percentage, operational_control, financial_control, active, created_at, updated_at
FROM company_entities
WHERE company_id = $1
ORDER BY name, id`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Name, &e.EntityType, &e.OwnershipPercentage, &e.OperationalControl, &e.FinancialControl, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}
