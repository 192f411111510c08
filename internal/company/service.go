package company

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/shared"
)

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	InsertCompany(ctx context.Context, in CreateCompanyInput) (Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (Company, error)
	ListCompanies(ctx context.Context, limit, offset int) ([]Company, error)
	UpdateCompany(ctx context.Context, id uuid.UUID, in UpdateCompanyInput) (Company, error)
	InsertEntity(ctx context.Context, in CreateEntityInput) (Entity, error)
	UpdateEntity(ctx context.Context, companyID, entityID uuid.UUID, in UpdateEntityInput) (Entity, error)
	ActiveEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error)
	ListEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error)
}

// AuditRecorder appends administrative changes to the audit log.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates company and entity administration.
type Service struct {
	repo  DBRepository
	audit AuditRecorder
}

// NewService constructs a company service instance.
func NewService(repo DBRepository, audit AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateCompany registers a company.
func (s *Service) CreateCompany(ctx context.Context, in CreateCompanyInput) (Company, error) {
	if s == nil || s.repo == nil {
		return Company{}, fmt.Errorf("company service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Company{}, err
	}
	created, err := s.repo.InsertCompany(ctx, in)
	if err != nil {
		return Company{}, err
	}
	s.recordAudit(ctx, in.ActorID, "COMPANY_CREATED", created.ID.String(), nil)
	return created, nil
}

// GetCompany fetches a single company.
func (s *Service) GetCompany(ctx context.Context, id uuid.UUID) (Company, error) {
	if s == nil || s.repo == nil {
		return Company{}, fmt.Errorf("company service not initialised")
	}
	return s.repo.GetCompany(ctx, id)
}

// ListCompanies returns a page of companies.
func (s *Service) ListCompanies(ctx context.Context, limit, offset int) ([]Company, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("company service not initialised")
	}
	limit, offset = shared.LimitOffset(limit, offset, 100)
	return s.repo.ListCompanies(ctx, limit, offset)
}

// UpdateCompany mutates company metadata.
func (s *Service) UpdateCompany(ctx context.Context, id uuid.UUID, in UpdateCompanyInput) (Company, error) {
	if s == nil || s.repo == nil {
		return Company{}, fmt.Errorf("company service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Company{}, err
	}
	updated, err := s.repo.UpdateCompany(ctx, id, in)
	if err != nil {
		return Company{}, err
	}
	s.recordAudit(ctx, in.ActorID, "COMPANY_UPDATED", id.String(), nil)
	return updated, nil
}

// CreateEntity registers an entity under a company.
func (s *Service) CreateEntity(ctx context.Context, in CreateEntityInput) (Entity, error) {
	if s == nil || s.repo == nil {
		return Entity{}, fmt.Errorf("company service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Entity{}, err
	}
	if _, err := s.repo.GetCompany(ctx, in.CompanyID); err != nil {
		return Entity{}, err
	}
	created, err := s.repo.InsertEntity(ctx, in)
	if err != nil {
		return Entity{}, err
	}
	s.recordAudit(ctx, in.ActorID, "ENTITY_CREATED", created.ID.String(), map[string]any{
		"company_id": in.CompanyID.String(),
	})
	return created, nil
}

// UpdateEntity mutates entity attributes.
func (s *Service) UpdateEntity(ctx context.Context, companyID, entityID uuid.UUID, in UpdateEntityInput) (Entity, error) {
	if s == nil || s.repo == nil {
		return Entity{}, fmt.Errorf("company service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Entity{}, err
	}
	updated, err := s.repo.UpdateEntity(ctx, companyID, entityID, in)
	if err != nil {
		return Entity{}, err
	}
	s.recordAudit(ctx, in.ActorID, "ENTITY_UPDATED", entityID.String(), map[string]any{
		"company_id": companyID.String(),
	})
	return updated, nil
}

// ListEntities returns all entities of a company.
func (s *Service) ListEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("company service not initialised")
	}
	if _, err := s.repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	return s.repo.ListEntities(ctx, companyID)
}

// ActiveEntities returns the active entities of a company in stable order.
// The consolidation engine consumes this read path.
func (s *Service) ActiveEntities(ctx context.Context, companyID uuid.UUID) ([]Entity, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("company service not initialised")
	}
	return s.repo.ActiveEntities(ctx, companyID)
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "company",
		EntityID: entityID,
		Meta:     meta,
	})
}
