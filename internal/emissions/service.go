package emissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	Insert(ctx context.Context, in IngestInput) (Record, error)
	LatestForEntityYear(ctx context.Context, entityID uuid.UUID, year int) (*Record, error)
	ListForEntity(ctx context.Context, entityID uuid.UUID, year int) ([]Record, error)
}

// Service mediates access to entity emissions records.
type Service struct {
	repo DBRepository
}

// NewService constructs an emissions service instance.
func NewService(repo DBRepository) *Service {
	return &Service{repo: repo}
}

// Ingest stores a record submitted by the calculation subsystem.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (Record, error) {
	if s == nil || s.repo == nil {
		return Record{}, fmt.Errorf("emissions service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Record{}, err
	}
	return s.repo.Insert(ctx, in)
}

// LatestForEntityYear returns the most relevant record for an entity and year.
// A nil record with a nil error means the entity has not reported.
func (s *Service) LatestForEntityYear(ctx context.Context, entityID uuid.UUID, year int) (*Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("emissions service not initialised")
	}
	return s.repo.LatestForEntityYear(ctx, entityID, year)
}

// ListForEntity returns an entity's records, optionally restricted to a year.
func (s *Service) ListForEntity(ctx context.Context, entityID uuid.UUID, year int) ([]Record, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("emissions service not initialised")
	}
	return s.repo.ListForEntity(ctx, entityID, year)
}
