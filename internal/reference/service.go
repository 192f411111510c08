package reference

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	List(ctx context.Context, f Filters) ([]Factor, error)
	GetByID(ctx context.Context, id uuid.UUID) (Factor, error)
}

// Service serves emission factor lookups through the read-through cache.
type Service struct {
	repo  DBRepository
	cache *Cache
}

// NewService constructs a reference service instance.
func NewService(repo DBRepository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListFactors returns factors for the filters, cached per version.
func (s *Service) ListFactors(ctx context.Context, f Filters) ([]Factor, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("reference service not initialised")
	}
	key, err := s.cache.BuildKey(ctx, "reference", "factors", f.Category, strconv.Itoa(f.PublishedYear))
	if err != nil {
		return nil, err
	}
	var factors []Factor
	err = s.cache.FetchJSON(ctx, key, &factors, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return factors, nil
}

// GetFactor fetches one factor by id, bypassing the cache.
func (s *Service) GetFactor(ctx context.Context, id uuid.UUID) (Factor, error) {
	if s == nil || s.repo == nil {
		return Factor{}, fmt.Errorf("reference service not initialised")
	}
	return s.repo.GetByID(ctx, id)
}

// Refresh invalidates cached listings after a factor table reload.
func (s *Service) Refresh(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("reference service not initialised")
	}
	return s.cache.Bump(ctx)
}
