package consolidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atmos-esg/atmos/internal/company"
	"github.com/atmos-esg/atmos/internal/emissions"
)

// versionRetries bounds recovery from concurrent version assignment races.
const versionRetries = 3

// loaderConcurrency bounds the per-entity emissions fan-out.
const loaderConcurrency = 8

// CompanyDirectory resolves companies and their active entities. Read-only.
type CompanyDirectory interface {
	GetCompany(ctx context.Context, id uuid.UUID) (company.Company, error)
	ActiveEntities(ctx context.Context, companyID uuid.UUID) ([]company.Entity, error)
}

// EmissionsSource loads the most relevant record per entity and year.
type EmissionsSource interface {
	LatestForEntityYear(ctx context.Context, entityID uuid.UUID, year int) (*emissions.Record, error)
}

// DBRepository defines the required persistence behaviour for the service.
type DBRepository interface {
	// Insert persists the artifact, its contribution snapshot and the created
	// audit event atomically, assigning the next version for the company and
	// year. Returns ErrVersionConflict if a concurrent writer won the race.
	Insert(ctx context.Context, c Consolidation, ev AuditEvent) (Consolidation, error)
	GetByID(ctx context.Context, id uuid.UUID) (Consolidation, error)
	List(ctx context.Context, companyID uuid.UUID, f ListFilters) ([]Consolidation, error)
	Approve(ctx context.Context, id uuid.UUID, actorID, notes string, at time.Time) (Consolidation, error)
	Summary(ctx context.Context, companyID uuid.UUID, year int) (Summary, error)
	ListEvents(ctx context.Context, consolidationID uuid.UUID) ([]AuditEvent, error)
}

// RunObserver records engine metrics.
type RunObserver interface {
	ObserveConsolidation(method, outcome string, elapsed time.Duration)
}

// Service orchestrates consolidation runs and the approval gate.
type Service struct {
	repo      DBRepository
	companies CompanyDirectory
	emissions EmissionsSource
	observer  RunObserver
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a consolidation service instance.
func NewService(repo DBRepository, companies CompanyDirectory, source EmissionsSource, observer RunObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		companies: companies,
		emissions: source,
		observer:  observer,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// CreateConsolidation runs the full pipeline: resolve entities, load their
// emissions, weigh and filter contributions, aggregate, score, and persist a
// new version with its audit event. The computation is side-effect free until
// the final atomic write.
func (s *Service) CreateConsolidation(ctx context.Context, in CreateInput) (Consolidation, error) {
	if s == nil || s.repo == nil {
		return Consolidation{}, fmt.Errorf("consolidation service not initialised")
	}
	if err := in.Validate(); err != nil {
		return Consolidation{}, err
	}
	start := s.now()
	method := ParseMethod(in.Method)

	if _, err := s.companies.GetCompany(ctx, in.CompanyID); err != nil {
		return Consolidation{}, err
	}
	entities, err := s.companies.ActiveEntities(ctx, in.CompanyID)
	if err != nil {
		return Consolidation{}, err
	}
	eligible := EligibleEntities(entities, EligibilityFilters{
		IncludeEntities:        in.IncludeEntities,
		ExcludeEntities:        in.ExcludeEntities,
		MinOwnershipThreshold:  in.MinOwnershipThreshold,
		OperationalControlOnly: in.OperationalControlOnly,
	})
	if len(eligible) == 0 {
		return Consolidation{}, ErrNoEligibleEntities
	}

	records, err := s.loadRecords(ctx, eligible, in.ReportingYear)
	if err != nil {
		return Consolidation{}, err
	}

	contribs := make([]EntityContribution, len(eligible))
	for i, e := range eligible {
		contribs[i] = BuildContribution(e, records[i], FactorFor(method, e))
	}
	contribs = ApplyInclusionPolicy(contribs, InclusionPolicy{
		MinQualityScore:     in.MinQualityScore,
		RequireCompleteData: in.RequireCompleteData,
		IncludeScope3:       in.IncludeScope3,
	})
	totals := Aggregate(contribs, in.IncludeScope3)
	completeness, confidence := ScoreQuality(contribs)

	artifact := Consolidation{
		ID:                 uuid.New(),
		CompanyID:          in.CompanyID,
		ReportingYear:      in.ReportingYear,
		PeriodStart:        in.PeriodStart,
		PeriodEnd:          in.PeriodEnd,
		Method:             method,
		ConsolidatedAt:     s.now(),
		TotalCO2e:          totals.TotalCO2e,
		TotalScope1CO2e:    totals.TotalScope1CO2e,
		TotalScope2CO2e:    totals.TotalScope2CO2e,
		TotalScope3CO2e:    totals.TotalScope3CO2e,
		EntityCount:        len(contribs),
		IncludedEntities:   totals.IncludedEntities,
		EntitiesWithScope1: totals.EntitiesWithScope1,
		EntitiesWithScope2: totals.EntitiesWithScope2,
		EntitiesWithScope3: totals.EntitiesWithScope3,
		CompletenessScore:  completeness,
		ConfidenceScore:    confidence,
		Status:             StatusCompleted,
		ValidationStatus:   "pending",
		Contributions:      contribs,
		Adjustments:        in.Adjustments,
	}

	persisted, err := s.persistWithRetry(ctx, artifact, in.ActorID, start)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.observe(string(method), "error", elapsed)
		return Consolidation{}, err
	}
	s.observe(string(method), "ok", elapsed)
	s.logger.Info("consolidation created",
		slog.String("company_id", in.CompanyID.String()),
		slog.Int("reporting_year", in.ReportingYear),
		slog.Int("version", persisted.Version),
		slog.Int("entities", persisted.EntityCount),
		slog.Int("included", persisted.IncludedEntities),
	)
	return persisted, nil
}

// loadRecords fans out the per-entity lookups; results keep entity order.
func (s *Service) loadRecords(ctx context.Context, entities []company.Entity, year int) ([]*emissions.Record, error) {
	records := make([]*emissions.Record, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loaderConcurrency)
	for i, e := range entities {
		g.Go(func() error {
			rec, err := s.emissions.LatestForEntityYear(gctx, e.ID, year)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) persistWithRetry(ctx context.Context, artifact Consolidation, actorID string, start time.Time) (Consolidation, error) {
	includedIDs := make([]uuid.UUID, 0, artifact.IncludedEntities)
	for _, c := range artifact.Contributions {
		if c.Included {
			includedIDs = append(includedIDs, c.EntityID)
		}
	}
	var lastErr error
	for attempt := 0; attempt < versionRetries; attempt++ {
		duration := s.now().Sub(start).Milliseconds()
		event := AuditEvent{
			ID:              uuid.New(),
			ConsolidationID: artifact.ID,
			EventType:       EventCreated,
			ActorID:         actorID,
			OccurredAt:      s.now(),
			EntityIDs:       includedIDs,
			DurationMillis:  &duration,
		}
		persisted, err := s.repo.Insert(ctx, artifact, event)
		if err == nil {
			return persisted, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Consolidation{}, err
		}
		lastErr = err
		s.logger.Warn("consolidation version conflict, retrying",
			slog.String("company_id", artifact.CompanyID.String()),
			slog.Int("attempt", attempt+1),
		)
	}
	return Consolidation{}, fmt.Errorf("consolidation: version assignment kept racing: %w", lastErr)
}

// GetConsolidation fetches a single artifact with its contribution snapshot.
func (s *Service) GetConsolidation(ctx context.Context, id uuid.UUID) (Consolidation, error) {
	if s == nil || s.repo == nil {
		return Consolidation{}, fmt.Errorf("consolidation service not initialised")
	}
	return s.repo.GetByID(ctx, id)
}

// ListConsolidations returns artifacts for a company, newest first.
func (s *Service) ListConsolidations(ctx context.Context, companyID uuid.UUID, f ListFilters) ([]Consolidation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("consolidation service not initialised")
	}
	if companyID == uuid.Nil {
		return nil, fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, companyID, f)
}

// ApproveConsolidation moves a completed artifact to its terminal approved
// state. Producing a corrected figure means creating a new version, never
// mutating an approved one.
func (s *Service) ApproveConsolidation(ctx context.Context, id uuid.UUID, actorID, notes string) (Consolidation, error) {
	if s == nil || s.repo == nil {
		return Consolidation{}, fmt.Errorf("consolidation service not initialised")
	}
	if actorID == "" {
		return Consolidation{}, fmt.Errorf("%w: actor required", ErrInvalidInput)
	}
	approved, err := s.repo.Approve(ctx, id, actorID, notes, s.now())
	if err != nil {
		return Consolidation{}, err
	}
	s.logger.Info("consolidation approved",
		slog.String("consolidation_id", id.String()),
		slog.String("actor_id", actorID),
	)
	return approved, nil
}

// GetConsolidationSummary reports counts and latest totals for a company and
// year. Returns ErrNotFound when no consolidations exist.
func (s *Service) GetConsolidationSummary(ctx context.Context, companyID uuid.UUID, year int) (Summary, error) {
	if s == nil || s.repo == nil {
		return Summary{}, fmt.Errorf("consolidation service not initialised")
	}
	return s.repo.Summary(ctx, companyID, year)
}

// ListAuditEvents returns the append-only trail for one consolidation.
func (s *Service) ListAuditEvents(ctx context.Context, consolidationID uuid.UUID) ([]AuditEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("consolidation service not initialised")
	}
	if _, err := s.repo.GetByID(ctx, consolidationID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, consolidationID)
}

func (s *Service) observe(method, outcome string, elapsed time.Duration) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveConsolidation(method, outcome, elapsed)
}
