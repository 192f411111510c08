package consolidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Method selects the legally distinct consolidation approach.
type Method string

const (
	// MethodOwnershipBased weighs entities by ownership percentage.
	MethodOwnershipBased Method = "ownership_based"
	// MethodOperationalControl includes controlled entities at full weight.
	MethodOperationalControl Method = "operational_control"
	// MethodFinancialControl includes financially controlled entities at full weight.
	MethodFinancialControl Method = "financial_control"
	// MethodEquityShare weighs entities by equity share. The formula matches
	// ownership_based; the method is kept distinct for reporting labels.
	MethodEquityShare Method = "equity_share"
)

// ParseMethod maps a raw method label to a Method, falling back to
// ownership_based for unknown values.
func ParseMethod(raw string) Method {
	switch Method(raw) {
	case MethodOwnershipBased, MethodOperationalControl, MethodFinancialControl, MethodEquityShare:
		return Method(raw)
	default:
		return MethodOwnershipBased
	}
}

// Status captures the lifecycle of a consolidation artifact.
type Status string

const (
	// StatusCompleted marks a freshly persisted consolidation.
	StatusCompleted Status = "completed"
	// StatusApproved marks a finalised consolidation. Terminal.
	StatusApproved Status = "approved"
)

// EntityContribution records one entity's participation in one consolidation
// run. Amount pointers are nil when the underlying figure was not measured.
type EntityContribution struct {
	EntityID            uuid.UUID `json:"entity_id"`
	EntityName          string    `json:"entity_name"`
	OwnershipPercentage float64   `json:"ownership_percentage"`
	Factor              float64   `json:"consolidation_factor"`

	OriginalTotalCO2e  *float64 `json:"original_total_co2e,omitempty"`
	OriginalScope1CO2e *float64 `json:"original_scope1_co2e,omitempty"`
	OriginalScope2CO2e *float64 `json:"original_scope2_co2e,omitempty"`
	OriginalScope3CO2e *float64 `json:"original_scope3_co2e,omitempty"`

	ConsolidatedTotalCO2e  *float64 `json:"consolidated_total_co2e,omitempty"`
	ConsolidatedScope1CO2e *float64 `json:"consolidated_scope1_co2e,omitempty"`
	ConsolidatedScope2CO2e *float64 `json:"consolidated_scope2_co2e,omitempty"`
	ConsolidatedScope3CO2e *float64 `json:"consolidated_scope3_co2e,omitempty"`

	DataCompleteness float64 `json:"data_completeness"`
	QualityScore     float64 `json:"quality_score"`
	Included         bool    `json:"included"`
	ExclusionReason  string  `json:"exclusion_reason,omitempty"`
}

// Consolidation is the versioned company-level output artifact. Totals are
// nil when no included entity contributed a value for the field.
type Consolidation struct {
	ID             uuid.UUID `json:"id"`
	CompanyID      uuid.UUID `json:"company_id"`
	ReportingYear  int       `json:"reporting_year"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Method         Method    `json:"method"`
	ConsolidatedAt time.Time `json:"consolidated_at"`
	Version        int       `json:"version"`

	TotalCO2e       *float64 `json:"total_co2e,omitempty"`
	TotalScope1CO2e *float64 `json:"total_scope1_co2e,omitempty"`
	TotalScope2CO2e *float64 `json:"total_scope2_co2e,omitempty"`
	TotalScope3CO2e *float64 `json:"total_scope3_co2e,omitempty"`

	EntityCount        int `json:"entity_count"`
	IncludedEntities   int `json:"included_entities"`
	EntitiesWithScope1 int `json:"entities_with_scope1"`
	EntitiesWithScope2 int `json:"entities_with_scope2"`
	EntitiesWithScope3 int `json:"entities_with_scope3"`

	CompletenessScore float64 `json:"completeness_score"`
	ConfidenceScore   float64 `json:"confidence_score"`

	Status           Status `json:"status"`
	ValidationStatus string `json:"validation_status"`
	IsFinal          bool   `json:"is_final"`

	Contributions []EntityContribution `json:"contributions"`
	Adjustments   map[string]any       `json:"adjustments,omitempty"`

	ApprovedBy    *string    `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ApprovalNotes string     `json:"approval_notes,omitempty"`
}

// CreateInput carries the parameters of one consolidation run.
type CreateInput struct {
	CompanyID              uuid.UUID
	ReportingYear          int
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Method                 string
	IncludeScope3          bool
	IncludeEntities        []uuid.UUID
	ExcludeEntities        []uuid.UUID
	MinOwnershipThreshold  float64
	OperationalControlOnly bool
	MinQualityScore        float64
	RequireCompleteData    bool
	Adjustments            map[string]any
	ActorID                string
}

// Validate ensures the request is coherent.
func (in CreateInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	if in.ReportingYear < 1990 || in.ReportingYear > 2100 {
		return fmt.Errorf("%w: reporting year out of range", ErrInvalidInput)
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return fmt.Errorf("%w: reporting period required", ErrInvalidInput)
	}
	if in.PeriodEnd.Before(in.PeriodStart) {
		return fmt.Errorf("%w: period end before start", ErrInvalidInput)
	}
	if in.MinOwnershipThreshold < 0 || in.MinOwnershipThreshold > 100 {
		return fmt.Errorf("%w: ownership threshold must be within 0-100", ErrInvalidInput)
	}
	if in.MinQualityScore < 0 || in.MinQualityScore > 100 {
		return fmt.Errorf("%w: quality score threshold must be within 0-100", ErrInvalidInput)
	}
	if in.ActorID == "" {
		return fmt.Errorf("%w: actor required", ErrInvalidInput)
	}
	return nil
}

// ListFilters narrows a consolidation listing.
type ListFilters struct {
	ReportingYear int
	Status        string
	Limit         int
	Offset        int
}

// Summary aggregates the consolidation history of a company and year.
type Summary struct {
	CompanyID     uuid.UUID `json:"company_id"`
	ReportingYear int       `json:"reporting_year"`
	Count         int       `json:"count"`
	ApprovedCount int       `json:"approved_count"`
	DraftCount    int       `json:"draft_count"`
	LatestVersion int       `json:"latest_version"`

	LatestTotalCO2e       *float64 `json:"latest_total_co2e,omitempty"`
	LatestTotalScope1CO2e *float64 `json:"latest_total_scope1_co2e,omitempty"`
	LatestTotalScope2CO2e *float64 `json:"latest_total_scope2_co2e,omitempty"`
	LatestTotalScope3CO2e *float64 `json:"latest_total_scope3_co2e,omitempty"`

	// EntityCoveragePercent is the share of entities included in the latest run.
	EntityCoveragePercent float64 `json:"entity_coverage_percent"`
}

// Audit event types appended by the engine.
const (
	EventCreated  = "CONSOLIDATION_CREATED"
	EventApproved = "CONSOLIDATION_APPROVED"
)

// AuditEvent is an append-only trail entry for one consolidation.
type AuditEvent struct {
	ID              uuid.UUID   `json:"id"`
	ConsolidationID uuid.UUID   `json:"consolidation_id"`
	EventType       string      `json:"event_type"`
	ActorID         string      `json:"actor_id"`
	OccurredAt      time.Time   `json:"occurred_at"`
	EntityIDs       []uuid.UUID `json:"entity_ids,omitempty"`
	DurationMillis  *int64      `json:"duration_ms,omitempty"`
}

// ErrInvalidInput occurs when a run request fails validation.
var ErrInvalidInput = errors.New("consolidation: invalid input")

// ErrNotFound occurs when a consolidation lookup fails.
var ErrNotFound = errors.New("consolidation: not found")

// ErrNoEligibleEntities occurs when the resolver yields an empty set. The
// engine never produces a zero-entity consolidation.
var ErrNoEligibleEntities = errors.New("consolidation: no eligible entities match the requested filters")

// ErrAlreadyApproved guards the approval gate against repeat approval.
var ErrAlreadyApproved = errors.New("consolidation: already approved")

// ErrVersionConflict indicates a concurrent writer raced the version
// assignment. Recovered internally by a bounded retry.
var ErrVersionConflict = errors.New("consolidation: version conflict")
