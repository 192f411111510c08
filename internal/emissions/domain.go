package emissions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationStatus labels how far a record has progressed through review.
type ValidationStatus string

const (
	// StatusUnvalidated marks a freshly ingested record.
	StatusUnvalidated ValidationStatus = "unvalidated"
	// StatusValidated marks a record checked by an analyst.
	StatusValidated ValidationStatus = "validated"
	// StatusApproved marks a record signed off for reporting.
	StatusApproved ValidationStatus = "approved"
)

// Record holds per-scope CO2e amounts reported for one entity and year.
// Each amount is independently optional: nil means "not measured", not zero.
type Record struct {
	ID               uuid.UUID        `json:"id"`
	EntityID         uuid.UUID        `json:"entity_id"`
	ReportingYear    int              `json:"reporting_year"`
	TotalCO2e        *float64         `json:"total_co2e,omitempty"`
	Scope1CO2e       *float64         `json:"scope1_co2e,omitempty"`
	Scope2CO2e       *float64         `json:"scope2_co2e,omitempty"`
	Scope3CO2e       *float64         `json:"scope3_co2e,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// IngestInput carries a record submitted by the calculation subsystem.
type IngestInput struct {
	EntityID         uuid.UUID
	ReportingYear    int
	TotalCO2e        *float64
	Scope1CO2e       *float64
	Scope2CO2e       *float64
	Scope3CO2e       *float64
	ValidationStatus ValidationStatus
}

// Validate ensures the submission is coherent.
func (in IngestInput) Validate() error {
	if in.EntityID == uuid.Nil {
		return fmt.Errorf("%w: entity id required", ErrInvalidInput)
	}
	if in.ReportingYear < 1990 || in.ReportingYear > 2100 {
		return fmt.Errorf("%w: reporting year out of range", ErrInvalidInput)
	}
	switch in.ValidationStatus {
	case StatusUnvalidated, StatusValidated, StatusApproved:
	case "":
	default:
		return fmt.Errorf("%w: unknown validation status", ErrInvalidInput)
	}
	for _, v := range []*float64{in.TotalCO2e, in.Scope1CO2e, in.Scope2CO2e, in.Scope3CO2e} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: amounts must be non-negative", ErrInvalidInput)
		}
	}
	return nil
}

// ErrInvalidInput occurs when a submission fails validation.
var ErrInvalidInput = errors.New("emissions: invalid input")

// ErrNotFound occurs when a record lookup fails.
var ErrNotFound = errors.New("emissions: record not found")
