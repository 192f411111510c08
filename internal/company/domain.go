package company

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Company is the root aggregate owning entities and consolidations.
type Company struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	RegistryCode string    `json:"registry_code"`
	Sector       string    `json:"sector"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Entity is a sub-organisation (subsidiary, joint venture) whose emissions
// are measured independently and later consolidated.
type Entity struct {
	ID                  uuid.UUID `json:"id"`
	CompanyID           uuid.UUID `json:"company_id"`
	Name                string    `json:"name"`
	EntityType          string    `json:"entity_type"`
	OwnershipPercentage float64   `json:"ownership_percentage"`
	OperationalControl  bool      `json:"operational_control"`
	// FinancialControl is optional; when nil, operational control is the
	// documented fallback when a financial-control factor is requested.
	FinancialControl *bool     `json:"financial_control,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasFinancialControl resolves the optional attribute with its fallback rule.
func (e Entity) HasFinancialControl() bool {
	if e.FinancialControl != nil {
		return *e.FinancialControl
	}
	return e.OperationalControl
}

// CreateCompanyInput carries fields for registering a company.
type CreateCompanyInput struct {
	Name         string
	RegistryCode string
	Sector       string
	ActorID      string
}

// Validate ensures the request is coherent.
func (in CreateCompanyInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	return nil
}

// UpdateCompanyInput mutates company metadata.
type UpdateCompanyInput struct {
	Name    string
	Sector  string
	ActorID string
}

// Validate ensures update input remains valid.
func (in UpdateCompanyInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	return nil
}

// CreateEntityInput carries fields for registering an entity under a company.
type CreateEntityInput struct {
	CompanyID           uuid.UUID
	Name                string
	EntityType          string
	OwnershipPercentage float64
	OperationalControl  bool
	FinancialControl    *bool
	ActorID             string
}

// Validate ensures the request is coherent.
func (in CreateEntityInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: company id required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: entity name required", ErrInvalidInput)
	}
	if in.OwnershipPercentage < 0 || in.OwnershipPercentage > 100 {
		return fmt.Errorf("%w: ownership percentage must be within 0-100", ErrInvalidInput)
	}
	return nil
}

// UpdateEntityInput mutates entity attributes.
type UpdateEntityInput struct {
	Name                string
	EntityType          string
	OwnershipPercentage float64
	OperationalControl  bool
	FinancialControl    *bool
	Active              bool
	ActorID             string
}

// Validate ensures update input remains valid.
func (in UpdateEntityInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: entity name required", ErrInvalidInput)
	}
	if in.OwnershipPercentage < 0 || in.OwnershipPercentage > 100 {
		return fmt.Errorf("%w: ownership percentage must be within 0-100", ErrInvalidInput)
	}
	return nil
}

// ErrInvalidInput occurs when a request fails validation.
var ErrInvalidInput = errors.New("company: invalid input")

// ErrNotFound occurs when a company lookup fails.
var ErrNotFound = errors.New("company: not found")

// ErrEntityNotFound occurs when an entity lookup fails.
var ErrEntityNotFound = errors.New("company: entity not found")
