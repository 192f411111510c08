package reference

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Factor is one published emission factor, keyed by category and year.
// Values follow the EPA emission factor hub publication cadence.
type Factor struct {
	ID            uuid.UUID `json:"id"`
	Category      string    `json:"category"`
	Subcategory   string    `json:"subcategory,omitempty"`
	Unit          string    `json:"unit"`
	KgCO2ePerUnit float64   `json:"kg_co2e_per_unit"`
	Source        string    `json:"source"`
	PublishedYear int       `json:"published_year"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Filters narrows a factor listing.
type Filters struct {
	Category      string
	PublishedYear int
}

// ErrNotFound occurs when no factors match the requested filters.
var ErrNotFound = errors.New("reference: factor not found")
