package consolidation

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/company"
	"github.com/atmos-esg/atmos/internal/emissions"
)

// EligibilityFilters narrows the entity set before any computation.
type EligibilityFilters struct {
	IncludeEntities        []uuid.UUID
	ExcludeEntities        []uuid.UUID
	MinOwnershipThreshold  float64
	OperationalControlOnly bool
}

// EligibleEntities applies the resolver filters in order: include list
// (intersection), exclude list, ownership threshold, operational control.
// Input order is preserved so a run is stable.
func EligibleEntities(entities []company.Entity, f EligibilityFilters) []company.Entity {
	include := make(map[uuid.UUID]struct{}, len(f.IncludeEntities))
	for _, id := range f.IncludeEntities {
		include[id] = struct{}{}
	}
	exclude := make(map[uuid.UUID]struct{}, len(f.ExcludeEntities))
	for _, id := range f.ExcludeEntities {
		exclude[id] = struct{}{}
	}
	eligible := make([]company.Entity, 0, len(entities))
	for _, e := range entities {
		if len(include) > 0 {
			if _, ok := include[e.ID]; !ok {
				continue
			}
		}
		if _, ok := exclude[e.ID]; ok {
			continue
		}
		if e.OwnershipPercentage < f.MinOwnershipThreshold {
			continue
		}
		if f.OperationalControlOnly && !e.OperationalControl {
			continue
		}
		eligible = append(eligible, e)
	}
	return eligible
}

// FactorFor derives the consolidation factor for an entity under a method.
// The result is always within [0, 1].
func FactorFor(method Method, e company.Entity) float64 {
	var factor float64
	switch method {
	case MethodOperationalControl:
		if e.OperationalControl {
			factor = 1
		}
	case MethodFinancialControl:
		if e.HasFinancialControl() {
			factor = 1
		}
	case MethodOwnershipBased, MethodEquityShare:
		factor = e.OwnershipPercentage / 100
	default:
		factor = e.OwnershipPercentage / 100
	}
	return math.Min(1, math.Max(0, factor))
}

// BuildContribution combines an entity's reported figures with its factor.
// A nil record means the entity has not reported: all amounts stay absent and
// both quality figures are zero.
func BuildContribution(e company.Entity, rec *emissions.Record, factor float64) EntityContribution {
	c := EntityContribution{
		EntityID:            e.ID,
		EntityName:          e.Name,
		OwnershipPercentage: e.OwnershipPercentage,
		Factor:              factor,
	}
	if rec == nil {
		return c
	}
	c.OriginalTotalCO2e = rec.TotalCO2e
	c.OriginalScope1CO2e = rec.Scope1CO2e
	c.OriginalScope2CO2e = rec.Scope2CO2e
	c.OriginalScope3CO2e = rec.Scope3CO2e
	c.ConsolidatedTotalCO2e = scale(rec.TotalCO2e, factor)
	c.ConsolidatedScope1CO2e = scale(rec.Scope1CO2e, factor)
	c.ConsolidatedScope2CO2e = scale(rec.Scope2CO2e, factor)
	c.ConsolidatedScope3CO2e = scale(rec.Scope3CO2e, factor)

	present := 0
	for _, v := range []*float64{rec.Scope1CO2e, rec.Scope2CO2e, rec.Scope3CO2e} {
		if v != nil {
			present++
		}
	}
	c.DataCompleteness = round2(float64(present) / 3 * 100)

	score := 60 + c.DataCompleteness/100*30
	switch rec.ValidationStatus {
	case emissions.StatusApproved:
		score += 10
	case emissions.StatusValidated:
		score += 5
	}
	c.QualityScore = round2(math.Min(100, score))
	return c
}

// InclusionPolicy decides final inclusion per contribution.
type InclusionPolicy struct {
	MinQualityScore     float64
	RequireCompleteData bool
	IncludeScope3       bool
}

// ApplyInclusionPolicy flips the inclusion flag on each contribution. Entries
// are never removed; excluded ones carry the reason of the first failing
// check. The check order is significant.
func ApplyInclusionPolicy(contribs []EntityContribution, p InclusionPolicy) []EntityContribution {
	out := make([]EntityContribution, len(contribs))
	for i, c := range contribs {
		switch {
		case c.QualityScore < p.MinQualityScore:
			c.Included = false
			c.ExclusionReason = fmt.Sprintf("data quality score %.0f%% below minimum %.0f%%", c.QualityScore, p.MinQualityScore)
		case p.RequireCompleteData && c.DataCompleteness < 100:
			c.Included = false
			c.ExclusionReason = fmt.Sprintf("incomplete data (completeness: %.0f%%)", c.DataCompleteness)
		case !hasSignal(c.ConsolidatedScope1CO2e) && !hasSignal(c.ConsolidatedScope2CO2e) &&
			(!p.IncludeScope3 || !hasSignal(c.ConsolidatedScope3CO2e)):
			c.Included = false
			c.ExclusionReason = "no emissions data available"
		default:
			c.Included = true
			c.ExclusionReason = ""
		}
		out[i] = c
	}
	return out
}

// Totals carries company-level aggregates over included contributions.
type Totals struct {
	TotalCO2e       *float64
	TotalScope1CO2e *float64
	TotalScope2CO2e *float64
	TotalScope3CO2e *float64

	IncludedEntities   int
	EntitiesWithScope1 int
	EntitiesWithScope2 int
	EntitiesWithScope3 int
}

// Aggregate sums consolidated amounts across included contributions. A field
// with no present value in any included contribution stays absent, which
// distinguishes "measured as zero" from "not measured anywhere". Scope 3 is
// only aggregated when requested.
func Aggregate(contribs []EntityContribution, includeScope3 bool) Totals {
	var t Totals
	for _, c := range contribs {
		if !c.Included {
			continue
		}
		t.IncludedEntities++
		t.TotalCO2e = addOptional(t.TotalCO2e, c.ConsolidatedTotalCO2e)
		t.TotalScope1CO2e = addOptional(t.TotalScope1CO2e, c.ConsolidatedScope1CO2e)
		t.TotalScope2CO2e = addOptional(t.TotalScope2CO2e, c.ConsolidatedScope2CO2e)
		if c.ConsolidatedScope1CO2e != nil {
			t.EntitiesWithScope1++
		}
		if c.ConsolidatedScope2CO2e != nil {
			t.EntitiesWithScope2++
		}
		if includeScope3 {
			t.TotalScope3CO2e = addOptional(t.TotalScope3CO2e, c.ConsolidatedScope3CO2e)
			if c.ConsolidatedScope3CO2e != nil {
				t.EntitiesWithScope3++
			}
		}
	}
	return t
}

// ScoreQuality computes the factor-weighted completeness and confidence over
// the contribution set. Confidence is scaled by the coverage ratio over the
// full set, penalising runs that exclude a large fraction of entities.
func ScoreQuality(contribs []EntityContribution) (completeness, confidence float64) {
	var weight, weightedCompleteness, weightedQuality float64
	included := 0
	for _, c := range contribs {
		if !c.Included {
			continue
		}
		included++
		weight += c.Factor
		weightedCompleteness += c.DataCompleteness * c.Factor
		weightedQuality += c.QualityScore * c.Factor
	}
	if weight == 0 || len(contribs) == 0 {
		return 0, 0
	}
	coverage := float64(included) / float64(len(contribs))
	completeness = round2(weightedCompleteness / weight)
	confidence = round2(weightedQuality / weight * coverage)
	return completeness, confidence
}

// hasSignal reports whether a consolidated amount carries usable signal. An
// amount scaled to zero by a zero factor contributes nothing to the rollup,
// the same as one never measured.
func hasSignal(v *float64) bool {
	return v != nil && *v != 0
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * factor
	return &scaled
}

func addOptional(sum, v *float64) *float64 {
	if v == nil {
		return sum
	}
	if sum == nil {
		total := *v
		return &total
	}
	total := *sum + *v
	return &total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
