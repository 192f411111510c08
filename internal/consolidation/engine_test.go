package consolidation

import (
	"testing"

	"github.com/google/uuid"

	"github.com/atmos-esg/atmos/internal/company"
	"github.com/atmos-esg/atmos/internal/emissions"
)

func f64(v float64) *float64 { return &v }

func testEntity(name string, ownership float64, opControl bool) company.Entity {
	return company.Entity{
		ID:                  uuid.New(),
		Name:                name,
		OwnershipPercentage: ownership,
		OperationalControl:  opControl,
		Active:              true,
	}
}

func approx(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}

func TestEligibleEntitiesFilters(t *testing.T) {
	full := testEntity("full", 100, true)
	majority := testEntity("majority", 75, true)
	minority := testEntity("minority", 25, false)
	entities := []company.Entity{full, majority, minority}

	tests := []struct {
		name    string
		filters EligibilityFilters
		want    []string
	}{
		{
			name: "no filters keeps all in order",
			want: []string{"full", "majority", "minority"},
		},
		{
			name:    "ownership threshold drops minority",
			filters: EligibilityFilters{MinOwnershipThreshold: 50},
			want:    []string{"full", "majority"},
		},
		{
			name:    "high threshold keeps only the wholly owned entity",
			filters: EligibilityFilters{MinOwnershipThreshold: 99},
			want:    []string{"full"},
		},
		{
			name:    "operational control only drops uncontrolled",
			filters: EligibilityFilters{OperationalControlOnly: true},
			want:    []string{"full", "majority"},
		},
		{
			name:    "include list is an intersection",
			filters: EligibilityFilters{IncludeEntities: []uuid.UUID{majority.ID}},
			want:    []string{"majority"},
		},
		{
			name:    "exclude list removes named entities",
			filters: EligibilityFilters{ExcludeEntities: []uuid.UUID{full.ID}},
			want:    []string{"majority", "minority"},
		},
		{
			name: "exclude wins over include",
			filters: EligibilityFilters{
				IncludeEntities: []uuid.UUID{full.ID, majority.ID},
				ExcludeEntities: []uuid.UUID{majority.ID},
			},
			want: []string{"full"},
		},
		{
			name:    "threshold above all yields empty",
			filters: EligibilityFilters{MinOwnershipThreshold: 101},
			want:    nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EligibleEntities(entities, tc.filters)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entities, want %d", len(got), len(tc.want))
			}
			for i, e := range got {
				if e.Name != tc.want[i] {
					t.Fatalf("position %d: got %q, want %q", i, e.Name, tc.want[i])
				}
			}
		})
	}
}

func TestFactorForStaysInRange(t *testing.T) {
	yes := true
	no := false
	tests := []struct {
		name   string
		method Method
		entity company.Entity
		want   float64
	}{
		{"ownership full", MethodOwnershipBased, testEntity("a", 100, true), 1},
		{"ownership partial", MethodOwnershipBased, testEntity("a", 75, true), 0.75},
		{"equity share matches ownership", MethodEquityShare, testEntity("a", 25, false), 0.25},
		{"operational control held", MethodOperationalControl, testEntity("a", 10, true), 1},
		{"operational control missing", MethodOperationalControl, testEntity("a", 90, false), 0},
		{
			"financial control explicit",
			MethodFinancialControl,
			company.Entity{OwnershipPercentage: 40, OperationalControl: false, FinancialControl: &yes},
			1,
		},
		{
			"financial control explicitly denied",
			MethodFinancialControl,
			company.Entity{OwnershipPercentage: 40, OperationalControl: true, FinancialControl: &no},
			0,
		},
		{
			"financial control falls back to operational",
			MethodFinancialControl,
			company.Entity{OwnershipPercentage: 40, OperationalControl: true},
			1,
		},
		{"unknown method behaves as ownership", Method("mystery"), testEntity("a", 50, false), 0.5},
		{"ownership above hundred clamps", MethodOwnershipBased, testEntity("a", 140, false), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FactorFor(tc.method, tc.entity)
			if got < 0 || got > 1 {
				t.Fatalf("factor %v outside [0,1]", got)
			}
			if !approx(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildContributionAbsencePropagation(t *testing.T) {
	e := testEntity("alpha", 80, true)
	rec := &emissions.Record{
		Scope1CO2e:       f64(1000),
		Scope3CO2e:       f64(200),
		ValidationStatus: emissions.StatusValidated,
	}
	c := BuildContribution(e, rec, 0.8)

	if c.ConsolidatedScope1CO2e == nil || !approx(*c.ConsolidatedScope1CO2e, 800) {
		t.Fatalf("scope1 = %v, want 800", c.ConsolidatedScope1CO2e)
	}
	if c.ConsolidatedScope2CO2e != nil {
		t.Fatalf("absent scope2 must stay absent, got %v", *c.ConsolidatedScope2CO2e)
	}
	if c.ConsolidatedScope3CO2e == nil || !approx(*c.ConsolidatedScope3CO2e, 160) {
		t.Fatalf("scope3 = %v, want 160", c.ConsolidatedScope3CO2e)
	}
	if c.ConsolidatedTotalCO2e != nil {
		t.Fatalf("absent total must stay absent")
	}
	if !approx(c.DataCompleteness, 66.67) {
		t.Fatalf("completeness = %v, want 66.67", c.DataCompleteness)
	}
	// 60 base + 66.67/100*30 + 5 validated bonus
	if !approx(c.QualityScore, 85) {
		t.Fatalf("quality = %v, want 85", c.QualityScore)
	}
}

func TestBuildContributionNoRecord(t *testing.T) {
	c := BuildContribution(testEntity("silent", 60, true), nil, 0.6)
	if c.DataCompleteness != 0 || c.QualityScore != 0 {
		t.Fatalf("missing record must score zero, got completeness=%v quality=%v", c.DataCompleteness, c.QualityScore)
	}
	if c.OriginalScope1CO2e != nil || c.ConsolidatedScope1CO2e != nil || c.ConsolidatedTotalCO2e != nil {
		t.Fatalf("missing record must keep all amounts absent")
	}
	if c.Factor != 0.6 {
		t.Fatalf("factor = %v, want 0.6", c.Factor)
	}
}

func TestBuildContributionQualityBonuses(t *testing.T) {
	e := testEntity("alpha", 100, true)
	full := &emissions.Record{
		Scope1CO2e: f64(1), Scope2CO2e: f64(2), Scope3CO2e: f64(3),
	}
	tests := []struct {
		status emissions.ValidationStatus
		want   float64
	}{
		{emissions.StatusUnvalidated, 90},
		{emissions.StatusValidated, 95},
		{emissions.StatusApproved, 100},
	}
	for _, tc := range tests {
		rec := *full
		rec.ValidationStatus = tc.status
		c := BuildContribution(e, &rec, 1)
		if !approx(c.QualityScore, tc.want) {
			t.Fatalf("status %s: quality = %v, want %v", tc.status, c.QualityScore, tc.want)
		}
	}
}

func TestApplyInclusionPolicyReasonOrder(t *testing.T) {
	// A contribution failing every check must report the quality reason.
	poor := EntityContribution{QualityScore: 10, DataCompleteness: 0}
	out := ApplyInclusionPolicy([]EntityContribution{poor}, InclusionPolicy{
		MinQualityScore:     50,
		RequireCompleteData: true,
	})
	if out[0].Included {
		t.Fatal("expected exclusion")
	}
	if out[0].ExclusionReason != "data quality score 10% below minimum 50%" {
		t.Fatalf("reason = %q", out[0].ExclusionReason)
	}

	// Quality passes, completeness fails.
	partial := EntityContribution{QualityScore: 80, DataCompleteness: 67, ConsolidatedScope1CO2e: f64(10)}
	out = ApplyInclusionPolicy([]EntityContribution{partial}, InclusionPolicy{
		MinQualityScore:     50,
		RequireCompleteData: true,
	})
	if out[0].ExclusionReason != "incomplete data (completeness: 67%)" {
		t.Fatalf("reason = %q", out[0].ExclusionReason)
	}

	// Quality and completeness pass, no signal.
	empty := EntityContribution{QualityScore: 80, DataCompleteness: 100}
	out = ApplyInclusionPolicy([]EntityContribution{empty}, InclusionPolicy{MinQualityScore: 50})
	if out[0].ExclusionReason != "no emissions data available" {
		t.Fatalf("reason = %q", out[0].ExclusionReason)
	}

	// Healthy contribution stays in.
	healthy := EntityContribution{QualityScore: 80, DataCompleteness: 100, ConsolidatedScope1CO2e: f64(5)}
	out = ApplyInclusionPolicy([]EntityContribution{healthy}, InclusionPolicy{MinQualityScore: 50})
	if !out[0].Included || out[0].ExclusionReason != "" {
		t.Fatalf("expected inclusion, got reason %q", out[0].ExclusionReason)
	}
}

func TestApplyInclusionPolicyScope3OnlySignal(t *testing.T) {
	c := EntityContribution{QualityScore: 80, DataCompleteness: 33, ConsolidatedScope3CO2e: f64(7)}

	out := ApplyInclusionPolicy([]EntityContribution{c}, InclusionPolicy{IncludeScope3: true})
	if !out[0].Included {
		t.Fatalf("scope3 signal must count when scope3 requested, reason %q", out[0].ExclusionReason)
	}

	out = ApplyInclusionPolicy([]EntityContribution{c}, InclusionPolicy{IncludeScope3: false})
	if out[0].Included {
		t.Fatal("scope3-only signal must not count when scope3 not requested")
	}
}

func TestApplyInclusionPolicyZeroFactorContribution(t *testing.T) {
	// An entity scaled to zero by a zero factor carries no usable signal.
	c := EntityContribution{
		QualityScore:           90,
		DataCompleteness:       100,
		ConsolidatedScope1CO2e: f64(0),
		ConsolidatedScope2CO2e: f64(0),
		ConsolidatedScope3CO2e: f64(0),
	}
	out := ApplyInclusionPolicy([]EntityContribution{c}, InclusionPolicy{IncludeScope3: true})
	if out[0].Included {
		t.Fatal("zero-factor contribution must be excluded")
	}
	if out[0].ExclusionReason != "no emissions data available" {
		t.Fatalf("reason = %q", out[0].ExclusionReason)
	}
}

func TestAggregateOwnershipScenario(t *testing.T) {
	// Three entities at 100%, 75%, 25% with scope1 1000/800/400.
	contribs := []EntityContribution{
		{Included: true, ConsolidatedScope1CO2e: f64(1000)},
		{Included: true, ConsolidatedScope1CO2e: f64(600)},
		{Included: true, ConsolidatedScope1CO2e: f64(100)},
	}
	totals := Aggregate(contribs, false)
	if totals.TotalScope1CO2e == nil || !approx(*totals.TotalScope1CO2e, 1700) {
		t.Fatalf("scope1 total = %v, want 1700", totals.TotalScope1CO2e)
	}
	if totals.IncludedEntities != 3 || totals.EntitiesWithScope1 != 3 {
		t.Fatalf("coverage counts wrong: %+v", totals)
	}
}

func TestAggregateAbsenceIsNotZero(t *testing.T) {
	contribs := []EntityContribution{
		{Included: true, ConsolidatedScope1CO2e: f64(10)},
		{Included: true},
	}
	totals := Aggregate(contribs, true)
	if totals.TotalScope2CO2e != nil {
		t.Fatalf("scope2 never measured, total must be absent, got %v", *totals.TotalScope2CO2e)
	}
	if totals.TotalScope3CO2e != nil {
		t.Fatal("scope3 never measured, total must be absent")
	}
	if totals.TotalScope1CO2e == nil || !approx(*totals.TotalScope1CO2e, 10) {
		t.Fatalf("scope1 total = %v, want 10", totals.TotalScope1CO2e)
	}
}

func TestAggregateScope3Disabled(t *testing.T) {
	contribs := []EntityContribution{
		{Included: true, ConsolidatedScope3CO2e: f64(500), ConsolidatedScope1CO2e: f64(1)},
	}
	totals := Aggregate(contribs, false)
	if totals.TotalScope3CO2e != nil {
		t.Fatal("scope3 totals must stay absent when not requested")
	}
	if totals.EntitiesWithScope3 != 0 {
		t.Fatalf("scope3 coverage = %d, want 0", totals.EntitiesWithScope3)
	}
}

func TestAggregateSkipsExcluded(t *testing.T) {
	contribs := []EntityContribution{
		{Included: true, ConsolidatedScope1CO2e: f64(100), ConsolidatedTotalCO2e: f64(100)},
		{Included: false, ConsolidatedScope1CO2e: f64(9999), ConsolidatedTotalCO2e: f64(9999)},
	}
	totals := Aggregate(contribs, false)
	if !approx(*totals.TotalScope1CO2e, 100) || !approx(*totals.TotalCO2e, 100) {
		t.Fatalf("excluded contribution leaked into totals: %+v", totals)
	}
	if totals.IncludedEntities != 1 || totals.EntitiesWithScope1 != 1 {
		t.Fatalf("excluded contribution leaked into coverage: %+v", totals)
	}
}

func TestScoreQuality(t *testing.T) {
	contribs := []EntityContribution{
		{Included: true, Factor: 1, DataCompleteness: 100, QualityScore: 100},
		{Included: true, Factor: 0.5, DataCompleteness: 66.67, QualityScore: 85},
		{Included: false, Factor: 0.25, DataCompleteness: 0, QualityScore: 0},
	}
	completeness, confidence := ScoreQuality(contribs)
	// weighted completeness = (100*1 + 66.67*0.5) / 1.5 = 88.89
	if !approx(completeness, 88.89) {
		t.Fatalf("completeness = %v, want 88.89", completeness)
	}
	// weighted quality = (100 + 42.5)/1.5 = 95, scaled by coverage 2/3
	if !approx(confidence, 63.33) {
		t.Fatalf("confidence = %v, want 63.33", confidence)
	}
}

func TestScoreQualityZeroWeight(t *testing.T) {
	tests := []struct {
		name     string
		contribs []EntityContribution
	}{
		{"no contributions", nil},
		{"all excluded", []EntityContribution{{Included: false, Factor: 1}}},
		{"all zero factors", []EntityContribution{{Included: true, Factor: 0, QualityScore: 100}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completeness, confidence := ScoreQuality(tc.contribs)
			if completeness != 0 || confidence != 0 {
				t.Fatalf("got %v/%v, want 0/0", completeness, confidence)
			}
		})
	}
}
