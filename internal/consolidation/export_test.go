package consolidation

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() Consolidation {
	approvedBy := "auditor-7"
	approvedAt := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	return Consolidation{
		ID:                uuid.New(),
		CompanyID:         uuid.New(),
		ReportingYear:     2024,
		Method:            MethodOwnershipBased,
		ConsolidatedAt:    time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		Version:           3,
		TotalScope1CO2e:   f64(1700),
		TotalCO2e:         f64(1870),
		EntityCount:       2,
		IncludedEntities:  2,
		CompletenessScore: 66.67,
		ConfidenceScore:   81.25,
		Status:            StatusApproved,
		Contributions: []EntityContribution{
			{
				EntityID:               uuid.New(),
				EntityName:             "Alpha Manufacturing",
				OwnershipPercentage:    100,
				Factor:                 1,
				OriginalScope1CO2e:     f64(1000),
				OriginalTotalCO2e:      f64(1100),
				ConsolidatedScope1CO2e: f64(1000),
				ConsolidatedTotalCO2e:  f64(1100),
				DataCompleteness:       66.67,
				QualityScore:           85,
				Included:               true,
			},
			{
				EntityID:            uuid.New(),
				EntityName:          "Beta \"Logistics\"",
				OwnershipPercentage: 15,
				Factor:              0.15,
				DataCompleteness:    0,
				QualityScore:        0,
				Included:            false,
				ExclusionReason:     "no emissions data available",
			},
		},
		ApprovedBy:    &approvedBy,
		ApprovedAt:    &approvedAt,
		ApprovalNotes: "final figures",
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixture()))

	out := buf.String()
	lines := strings.Split(out, "\r\n")
	require.GreaterOrEqual(t, len(lines), 7)
	assert.Equal(t, "# Report: Consolidated Emissions v3", lines[0])
	assert.Contains(t, lines[1], "# Company: ")
	assert.Contains(t, lines[1], "Year: 2024")
	assert.Contains(t, lines[1], "Method: ownership_based")

	// Strip the comment rows before handing the rest to the CSV parser.
	reader := csv.NewReader(strings.NewReader(strings.Join(lines[2:], "\r\n")))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)

	header := records[0]
	require.Len(t, header, 15)
	assert.Equal(t, "Entity", header[0])
	assert.Equal(t, "Exclusion Reason", header[14])

	alpha := records[1]
	assert.Equal(t, "Alpha Manufacturing", alpha[0])
	assert.Equal(t, "100.00", alpha[1])
	assert.Equal(t, "1.0000", alpha[2])
	assert.Equal(t, "1000.00", alpha[3])
	assert.Equal(t, "", alpha[4], "absent scope 2 must stay an empty cell")
	assert.Equal(t, "true", alpha[13])

	beta := records[2]
	assert.Equal(t, "Beta \"Logistics\"", beta[0])
	assert.Equal(t, "", beta[3], "excluded entity carries no original scope 1")
	assert.Equal(t, "false", beta[13])
	assert.Equal(t, "no emissions data available", beta[14])

	totals := records[4]
	assert.Equal(t, "Totals", totals[0])
	assert.Equal(t, "1700.00", totals[7])
	assert.Equal(t, "", totals[8], "absent scope 2 total must stay empty")
	assert.Equal(t, "1870.00", totals[10])
}

func TestWriteCSVEntityCountRow(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixture()))
	assert.Contains(t, buf.String(), "2/2")
}

func TestReportHTML(t *testing.T) {
	html := ReportHTML(exportFixture(), "Acme & Partners")

	assert.Contains(t, html, "Consolidated Emissions 2024")
	assert.Contains(t, html, "Acme &amp; Partners")
	assert.Contains(t, html, "1,700.00")
	assert.Contains(t, html, "not measured", "absent scope totals render as prose, not zero")
	assert.Contains(t, html, "Beta &quot;Logistics&quot;")
	assert.Contains(t, html, "class=\"excluded\"")
	assert.Contains(t, html, "no emissions data available")
	assert.Contains(t, html, "Approved by auditor-7")
	assert.Contains(t, html, "final figures")
	assert.NotContains(t, html, "<script")
}

func TestReportHTMLWithoutApproval(t *testing.T) {
	c := exportFixture()
	c.ApprovedBy = nil
	c.ApprovedAt = nil
	c.ApprovalNotes = ""
	c.Status = StatusCompleted

	html := ReportHTML(c, "Acme Group")
	assert.NotContains(t, html, "Approval")
}

func TestFormatOptional(t *testing.T) {
	assert.Equal(t, "", formatOptional(nil))
	assert.Equal(t, "0.00", formatOptional(f64(0)))
	assert.Equal(t, "1234.57", formatOptional(f64(1234.567)))
}
