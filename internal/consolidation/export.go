package consolidation

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// WriteCSV serialises a consolidation with its per-entity contributions.
// Absent measurements stay empty cells so a consumer can tell "not measured"
// from a literal zero.
func WriteCSV(w io.Writer, c Consolidation) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment(fmt.Sprintf("# Report: Consolidated Emissions v%d", c.Version)); err != nil {
		return err
	}
	meta := fmt.Sprintf("# Company: %s | Year: %d | Method: %s | Status: %s | Consolidated: %s",
		c.CompanyID, c.ReportingYear, c.Method, c.Status, c.ConsolidatedAt.UTC().Format("2006-01-02 15:04:05"))
	if err := streamer.writeComment(meta); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{
		"Entity", "Ownership %", "Factor",
		"Scope 1 (tCO2e)", "Scope 2 (tCO2e)", "Scope 3 (tCO2e)", "Total (tCO2e)",
		"Consolidated Scope 1", "Consolidated Scope 2", "Consolidated Scope 3", "Consolidated Total",
		"Completeness %", "Quality", "Included", "Exclusion Reason",
	}); err != nil {
		return err
	}
	for _, contrib := range c.Contributions {
		if err := streamer.writeRow([]string{
			contrib.EntityName,
			formatDecimal(contrib.OwnershipPercentage),
			fmt.Sprintf("%.4f", contrib.Factor),
			formatOptional(contrib.OriginalScope1CO2e),
			formatOptional(contrib.OriginalScope2CO2e),
			formatOptional(contrib.OriginalScope3CO2e),
			formatOptional(contrib.OriginalTotalCO2e),
			formatOptional(contrib.ConsolidatedScope1CO2e),
			formatOptional(contrib.ConsolidatedScope2CO2e),
			formatOptional(contrib.ConsolidatedScope3CO2e),
			formatOptional(contrib.ConsolidatedTotalCO2e),
			formatDecimal(contrib.DataCompleteness),
			formatDecimal(contrib.QualityScore),
			strconv.FormatBool(contrib.Included),
			contrib.ExclusionReason,
		}); err != nil {
			return err
		}
	}
	if err := streamer.writeRow(make([]string, 15)); err != nil {
		return err
	}
	totalsRows := [][]string{
		{"Totals", "", "", "", "", "", "", formatOptional(c.TotalScope1CO2e), formatOptional(c.TotalScope2CO2e), formatOptional(c.TotalScope3CO2e), formatOptional(c.TotalCO2e), formatDecimal(c.CompletenessScore), formatDecimal(c.ConfidenceScore), "", ""},
		{"Entities", "", "", "", "", "", "", "", "", "", strconv.Itoa(c.IncludedEntities) + "/" + strconv.Itoa(c.EntityCount), "", "", "", ""},
	}
	for _, row := range totalsRows {
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	return streamer.Close()
}

// ReportHTML renders a consolidation as a printable HTML document for PDF
// conversion.
func ReportHTML(c Consolidation, companyName string) string {
	printer := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"><style>")
	b.WriteString("body{font-family:sans-serif;margin:24px;}h1{font-size:20px;}table{width:100%;border-collapse:collapse;margin-bottom:16px;}th,td{border:1px solid #ddd;padding:6px;text-align:right;}th{text-align:left;background:#f5f5f5;}section{margin-bottom:24px;} .metric-label{text-align:left;} .excluded{color:#999;}")
	b.WriteString("</style></head><body>")
	b.WriteString(fmt.Sprintf("<h1>Consolidated Emissions %d – %s</h1>", c.ReportingYear, templateEscape(companyName)))
	b.WriteString(fmt.Sprintf("<p>Method: %s | Version: %d | Status: %s | Consolidated: %s</p>",
		templateEscape(string(c.Method)), c.Version, templateEscape(string(c.Status)), c.ConsolidatedAt.UTC().Format("January 2, 2006 15:04")))

	b.WriteString("<section><h2>Group Totals</h2><table><tbody>")
	writeTonnesRow(&b, printer, "Scope 1", c.TotalScope1CO2e)
	writeTonnesRow(&b, printer, "Scope 2", c.TotalScope2CO2e)
	writeTonnesRow(&b, printer, "Scope 3", c.TotalScope3CO2e)
	writeTonnesRow(&b, printer, "Total", c.TotalCO2e)
	writeMetricRow(&b, "Completeness %", c.CompletenessScore)
	writeMetricRow(&b, "Confidence %", c.ConfidenceScore)
	b.WriteString("</tbody></table></section>")

	if len(c.Contributions) > 0 {
		b.WriteString("<section><h2>Entity Contributions</h2><table><thead><tr><th>Entity</th><th>Factor</th><th>Total tCO2e</th><th>Consolidated tCO2e</th><th>Completeness</th><th>Quality</th><th>Status</th></tr></thead><tbody>")
		for _, contrib := range c.Contributions {
			rowClass := ""
			status := "included"
			if !contrib.Included {
				rowClass = " class=\"excluded\""
				status = templateEscape(contrib.ExclusionReason)
			}
			b.WriteString("<tr" + rowClass + "><td class=\"metric-label\">")
			b.WriteString(templateEscape(contrib.EntityName))
			b.WriteString("</td><td>")
			b.WriteString(fmt.Sprintf("%.4f", contrib.Factor))
			b.WriteString("</td><td>")
			b.WriteString(formatTonnes(printer, contrib.OriginalTotalCO2e))
			b.WriteString("</td><td>")
			b.WriteString(formatTonnes(printer, contrib.ConsolidatedTotalCO2e))
			b.WriteString("</td><td>")
			b.WriteString(formatDecimal(contrib.DataCompleteness))
			b.WriteString("</td><td>")
			b.WriteString(formatDecimal(contrib.QualityScore))
			b.WriteString("</td><td class=\"metric-label\">")
			b.WriteString(status)
			b.WriteString("</td></tr>")
		}
		b.WriteString("</tbody></table></section>")
	}

	if c.ApprovedBy != nil {
		b.WriteString("<section><h2>Approval</h2><p>Approved by ")
		b.WriteString(templateEscape(*c.ApprovedBy))
		if c.ApprovedAt != nil {
			b.WriteString(" on " + c.ApprovedAt.UTC().Format("January 2, 2006"))
		}
		if c.ApprovalNotes != "" {
			b.WriteString("<br>" + templateEscape(c.ApprovalNotes))
		}
		b.WriteString("</p></section>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func writeMetricRow(b *strings.Builder, label string, value float64) {
	b.WriteString("<tr><td class=\"metric-label\">")
	b.WriteString(templateEscape(label))
	b.WriteString("</td><td>")
	b.WriteString(formatDecimal(value))
	b.WriteString("</td></tr>")
}

func writeTonnesRow(b *strings.Builder, printer *message.Printer, label string, value *float64) {
	b.WriteString("<tr><td class=\"metric-label\">")
	b.WriteString(templateEscape(label))
	b.WriteString("</td><td>")
	b.WriteString(formatTonnes(printer, value))
	b.WriteString("</td></tr>")
}

func formatTonnes(printer *message.Printer, v *float64) string {
	if v == nil {
		return "not measured"
	}
	return printer.Sprintf("%.2f", *v)
}

func formatDecimal(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatDecimal(*v)
}

func templateEscape(v string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(v)
}
