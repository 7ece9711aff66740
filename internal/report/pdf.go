package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/calderasec/lurelab/internal/database/models"
	"github.com/calderasec/lurelab/internal/metrics"
	"github.com/go-pdf/fpdf"
)

// renderPDF lays out the compliance report. Percentages are rounded here,
// at the presentation boundary, never earlier.
func renderPDF(org *models.Organization, stats *metrics.OrgStats, from, to time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Phishing Awareness Compliance Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 12, "Phishing Awareness Compliance Report")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Organization: %s", org.Name))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04 MST")))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 9, "Summary")
	pdf.Ln(10)

	rows := [][2]string{
		{"Campaigns run", fmt.Sprintf("%d", stats.CampaignCount)},
		{"Employees trained", fmt.Sprintf("%d", stats.EmployeesTrained)},
		{"Simulation emails sent", fmt.Sprintf("%d", stats.SentCount)},
		{"Emails opened", fmt.Sprintf("%d", stats.OpenedCount)},
		{"Links clicked", fmt.Sprintf("%d", stats.ClickedCount)},
		{"Phish reported", fmt.Sprintf("%d", stats.ReportedCount)},
		{"Click rate", fmt.Sprintf("%.2f%%", metrics.Round2(stats.ClickRate))},
		{"Remediation assigned", fmt.Sprintf("%d", stats.RemediationAssigned)},
		{"Remediation assignment rate", fmt.Sprintf("%.2f%%", metrics.Round2(stats.AssignedRate))},
		{"Remediation completed", fmt.Sprintf("%d", stats.RemediationCompleted)},
		{"Remediation completion rate", fmt.Sprintf("%.2f%%", metrics.Round2(stats.RemediationRate))},
		{"Remediation pending", fmt.Sprintf("%.2f%%", metrics.Round2(stats.PendingRate))},
	}

	pdf.SetFont("Helvetica", "", 11)
	for _, row := range rows {
		pdf.CellFormat(90, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, row[1], "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return buf.Bytes(), nil
}
