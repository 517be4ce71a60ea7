// Package notifications renders monitoring reports and delivers them by
// email. Reports are plain text so they read the same in a terminal, a cron
// mail, and a pager.
package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var reportTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// RenderCycleReport renders the fleet status report for one monitoring
// cycle. The same text is printed by the CLI and mailed on alert.
func RenderCycleReport(report *models.CycleReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplates.ExecuteTemplate(&buf, "cycle_report.tmpl", report); err != nil {
		return "", fmt.Errorf("render cycle report: %w", err)
	}
	return buf.String(), nil
}

type morningSummaryData struct {
	AsOf   time.Time
	Issues []*models.OffHoursIssue
}

// RenderMorningSummary renders the deferred-issue summary delivered when the
// quiet window ends.
func RenderMorningSummary(issues []*models.OffHoursIssue, asOf time.Time) (string, error) {
	var buf bytes.Buffer
	data := morningSummaryData{AsOf: asOf, Issues: issues}
	if err := reportTemplates.ExecuteTemplate(&buf, "morning_summary.tmpl", data); err != nil {
		return "", fmt.Errorf("render morning summary: %w", err)
	}
	return buf.String(), nil
}
