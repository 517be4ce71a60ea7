package notifications

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// Sender delivers monitoring alerts. The cycle runner and the morning flush
// depend on this interface so tests can capture alerts without a mail relay.
type Sender interface {
	// SendCycleAlert delivers the report for a cycle that found problems.
	SendCycleAlert(report *models.CycleReport) error
	// SendMorningSummary delivers the deferred off-hours issue list.
	SendMorningSummary(issues []*models.OffHoursIssue, asOf time.Time) error
}

// NoopSender drops alerts. It stands in for the email service when SMTP is
// disabled so the monitoring loop never branches on delivery config.
type NoopSender struct {
	logger zerolog.Logger
}

// NewNoopSender creates a sender that only logs.
func NewNoopSender(logger zerolog.Logger) *NoopSender {
	return &NoopSender{logger: logger.With().Str("component", "email").Logger()}
}

// SendCycleAlert logs and drops the alert.
func (s *NoopSender) SendCycleAlert(report *models.CycleReport) error {
	s.logger.Debug().
		Int("with_issues", report.WithIssues()).
		Msg("smtp disabled, dropping cycle alert")
	return nil
}

// SendMorningSummary logs and drops the summary.
func (s *NoopSender) SendMorningSummary(issues []*models.OffHoursIssue, asOf time.Time) error {
	s.logger.Debug().
		Int("issues", len(issues)).
		Msg("smtp disabled, dropping morning summary")
	return nil
}

// NewSender returns the email service when SMTP is enabled, otherwise a
// NoopSender.
func NewSender(config SMTPConfig, logger zerolog.Logger) (Sender, error) {
	if !config.Enabled {
		return NewNoopSender(logger), nil
	}
	return NewEmailService(config, logger)
}
