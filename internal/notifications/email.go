package notifications

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// SMTPConfig holds the mail relay settings for alert delivery.
type SMTPConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host,omitempty"`
	Port     int      `yaml:"port,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
	From     string   `yaml:"from,omitempty"`
	To       []string `yaml:"to,omitempty"`
	TLS      bool     `yaml:"tls,omitempty"`
}

// Validate checks the relay settings. A disabled config is always valid.
func (c SMTPConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("smtp port %d is out of range", c.Port)
	}
	if c.From == "" {
		return fmt.Errorf("smtp from address is required")
	}
	if len(c.To) == 0 {
		return fmt.Errorf("at least one smtp recipient is required")
	}
	return nil
}

// EmailService sends monitoring alerts through an SMTP relay.
type EmailService struct {
	config SMTPConfig
	logger zerolog.Logger
}

// NewEmailService creates an email service after validating the relay
// settings.
func NewEmailService(config SMTPConfig, logger zerolog.Logger) (*EmailService, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid smtp config: %w", err)
	}

	return &EmailService{
		config: config,
		logger: logger.With().Str("component", "email").Logger(),
	}, nil
}

// SendCycleAlert mails the cycle report when a monitoring cycle found
// problems.
func (s *EmailService) SendCycleAlert(report *models.CycleReport) error {
	body, err := RenderCycleReport(report)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("NAS Mount Issues on %d Workstation(s)", report.WithIssues())
	return s.send(subject, body)
}

// SendMorningSummary mails the deferred off-hours issues at the end of the
// quiet window.
func (s *EmailService) SendMorningSummary(issues []*models.OffHoursIssue, asOf time.Time) error {
	body, err := RenderMorningSummary(issues, asOf)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Off-Hours NAS Issues: %d Pending", len(issues))
	return s.send(subject, body)
}

func (s *EmailService) send(subject, body string) error {
	s.logger.Debug().
		Strs("to", s.config.To).
		Str("subject", subject).
		Msg("sending email")

	msg := s.buildMessage(subject, body)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var err error
	if s.config.TLS {
		err = s.sendTLS(addr, msg)
	} else {
		err = s.sendPlain(addr, msg)
	}

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("subject", subject).
			Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info().
		Strs("to", s.config.To).
		Str("subject", subject).
		Msg("email sent")

	return nil
}

// buildMessage constructs the plain-text email with headers.
func (s *EmailService) buildMessage(subject, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", s.config.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(s.config.To, ", ")))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// sendPlain sends without TLS, for port 25 relays on trusted networks.
func (s *EmailService) sendPlain(addr string, msg []byte) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	return smtp.SendMail(addr, auth, s.config.From, s.config.To, msg)
}

// sendTLS sends over an implicit TLS connection (port 465 style).
func (s *EmailService) sendTLS(addr string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("tls dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer client.Close()

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}

	for _, recipient := range s.config.To {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("smtp rcpt to %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err = w.Close(); err != nil {
		return fmt.Errorf("close message writer: %w", err)
	}

	return client.Quit()
}
