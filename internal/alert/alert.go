// Package alert sends critical-failure email notifications to client
// contacts. Commissioning exhaustion is its only caller today.
package alert

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"
)

// Severity tags an alert for the subject line.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Mailer sends alert emails over SMTP. When no SMTP server is configured the
// alert is logged instead of sent, so development setups never swallow the
// event silently.
type Mailer struct {
	logger   *log.Logger
	server   string
	port     int
	username string
	password string
	from     string
}

// NewMailer creates a Mailer from SMTP settings.
func NewMailer(server string, port int, username, password, from string, logger *log.Logger) *Mailer {
	if logger == nil {
		logger = log.Default()
	}
	return &Mailer{
		logger:   logger,
		server:   server,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers one alert to the recipients.
func (m *Mailer) Send(recipients []string, subject, body string, severity Severity) error {
	if len(recipients) == 0 {
		return fmt.Errorf("alert has no recipients")
	}
	tagged := fmt.Sprintf("[%s] %s", strings.ToUpper(string(severity)), subject)

	if m.server == "" {
		m.logger.Printf("ALERT %s to %s: %s", tagged, strings.Join(recipients, ", "), body)
		return nil
	}

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + tagged,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.server, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.server)
	}
	if err := smtp.SendMail(addr, auth, m.from, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

// SendCommissionFailure composes and sends the terminal commissioning alert.
func (m *Mailer) SendCommissionFailure(contactEmail, assetExternalID, errMsg string) error {
	subject := fmt.Sprintf("EXEDRA Integration Failure - Asset %s", assetExternalID)
	body := fmt.Sprintf(`EXEDRA operation failed for asset %s.

Operation: schedule_commission
Time: %s
Error: %s

Please check your EXEDRA system and contact support if the issue persists.`,
		assetExternalID, time.Now().UTC().Format(time.RFC3339), errMsg)

	return m.Send([]string{contactEmail}, subject, body, SeverityHigh)
}
