package client

import (
	"fmt"
	"net/smtp"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var emailRe = regexp.MustCompile(`^[^@\s\r\n]+@[^@\s\r\n]+\.[^@\s\r\n]+$`)

// MailerConfig configures the SMTP mailer. An empty Host disables delivery.
type MailerConfig struct {
	Host     string
	Port     int
	Sender   string
	Username string
	Password string
	StartTLS bool
}

// Mailer delivers notification events over SMTP. Delivery is best effort; the
// engine records the notification regardless and audits the dispatch outcome.
type Mailer struct {
	cfg MailerConfig
	log zerolog.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a Mailer.
func NewMailer(cfg MailerConfig, log zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log, send: smtp.SendMail}
}

// Enabled reports whether SMTP delivery is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendEvent delivers one event email to recipient. Returns (false, nil) when
// delivery is disabled or the recipient is not a valid address.
func (m *Mailer) SendEvent(recipient, event string, payload map[string]any) (bool, error) {
	if !m.Enabled() {
		return false, nil
	}
	if !emailRe.MatchString(recipient) {
		m.log.Warn().Str("recipient", recipient).Msg("mailer: invalid recipient skipped")
		return false, nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", m.cfg.Sender)
	fmt.Fprintf(&body, "To: %s\r\n", recipient)
	fmt.Fprintf(&body, "Subject: [Contract Review] %s\r\n", event)
	body.WriteString("\r\n")
	fmt.Fprintf(&body, "Event: %s\r\n\r\nPayload:\r\n", event)
	for k, v := range payload {
		fmt.Fprintf(&body, "%s: %v\r\n", k, v)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.Sender, []string{recipient}, []byte(body.String())); err != nil {
		return false, err
	}
	return true, nil
}
