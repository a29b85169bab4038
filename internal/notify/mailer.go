package notify

import (
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
}

// Mailer sends HTML email over SMTP. Without a host it logs instead (dev mode).
type Mailer struct {
	cfg     SMTPConfig
	devMode bool
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger  *zap.Logger
}

// NewMailer creates an SMTP mailer.
func NewMailer(cfg SMTPConfig, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	devMode := cfg.Host == ""
	if devMode {
		logger.Warn("email running in dev mode, messages are logged not sent")
	}
	return &Mailer{cfg: cfg, devMode: devMode, send: smtp.SendMail, logger: logger}
}

// SendHTML delivers one message.
func (m *Mailer) SendHTML(to, subject, htmlBody string) error {
	if m.devMode {
		m.logger.Info("dev email", zap.String("to", to), zap.String("subject", subject), zap.Int("body_bytes", len(htmlBody)))
		return nil
	}
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	}
	headers := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
