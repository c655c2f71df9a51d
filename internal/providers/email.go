package providers

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/utils"
)

const emailAttempts = 2

// EmailConfig holds SMTP credentials and the on-call mailbox.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	Username   string
	Password   string
	To         string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails reminders to a single on-call address.
type EmailNotifier struct {
	cfg      EmailConfig
	auth     smtp.Auth
	sendMail sendMailFunc
	logger   *logging.Logger
}

func NewEmailNotifier(cfg EmailConfig, logger *logging.Logger) (*EmailNotifier, error) {
	if cfg.SMTPServer == "" || cfg.SMTPPort == 0 || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if cfg.To == "" {
		return nil, fmt.Errorf("missing Email recipient")
	}
	return &EmailNotifier{
		cfg:      cfg,
		auth:     smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPServer),
		sendMail: smtp.SendMail,
		logger:   logger,
	}, nil
}

func (e *EmailNotifier) Name() string {
	return "email"
}

func (e *EmailNotifier) SendReminder(ctx context.Context, reminder models.Reminder) error {
	msg := buildEmail(e.cfg.Username, e.cfg.To, reminder)
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	return utils.Retry(ctx, e.logger, emailAttempts, 2*time.Second, func() error {
		if err := e.sendMail(addr, e.auth, e.cfg.Username, []string{e.cfg.To}, msg); err != nil {
			return fmt.Errorf("failed to send email to %s: %w", e.cfg.To, err)
		}
		return nil
	})
}

func buildEmail(from, to string, reminder models.Reminder) []byte {
	noun := "alerts"
	if reminder.UnreadCount == 1 {
		noun = "alert"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: [Alert Buddy] %d unread %s\r\n", reminder.UnreadCount, noun)
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	sb.WriteString(strings.ReplaceAll(FormatReminder(reminder), "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
