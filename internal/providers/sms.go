package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/utils"
)

const (
	twilioBaseURL = "https://api.twilio.com"
	smsAttempts   = 3
	// SMS bodies are cut to a single concatenated message.
	smsMaxBody = 320
)

// SMSConfig holds Twilio credentials and the on-call phone number.
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
	// BaseURL overrides the Twilio API host; empty uses the public API.
	BaseURL string
}

// SMSNotifier texts reminders through the Twilio Messages API.
type SMSNotifier struct {
	cfg    SMSConfig
	client *http.Client
	logger *logging.Logger
}

func NewSMSNotifier(cfg SMSConfig, logger *logging.Logger) (*SMSNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, fmt.Errorf("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}
	if cfg.ToNumber == "" {
		return nil, fmt.Errorf("missing SMS recipient")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioBaseURL
	}
	return &SMSNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}, nil
}

func (s *SMSNotifier) Name() string {
	return "sms"
}

func (s *SMSNotifier) SendReminder(ctx context.Context, reminder models.Reminder) error {
	body := FormatReminder(reminder)
	if len(body) > smsMaxBody {
		body = body[:smsMaxBody]
	}
	return utils.Retry(ctx, s.logger, smsAttempts, time.Second, func() error {
		return s.send(ctx, body)
	})
}

func (s *SMSNotifier) send(ctx context.Context, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.AccountSID)
	form := url.Values{}
	form.Set("To", s.cfg.ToNumber)
	form.Set("From", s.cfg.FromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create SMS request for %s: %w", s.cfg.ToNumber, err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", s.cfg.ToNumber, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("Twilio API returned status %d for %s", resp.StatusCode, s.cfg.ToNumber)
	}
	return nil
}
