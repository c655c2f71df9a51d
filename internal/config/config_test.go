package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DB_DSN", "postgres://localhost/alerts")
	t.Setenv("RETENTION_MAX_AGE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "push_alerts", cfg.Kafka.Topic)
	assert.Equal(t, "alert-buddy", cfg.Kafka.GroupID)
	assert.Equal(t, ":8080", cfg.API.Port)
	assert.Equal(t, "/api/v0", cfg.API.BasePath)
	assert.Equal(t, 500, cfg.Intake.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Reminder.QueryTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DB_DSN", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_DSN")
}

func TestLoad_MemoryDriverNeedsNoDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DB_DSN", "")
	t.Setenv("RETENTION_MAX_AGE", "0s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, http://localhost:5173,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, time.Duration(0), cfg.Retention.MaxAge)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.API.AllowedOrigins)
}

func TestLoad_Telegram(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "")

	_, err := Load()
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")

	t.Setenv("TELEGRAM_CHAT_ID", "-100200")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TelegramEnabled())
	assert.Equal(t, int64(-100200), cfg.Telegram.ChatID)
	assert.Equal(t, 1, cfg.Telegram.RateLimit)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.ErrorContains(t, err, "unsupported STORE_DRIVER")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REMINDER_QUERY_TIMEOUT", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "REMINDER_QUERY_TIMEOUT")
}

func TestLoad_EmailAndSMS(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("REMINDER_EMAIL_TO", "oncall@example.com")
	t.Setenv("SMTP_SERVER", "")

	_, err := Load()
	assert.ErrorContains(t, err, "SMTP_SERVER")

	t.Setenv("SMTP_SERVER", "smtp.example.com")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("REMINDER_SMS_TO", "+15550100")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.True(t, cfg.SMSEnabled())
	assert.Equal(t, "AC1", cfg.SMS.AccountSID)
}
