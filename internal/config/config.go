package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Store struct {
		Driver string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	DB struct {
		DSN string
	}
	API struct {
		Port           string
		BasePath       string
		AllowedOrigins []string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Intake struct {
		QueueSize int
	}
	Reminder struct {
		QueryTimeout time.Duration
	}
	Retention struct {
		MaxAge   time.Duration
		Interval time.Duration
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		To         string
	}
	SMS struct {
		AccountSID string
		AuthToken  string
		FromNumber string
		ToNumber   string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.API.AllowedOrigins = append(cfg.API.AllowedOrigins, trimmed)
		}
	}

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	if qs, err := strconv.Atoi(os.Getenv("INTAKE_QUEUE_SIZE")); err == nil {
		cfg.Intake.QueueSize = qs
	}

	var err error
	if cfg.Reminder.QueryTimeout, err = durationEnv("REMINDER_QUERY_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.Retention.MaxAge, err = durationEnv("RETENTION_MAX_AGE"); err != nil {
		return Config{}, err
	}
	if cfg.Retention.Interval, err = durationEnv("RETENTION_INTERVAL"); err != nil {
		return Config{}, err
	}

	// Telegram reminder sink is optional
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.Telegram.ChatID = chatID
	}
	if rl, err := strconv.Atoi(os.Getenv("TELEGRAM_RATE_LIMIT")); err == nil {
		cfg.Telegram.RateLimit = rl
	}

	// Email and SMS reminder sinks are optional
	cfg.Email.SMTPServer = os.Getenv("SMTP_SERVER")
	if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		cfg.Email.SMTPPort = port
	}
	cfg.Email.Username = os.Getenv("SMTP_USERNAME")
	cfg.Email.Password = os.Getenv("SMTP_PASSWORD")
	cfg.Email.To = os.Getenv("REMINDER_EMAIL_TO")

	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.SMS.ToNumber = os.Getenv("REMINDER_SMS_TO")

	// Validate required settings
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverPostgres
	}
	missing := []string{}
	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Store.Driver)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if cfg.Email.To != "" && cfg.Email.SMTPServer == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if cfg.SMS.ToNumber != "" && cfg.SMS.AccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "push_alerts"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alert-buddy"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Intake.QueueSize == 0 {
		cfg.Intake.QueueSize = 500
	}
	if cfg.Reminder.QueryTimeout == 0 {
		cfg.Reminder.QueryTimeout = 5 * time.Second
	}
	if os.Getenv("RETENTION_MAX_AGE") == "" {
		cfg.Retention.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.Retention.Interval == 0 {
		cfg.Retention.Interval = time.Hour
	}
	if cfg.Telegram.RateLimit == 0 {
		cfg.Telegram.RateLimit = 1
	}
	if cfg.Email.To != "" && cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}

	return cfg, nil
}

// TelegramEnabled reports whether the Telegram reminder sink is configured.
func (c Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

// EmailEnabled reports whether reminders should also be mailed.
func (c Config) EmailEnabled() bool {
	return c.Email.To != ""
}

// SMSEnabled reports whether reminders should also be texted.
func (c Config) SMSEnabled() bool {
	return c.SMS.ToNumber != ""
}

func durationEnv(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
