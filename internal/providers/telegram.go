package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"github.com/MpumeleloMagagula/Alert-Buddy/internal/logging"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/models"
	"github.com/MpumeleloMagagula/Alert-Buddy/internal/utils"
)

const telegramAttempts = 3

// TelegramNotifier mirrors reminders into a Telegram chat.
type TelegramNotifier struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewTelegramNotifier creates the bot client once. ratePerSecond caps sends;
// extra bot options are passed through.
func NewTelegramNotifier(token string, chatID int64, ratePerSecond int, logger *logging.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("missing Telegram bot token")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("missing Telegram chat_id")
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}

	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
	}, nil
}

func (t *TelegramNotifier) Name() string {
	return "telegram"
}

func (t *TelegramNotifier) SendReminder(ctx context.Context, reminder models.Reminder) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   FormatReminder(reminder),
	}
	return utils.Retry(ctx, t.logger, telegramAttempts, time.Second, func() error {
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

// FormatReminder renders a reminder as plain text, busiest channel first.
func FormatReminder(reminder models.Reminder) string {
	var sb strings.Builder
	noun := "alerts"
	if reminder.UnreadCount == 1 {
		noun = "alert"
	}
	fmt.Fprintf(&sb, "%d unread %s", reminder.UnreadCount, noun)

	channels := make([]string, 0, len(reminder.PerChannel))
	for ch := range reminder.PerChannel {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		ci, cj := reminder.PerChannel[channels[i]], reminder.PerChannel[channels[j]]
		if ci != cj {
			return ci > cj
		}
		return channels[i] < channels[j]
	})
	for _, ch := range channels {
		fmt.Fprintf(&sb, "\n%s: %d", ch, reminder.PerChannel[ch])
	}

	if !reminder.IssuedAt.IsZero() {
		fmt.Fprintf(&sb, "\n\n%s", reminder.IssuedAt.UTC().Format(time.RFC3339))
	}
	return sb.String()
}
