package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/tazhate/holidaybot/config"
	"github.com/tazhate/holidaybot/internal/service"
)

// Bot is the Telegram delivery gateway. Owners are identified by their chat
// id, so a reminder for owner "12345" goes to chat 12345.
type Bot struct {
	api        *tgbotapi.BotAPI
	sender     *tgbotapi.BotAPI
	exceptions *service.ExceptionService
	subjects   *service.SubjectService
	log        zerolog.Logger
}

func New(cfg *config.Config, exceptions *service.ExceptionService, subjects *service.SubjectService, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := NewWithAPI(api, exceptions, subjects, log)
	if cfg.DeliveryTimeout > 0 {
		b.SetSendTimeout(cfg.DeliveryTimeout)
	}
	return b, nil
}

// NewWithAPI wraps an already authorized API handle.
func NewWithAPI(api *tgbotapi.BotAPI, exceptions *service.ExceptionService, subjects *service.SubjectService, log zerolog.Logger) *Bot {
	b := &Bot{
		api:        api,
		exceptions: exceptions,
		subjects:   subjects,
		log:        log.With().Str("component", "telegram").Logger(),
	}
	b.SetSendTimeout(config.DefaultDeliveryTimeout)
	b.log.Info().Str("username", api.Self.UserName).Msg("authorized")
	return b
}

// SetSendTimeout bounds every outgoing message. Long polling keeps the
// original client, whose requests outlive any delivery timeout.
func (b *Bot) SetSendTimeout(d time.Duration) {
	sender := *b.api
	sender.Client = &http.Client{Timeout: d}
	b.sender = &sender
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "upcoming", Description: "🏝️ Holidays and cancellations, next 30 days"},
		{Command: "cancelled", Description: "🚫 Cancelled classes"},
		{Command: "subjects", Description: "📚 My timetable"},
		{Command: "help", Description: "❓ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Warn().Err(err).Msg("set commands")
	}
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	b.setCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.log.Info().Msg("polling for updates")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// Push implements the dispatcher gateway. The send runs on the bounded
// client, so a timeout means the request was abandoned, not that Telegram
// rejected it.
func (b *Bot) Push(ctx context.Context, to string, text string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("owner %q is not a telegram chat id", to)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.SendMessage(chatID, text)
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.sender.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	_, err := b.sender.Send(msg)
	return err
}
