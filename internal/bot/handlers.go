package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/holidaybot/internal/service"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.cmdHelp(msg.Chat.ID)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	owner := strconv.FormatInt(chatID, 10)

	// Acknowledge so the client stops the spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Debug().Err(err).Msg("answer callback")
	}

	action, arg, _ := strings.Cut(cb.Data, ":")
	switch action {
	case "cancelled":
		b.sendCancellations(ctx, chatID, owner, service.CancellationQuery{Range: service.CancellationRange(arg)})
	default:
		b.log.Debug().Str("data", cb.Data).Msg("unknown callback")
	}
}
