package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/holidaybot/internal/service"
)

func cancellationRangeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Next 30 days", "cancelled:"+string(service.RangeUpcoming)),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Next week", "cancelled:"+string(service.RangeNextWeek)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📚 All", "cancelled:"+string(service.RangeAll)),
		),
	)
}
