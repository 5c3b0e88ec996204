package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/service"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	owner := strconv.FormatInt(chatID, 10)
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.cmdStart(chatID)
	case "help":
		b.cmdHelp(chatID)
	case "upcoming":
		b.cmdUpcoming(ctx, chatID, owner)
	case "cancelled":
		b.cmdCancelled(ctx, chatID, owner, args)
	case "subjects":
		b.cmdSubjects(ctx, chatID, owner)
	default:
		b.SendMessage(chatID, "Unknown command. /help lists what I can do")
	}
}

func (b *Bot) cmdStart(chatID int64) {
	text := fmt.Sprintf("👋 Hi! Reminders for your holidays and cancelled classes will arrive here.\n\nYour owner id: %d", chatID)
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdHelp(chatID int64) {
	text := strings.Join([]string{
		"/upcoming: holidays and cancellations for the next 30 days",
		"/cancelled: cancelled classes (add a subject code to filter)",
		"/subjects: your timetable",
	}, "\n")
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdUpcoming(ctx context.Context, chatID int64, owner string) {
	loc := b.exceptions.Location()
	today := time.Now().In(loc)
	from := today.Format("2006-01-02")
	to := today.AddDate(0, 0, 30).Format("2006-01-02")

	items, err := b.exceptions.List(ctx, owner, from, to)
	if err != nil {
		b.log.Error().Err(err).Str("owner", owner).Msg("list upcoming")
		b.SendMessage(chatID, "❌ Could not load your calendar")
		return
	}
	if len(items) == 0 {
		b.SendMessage(chatID, "Nothing planned for the next 30 days 🎉")
		return
	}
	b.SendMessage(chatID, "🗓 Next 30 days\n\n"+formatExceptions(items))
}

func (b *Bot) cmdCancelled(ctx context.Context, chatID int64, owner, subject string) {
	if subject == "" {
		b.SendMessageWithKeyboard(chatID, "Which cancellations?", cancellationRangeKeyboard())
		return
	}
	b.sendCancellations(ctx, chatID, owner, service.CancellationQuery{Subject: subject, Range: service.RangeUpcoming})
}

func (b *Bot) sendCancellations(ctx context.Context, chatID int64, owner string, q service.CancellationQuery) {
	res, err := b.exceptions.ListCancellations(ctx, owner, q)
	if err != nil {
		b.log.Error().Err(err).Str("owner", owner).Msg("list cancellations")
		b.SendMessage(chatID, "❌ Could not load cancellations")
		return
	}
	if len(res.Items) == 0 {
		b.SendMessage(chatID, "No cancelled classes 🎉")
		return
	}

	var sb strings.Builder
	sb.WriteString("🚫 Cancelled classes\n\n")
	for _, it := range res.Items {
		line := "• " + it.StartAt.Format("Mon 02/01") + " " + it.DisplayTitle()
		if it.SubjectRef != nil {
			if name := res.Subjects[strings.ToUpper(*it.SubjectRef)]; name != "" && !strings.Contains(it.DisplayTitle(), name) {
				line += " (" + name + ")"
			}
		}
		sb.WriteString(line + "\n")
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdSubjects(ctx context.Context, chatID int64, owner string) {
	subjects, err := b.subjects.List(ctx, owner)
	if err != nil {
		b.log.Error().Err(err).Str("owner", owner).Msg("list subjects")
		b.SendMessage(chatID, "❌ Could not load your timetable")
		return
	}
	if len(subjects) == 0 {
		b.SendMessage(chatID, "No subjects imported yet")
		return
	}

	var sb strings.Builder
	sb.WriteString("📚 Timetable\n\n")
	for _, s := range subjects {
		fmt.Fprintf(&sb, "• %s %s-%s %s", s.Day, s.StartTime, s.EndTime, s.Title())
		if s.Room != "" {
			sb.WriteString(" @ " + s.Room)
		}
		sb.WriteString("\n")
	}
	b.SendMessage(chatID, sb.String())
}

func formatExceptions(items []*domain.Exception) string {
	var sb strings.Builder
	for _, e := range items {
		when := e.StartAt.Format("Mon 02/01")
		if !e.AllDay() {
			when += " " + e.StartAt.Format("15:04")
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", when, e.KindLabel(), e.DisplayTitle())
	}
	return sb.String()
}
