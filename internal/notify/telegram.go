package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/spigell/freelance-pipeline/internal/jobs"
	"github.com/spigell/freelance-pipeline/internal/utils"
)

// Telegram rejects messages longer than this.
const maxMessageRunes = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts the digest to a chat, one message per job after a header.
type Telegram struct {
	bot    sender
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return KindTelegram }

func (t *Telegram) Notify(ctx context.Context, d Digest) error {
	messages := append([]string{fmt.Sprintf("<b>%s</b>", html.EscapeString(d.Subject()))}, formatJobs(d.Jobs)...)

	for _, text := range messages {
		if err := ctx.Err(); err != nil {
			return &Error{Notifier: t.Name(), Cause: err}
		}
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			return &Error{Notifier: t.Name(), Cause: err}
		}
	}
	return nil
}

func formatJobs(items []*jobs.Job) []string {
	out := make([]string, 0, len(items))
	for i, job := range items {
		head := fmt.Sprintf("<b>%d. %s</b>\nScore: %d | Budget: %s | Source: %s\n<a href=\"%s\">Open job</a>\n\n",
			i+1,
			html.EscapeString(job.Title),
			job.Score,
			html.EscapeString(job.Budget),
			html.EscapeString(job.Source),
			html.EscapeString(job.URL),
		)
		room := maxMessageRunes - utf8.RuneCountInString(head) - len("<pre></pre>")
		out = append(out, head+"<pre>"+escapedWithin(job.Proposal, room)+"</pre>")
	}
	return out
}

// escapedWithin shortens s until its escaped form fits in room runes.
func escapedWithin(s string, room int) string {
	limit := room
	for limit > 0 {
		escaped := html.EscapeString(utils.TruncateForLog(s, limit))
		n := utf8.RuneCountInString(escaped)
		if n <= room {
			return escaped
		}
		next := limit * room / n
		if next >= limit {
			next = limit - 1
		}
		limit = next
	}
	return ""
}
