// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"

	"patient_recommender/internal/app"
	domaintelegram "patient_recommender/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// TelebotAdapter delivers operator reports through a telebot.Bot.
type TelebotAdapter struct {
	bot *telebot.Bot
}

var _ domaintelegram.Notifier = (*TelebotAdapter)(nil)

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// Notify sends text to the chat without link previews.
func (tba *TelebotAdapter) Notify(chatID int64, text string) error {
	recipient := &telebot.Chat{ID: chatID} // The operator talks to the bot in a private chat
	_, err := tba.bot.Send(recipient, text, &telebot.SendOptions{DisableWebPagePreview: true})
	return err
}

// ReportingRunner runs rounds through next and posts every summary to
// the operator chat. Skipped overlapping runs are not reported.
type ReportingRunner struct {
	next   app.RoundRunner
	client domaintelegram.Notifier
	chatID int64
	logger *logrus.Entry
}

var _ app.RoundRunner = (*ReportingRunner)(nil)

func NewReportingRunner(next app.RoundRunner, client domaintelegram.Notifier, chatID int64, logger *logrus.Entry) *ReportingRunner {
	return &ReportingRunner{
		next:   next,
		client: client,
		chatID: chatID,
		logger: logger.WithField("component", "telegram_reporter"),
	}
}

func (r *ReportingRunner) RunRound(ctx context.Context, kind app.RoundKind) (app.RoundResult, error) {
	result, err := r.next.RunRound(ctx, kind)
	if errors.Is(err, app.ErrRoundInProgress) {
		return result, err
	}

	text := FormatRoundResult(result)
	if err != nil && result.Processed == 0 {
		text = fmt.Sprintf("Round %s failed: %s", kind, err.Error())
	}
	if sendErr := r.client.Notify(r.chatID, text); sendErr != nil {
		r.logger.WithError(sendErr).WithField("round", kind).Warn("Failed to report round to operator")
	}
	return result, err
}
