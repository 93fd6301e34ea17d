// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// HelpText lists the operator commands.
func HelpText() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	fmt.Fprintf(&helpText, "`/run_round [%s]`\n - Run one round now. Without an argument shows a menu.\n\n", joinKinds("|"))
	helpText.WriteString("`/sync`\n - Synchronize the patient roster with the registry.\n\n")
	helpText.WriteString("`/patients [active|all]`\n - List patients with their cycle day. Active by default.\n\n")
	helpText.WriteString("`/reenroll <reference>`\n - Restart a patient's cycle at day 0.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}

func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if senderID == adminTelegramID {
			logCtx.Info("User identified as Admin")
			return c.Send(fmt.Sprintf("Hello, %s! The recommender console is ready. Use /help for the command list.", c.Sender().FirstName))
		}
		logCtx.Info("User is unknown")
		return c.Send("This bot is the operator console of the patient recommender. It has no commands for you.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if senderID == adminTelegramID {
			return c.Send(HelpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		}
		return c.Send("No commands are available for you.")
	})
}
