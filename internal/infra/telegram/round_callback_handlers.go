package telegram

import (
	"context"
	"fmt"
	"strings"

	"patient_recommender/internal/app"

	"gopkg.in/telebot.v3"
)

const roundCallbackPrefix = "round_"

// roundMenu offers one inline button per round kind.
func roundMenu() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for _, kind := range app.RoundKinds() {
		rows = append(rows, markup.Row(markup.Data(string(kind), roundCallbackPrefix+string(kind))))
	}
	markup.Inline(rows...)
	return markup
}

// roundFromCallback extracts the round name from callback data such as
// "round_par". telebot may prefix data with "\f<unique>|".
func roundFromCallback(data string) (string, bool) {
	data = strings.TrimPrefix(data, "\f")
	if i := strings.LastIndex(data, "|"); i >= 0 {
		data = data[i+1:]
	}
	name, ok := strings.CutPrefix(data, roundCallbackPrefix)
	return name, ok && name != ""
}

func RegisterRoundCallbackHandlers(ctx context.Context, b *telebot.Bot, console *AdminConsole) {
	b.Handle(telebot.OnCallback, func(c telebot.Context) error {
		data := c.Callback().Data
		name, ok := roundFromCallback(data)
		if !ok {
			c.Bot().OnError(fmt.Errorf("unhandled callback data by round handler: %s", data), c)
			return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
		}
		if err := c.Respond(&telebot.CallbackResponse{Text: "Running " + name + "..."}); err != nil {
			console.logger.WithError(err).Warn("Failed to acknowledge callback")
		}
		return c.Send(console.RunRound(ctx, c.Sender().ID, []string{name}))
	})
}
