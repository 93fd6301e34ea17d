package telegram

// Notifier posts plain-text reports into an operator chat. Round
// summaries from scheduled runs go through it.
type Notifier interface {
	Notify(chatID int64, text string) error
}
