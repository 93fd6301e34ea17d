// internal/domain/notification/shared_types.go
package notification

// Channel is the client surface a notification is delivered to.
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelGame   Channel = "game"
	ChannelWeb    Channel = "web" // Professional portal
)

// Valid reports whether c is one of the known receiver channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelMobile, ChannelGame, ChannelWeb:
		return true
	default:
		return false
	}
}

// Kind identifies the messaging track that produced a notification.
type Kind string

const (
	KindPAR          Kind = "par"
	KindIEQ          Kind = "ieq"
	KindIPAQReminder Kind = "ipaq_reminder" // Weekly questionnaire reminder
	KindGame         Kind = "game"
	KindGoals        Kind = "goals"
	KindMultimodal   Kind = "multimodal"
	KindDeviation    Kind = "deviation"
	KindHydration    Kind = "hydration"
)
