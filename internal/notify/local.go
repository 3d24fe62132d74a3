package notify

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/model"
)

// Importance ranks a notification channel.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceHigh
	ImportanceMax
)

// Channel is a local notification channel.
type Channel struct {
	ID         string
	Name       string
	Importance Importance
	LightColor string
}

// DefaultChannels are configured once at startup.
var DefaultChannels = []Channel{
	{ID: model.ChannelDefault, Name: "default", Importance: ImportanceMax, LightColor: "#1D2E5C"},
	{ID: model.ChannelHighPriority, Name: "High Priority", Importance: ImportanceHigh, LightColor: "#FF0000"},
}

// LocalNotifier is the platform notification surface.
type LocalNotifier interface {
	// Configure sets up the channels. It is called once.
	Configure(ctx context.Context, channels []Channel) error

	// Schedule raises n immediately.
	Schedule(ctx context.Context, n model.LocalNotification) error
}

// channelFor picks the channel from the priority carried by the original
// payload.
func channelFor(p model.CanonicalPayload) string {
	if p.OriginalPayload == nil {
		return model.ChannelDefault
	}
	priority, _ := p.OriginalPayload["priority"].(string)
	switch strings.ToLower(priority) {
	case "high", "urgent", "critical":
		return model.ChannelHighPriority
	default:
		return model.ChannelDefault
	}
}

// NewLocalNotification builds the immediate local notification for
// notification id.
func NewLocalNotification(id int64, p model.CanonicalPayload) model.LocalNotification {
	return model.LocalNotification{
		Identifier: uuid.NewString(),
		Title:      p.Title,
		Body:       p.Body,
		Channel:    channelFor(p),
		Sound:      true,
		Data: model.NotificationData{
			ID:           id,
			RedirectURL:  p.RedirectURL,
			TemplateCode: p.TemplateCode,
		},
	}
}

// LogNotifier writes local notifications to the log. It serves platforms
// without a notification surface.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "local_notifier").Logger()}
}

func (n *LogNotifier) Configure(_ context.Context, channels []Channel) error {
	for _, ch := range channels {
		n.log.Debug().Str("channel", ch.ID).Int("importance", int(ch.Importance)).Msg("channel configured")
	}
	return nil
}

func (n *LogNotifier) Schedule(_ context.Context, ln model.LocalNotification) error {
	n.log.Info().
		Str("identifier", ln.Identifier).
		Str("channel", ln.Channel).
		Int64("notification_id", ln.Data.ID).
		Str("redirect_url", ln.Data.RedirectURL).
		Str("template_code", ln.Data.TemplateCode).
		Msg(ln.Title)
	return nil
}
