package slaybot

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// InteractionLog records each incoming discord interaction as received,
// before any handling. Rows are written fire-and-forget; a failed insert
// is logged and otherwise ignored.
type InteractionLog struct {
	ModelUintID
	ModelUnixTime

	// InteractionID is the discord snowflake ID of the interaction
	InteractionID string `gorm:"index" json:"interaction_id"`

	// Type is the interaction type (application command, message component)
	Type string `json:"type"`

	// Name is the command name or component custom ID
	Name string `json:"name"`

	// GuildID is the guild the interaction came from, if any
	GuildID string `gorm:"index" json:"guild_id"`

	// ChannelID is the channel the interaction came from
	ChannelID string `json:"channel_id"`

	// UserID is the discord user that triggered the interaction
	UserID string `gorm:"index" json:"user_id"`

	// Username is the discord username at the time of the interaction
	Username string `json:"username"`

	// Payload is the raw interaction data, JSON-encoded
	Payload string `json:"payload"`
}

func (InteractionLog) TableName() string {
	return "interaction_logs"
}

func (i InteractionLog) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("interaction_id", i.InteractionID),
		slog.String("type", i.Type),
		slog.String("name", i.Name),
		slog.String("guild_id", i.GuildID),
		slog.String("user_id", i.UserID),
		slog.String("username", i.Username),
	)
}

// newInteractionLog builds an InteractionLog row from an incoming event.
func newInteractionLog(i *discordgo.InteractionCreate) *InteractionLog {
	entry := &InteractionLog{
		InteractionID: i.ID,
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		entry.Type = "application_command"
		entry.Name = i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		entry.Type = "message_component"
		entry.Name = i.MessageComponentData().CustomID
	default:
		entry.Type = i.Type.String()
	}

	if u := getDiscordUser(i); u != nil {
		entry.UserID = u.ID
		entry.Username = u.Username
	}

	payload, err := json.Marshal(i.Interaction)
	if err == nil {
		entry.Payload = string(payload)
	}
	return entry
}

// logInteraction persists the interaction record, logging (but not
// propagating) any failure.
func (b *SlayBot) logInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	entry := newInteractionLog(i)
	if _, err := b.db.Create(ctx, entry); err != nil {
		b.logger.ErrorContext(
			ctx,
			"unable to record interaction",
			tint.Err(err),
			"interaction_log", entry,
		)
	}
}
