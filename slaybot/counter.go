package slaybot

import (
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Column names as they appear in the counters table, for use in
// explicit update/conflict clauses.
const (
	columnCounterGuildID   = "guild_id"
	columnCounterMessageID = "message_id"
	columnCounterCount     = "count"
	columnCounterActive    = "active"
)

const countEmbedColor = 0x5865f2

// Counter is a per-guild persistent count. Each guild has at most one
// row, keyed by the Discord guild (server) snowflake. MessageID points at
// the display message carrying the increment/decrement buttons; when that
// message disappears from Discord, the row is flagged inactive rather
// than deleted, so the count survives a re-initialize.
type Counter struct {
	ModelUnixTime

	// GuildID is the Discord snowflake ID of the guild this count belongs to
	GuildID string `gorm:"primaryKey" json:"guild_id"`

	// MessageID is the Discord snowflake ID of the display message
	MessageID string `gorm:"not null" json:"message_id"`

	// Count is the current value
	Count int64 `gorm:"not null" json:"count"`

	// Active indicates whether the display message is believed to still
	// exist. Inactive rows keep their count but receive no button events.
	Active bool `gorm:"not null" json:"active"`
}

func (Counter) TableName() string {
	return "counters"
}

func (c Counter) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("guild_id", c.GuildID),
		slog.String("message_id", c.MessageID),
		slog.Int64("count", c.Count),
		slog.Bool("active", c.Active),
	)
}

// newCountEmbed renders a count for display. The embed always shows the
// exact decimal value, including sign for negative counts.
func newCountEmbed(count int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Current count",
		Color: countEmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Value",
				Value:  strconv.FormatInt(count, 10),
				Inline: true,
			},
		},
	}
}
