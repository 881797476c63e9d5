package slaybot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Discord owns the gateway session and everything that talks to the
// Discord API on behalf of the bot.
type Discord struct {
	config  *DiscordConfig
	session DiscordSessionHandler
	logger  *slog.Logger
}

func newDiscord(config *DiscordConfig, logger *slog.Logger) (*Discord, error) {
	if config == nil {
		return nil, errors.New("nil discord config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Discord{
		config: config,
		logger: logger.With(loggerNameKey, "discord"),
	}

	session, err := discordgo.New(fmt.Sprintf("Bot %s", config.Token))
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.LogLevel = discordGoLogLevel(config.DiscordGoLogLevel.Level())
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		d.logger.Handler(),
	)
	if config.httpClient != nil {
		session.Client = config.httpClient
	}
	session.Identify.Intents = config.GatewayIntents
	session.StateEnabled = true
	session.SyncEvents = false
	d.session = &DiscordSession{s: session}
	return d, nil
}

// setCustomStatus sets the bot's activity ("playing with 🦑" by default).
func (d *Discord) setCustomStatus(status string) {
	if status == "" {
		return
	}
	if err := d.session.UpdateGameStatus(0, status); err != nil {
		d.logger.Warn("unable to set custom status", tint.Err(err))
	}
}

// announceStartup sends the startup message to the notification channel,
// if one is configured.
func (d *Discord) announceStartup() {
	channelID := d.config.NotificationChannelID
	if channelID == "" || d.config.StartupMessage == "" {
		return
	}
	_, err := d.session.ChannelMessageSend(channelID, d.config.StartupMessage)
	if err != nil {
		d.logger.Warn(
			"unable to send startup notification",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
}

// DiscordSessionHandler covers the slice of [discordgo.Session] the bot
// uses, so tests can substitute a stub session.
type DiscordSessionHandler interface {
	Open() error
	Close() error
	AddHandler(any) func()
	UpdateGameStatus(idle int, name string) error

	ChannelMessage(channelID string, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID string, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagePin(channelID string, messageID string, options ...discordgo.RequestOption) error

	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// DiscordSession is the production [DiscordSessionHandler], delegating
// straight to [discordgo.Session].
type DiscordSession struct {
	s *discordgo.Session
}

func (d *DiscordSession) Open() error {
	return d.s.Open()
}

func (d *DiscordSession) Close() error {
	return d.s.Close()
}

func (d *DiscordSession) AddHandler(handler any) func() {
	return d.s.AddHandler(handler)
}

func (d *DiscordSession) UpdateGameStatus(idle int, name string) error {
	return d.s.UpdateGameStatus(idle, name)
}

func (d *DiscordSession) ChannelMessage(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.s.ChannelMessage(channelID, messageID, options...)
}

func (d *DiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.s.ChannelMessageSend(channelID, content, options...)
}

func (d *DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.s.ChannelMessageSendComplex(channelID, data, options...)
}

func (d *DiscordSession) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.s.ChannelMessageEditComplex(m, options...)
}

func (d *DiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) error {
	return d.s.ChannelMessageDelete(channelID, messageID, options...)
}

func (d *DiscordSession) ChannelMessagePin(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) error {
	return d.s.ChannelMessagePin(channelID, messageID, options...)
}

func (d *DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.s.InteractionRespond(interaction, resp, options...)
}

func (d *DiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.s.InteractionResponseEdit(interaction, newresp, options...)
}

func (d *DiscordSession) InteractionResponseDelete(
	interaction *discordgo.Interaction,
	options ...discordgo.RequestOption,
) error {
	return d.s.InteractionResponseDelete(interaction, options...)
}

func (d *DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return d.s.ApplicationCommandBulkOverwrite(appID, guildID, commands, options...)
}

// Error classification for Discord REST failures. Handlers branch on
// these rather than on raw status codes: a vanished message is a state
// transition (deactivate the counter), a permission failure is operator
// guidance, a rate limit or outage is retry-later, and anything else is
// a hard error.

// discordErrNotFound reports whether err means the target entity
// (message, channel) no longer exists.
func discordErrNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// discordErrForbidden reports whether err means the bot lacks permission
// for the attempted operation.
func discordErrForbidden(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusForbidden
	}
	return false
}

// discordErrTransient reports whether err is plausibly recoverable on
// retry: a rate limit or a 5xx from Discord.
func discordErrTransient(err error) bool {
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	return false
}

// discordGoLogLevel maps a slog level to discordgo's integer log levels.
func discordGoLogLevel(level slog.Level) int {
	switch {
	case level <= slog.LevelDebug:
		return discordgo.LogDebug
	case level <= slog.LevelInfo:
		return discordgo.LogInformational
	case level <= slog.LevelWarn:
		return discordgo.LogWarning
	default:
		return discordgo.LogError
	}
}
