package slaybot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	commandInitCounter = "init_counter"

	optionInitialValue = "initial_value"

	// customIDCounterPrefix starts every increment/decrement button's
	// custom ID. The full form is "counter:<guild_id>:<incr|decr>", so a
	// button press carries everything needed to route it, even for
	// messages created before the last restart.
	customIDCounterPrefix = "counter"
	counterDirectionIncr  = "incr"
	counterDirectionDecr  = "decr"
)

// User-facing notices for the counter flows. Kept short: all of these are
// sent as ephemeral messages to the acting user.
const (
	noticeGuildOnly      = "This command only works in a server."
	noticeMessageGone    = "The counter message no longer exists. Run `/init_counter` to create a new one."
	noticeForbidden      = "I don't have permission to touch the counter message anymore. Run `/init_counter` once that's fixed."
	noticeTransient      = "Discord is having a moment. Try again in a bit."
	noticeUnexpected     = "Something went wrong on my end."
	noticeNotInitialized = "No counter here yet. Run `/init_counter` to create one."
	noticePromptExpired  = "That prompt is no longer active."
	noticeNotYourPrompt  = "Only the person who ran the command can answer this."
)

// counterControl is an in-memory binding of a guild to the message its
// increment/decrement buttons live on. Bindings are created on
// initialize and rebuilt from the store at startup, so buttons rendered
// before a restart keep working.
type counterControl struct {
	GuildID   string
	MessageID string
}

// CountTracker owns the per-guild counter feature: the /init_counter
// command, the increment/decrement buttons, and the override
// confirmation prompts. It is the only writer of counter rows.
type CountTracker struct {
	db             DBI
	session        DiscordSessionHandler
	logger         *slog.Logger
	confirmTimeout time.Duration

	mu       sync.RWMutex
	controls map[string]counterControl
	prompts  map[string]*confirmPrompt
}

func newCountTracker(
	db DBI,
	session DiscordSessionHandler,
	logger *slog.Logger,
	confirmTimeout time.Duration,
) *CountTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &CountTracker{
		db:             db,
		session:        session,
		logger:         logger.With(loggerNameKey, "count_tracker"),
		confirmTimeout: confirmTimeout,
		controls:       map[string]counterControl{},
		prompts:        map[string]*confirmPrompt{},
	}
}

// restoreActiveControls rebuilds the guild->message control bindings from
// every active counter row. Called once at startup, before the gateway
// connection opens.
func (c *CountTracker) restoreActiveControls(ctx context.Context) error {
	counters, err := c.db.ActiveCounters(ctx)
	if err != nil {
		return fmt.Errorf("error loading active counters: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, counter := range counters {
		c.controls[counter.GuildID] = counterControl{
			GuildID:   counter.GuildID,
			MessageID: counter.MessageID,
		}
	}
	c.logger.InfoContext(
		ctx,
		"restored counter controls",
		"count", len(counters),
	)
	return nil
}

func (c *CountTracker) bindControl(guildID string, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls[guildID] = counterControl{GuildID: guildID, MessageID: messageID}
}

func (c *CountTracker) control(guildID string) (counterControl, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctl, ok := c.controls[guildID]
	return ctl, ok
}

func (c *CountTracker) registerPrompt(p *confirmPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts[p.nonce] = p
}

func (c *CountTracker) unregisterPrompt(p *confirmPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prompts, p.nonce)
}

func (c *CountTracker) prompt(nonce string) (*confirmPrompt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prompts[nonce]
	return p, ok
}

// counterButtons returns the increment/decrement button row for a guild.
func counterButtons(guildID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label: "+1",
					Style: discordgo.PrimaryButton,
					CustomID: strings.Join(
						[]string{
							customIDCounterPrefix,
							guildID,
							counterDirectionIncr,
						},
						":",
					),
				},
				discordgo.Button{
					Label: "-1",
					Style: discordgo.SecondaryButton,
					CustomID: strings.Join(
						[]string{
							customIDCounterPrefix,
							guildID,
							counterDirectionDecr,
						},
						":",
					),
				},
			},
		},
	}
}

// parseCounterCustomID splits "counter:<guild_id>:<incr|decr>" into its
// guild and delta. ok is false for anything that doesn't match.
func parseCounterCustomID(customID string) (guildID string, delta int64, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != customIDCounterPrefix {
		return "", 0, false
	}
	switch parts[2] {
	case counterDirectionIncr:
		return parts[1], 1, true
	case counterDirectionDecr:
		return parts[1], -1, true
	default:
		return "", 0, false
	}
}

// handleInitCounter implements /init_counter. With no prior entry for the
// guild, it creates a fresh display message, buttons and row. With a
// prior entry whose message still exists, it requires the requester to
// confirm before overwriting the count. A prior entry whose message is
// gone is reported, then replaced via the create path (the old count is
// discarded).
func (c *CountTracker) handleInitCounter(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger := c.logger.With(
		"interaction_id", i.ID,
		"guild_id", i.GuildID,
	)
	if i.GuildID == "" {
		c.respondEphemeral(i, noticeGuildOnly)
		return
	}

	requested := int64(0)
	if opt, ok := discordInteractionOptions(i)[optionInitialValue]; ok {
		requested = opt.IntValue()
	}

	existing, err := c.db.CounterGet(ctx, i.GuildID)
	if err != nil {
		logger.ErrorContext(ctx, "counter lookup failed", tint.Err(err))
		c.respondEphemeral(i, noticeUnexpected)
		return
	}

	if existing == nil {
		c.deferEphemeral(i)
		c.createCounter(
			ctx,
			logger,
			i,
			requested,
			fmt.Sprintf("Counter created, starting at %d.", requested),
		)
		return
	}

	// Override path. The stored message must be fetched first: its fate
	// decides whether we confirm-and-edit, fall back to a fresh message,
	// or tell the operator to retry.
	current, err := c.session.ChannelMessage(i.ChannelID, existing.MessageID)
	switch {
	case err == nil:
		c.overrideCounter(ctx, logger, i, existing, current, requested)
	case discordErrNotFound(err), discordErrForbidden(err):
		logger.WarnContext(
			ctx,
			"stored counter message unreachable, recreating",
			tint.Err(err),
			"counter", *existing,
		)
		c.deferEphemeral(i)
		c.createCounter(
			ctx,
			logger,
			i,
			requested,
			fmt.Sprintf(
				"The old counter message was gone, so the count was reset to %d on a fresh message.",
				requested,
			),
		)
	case discordErrTransient(err):
		c.respondEphemeral(i, noticeTransient)
	default:
		logger.ErrorContext(
			ctx,
			"counter message fetch failed",
			tint.Err(err),
			"counter", *existing,
		)
		c.respondEphemeral(i, noticeUnexpected)
	}
}

// createCounter sends a new display message with buttons, pins it, and
// persists the row. The row is only written once the message exists, so a
// failed send leaves the store untouched. Assumes the interaction has
// already been acknowledged (deferred).
func (c *CountTracker) createCounter(
	ctx context.Context,
	logger *slog.Logger,
	i *discordgo.InteractionCreate,
	count int64,
	successNotice string,
) {
	msg, err := c.session.ChannelMessageSendComplex(
		i.ChannelID,
		&discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{newCountEmbed(count)},
			Components: counterButtons(i.GuildID),
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "unable to send counter message", tint.Err(err))
		switch {
		case discordErrForbidden(err):
			c.editResponse(i, noticeForbidden)
		case discordErrTransient(err):
			c.editResponse(i, noticeTransient)
		default:
			c.editResponse(i, noticeUnexpected)
		}
		return
	}

	// Pinning is best-effort. A missing Manage Messages permission
	// shouldn't fail the whole initialize.
	if err = c.session.ChannelMessagePin(i.ChannelID, msg.ID); err != nil {
		logger.WarnContext(ctx, "unable to pin counter message", tint.Err(err))
	}

	counter, err := c.db.CounterUpsert(ctx, i.GuildID, msg.ID, count, true)
	if err != nil {
		logger.ErrorContext(ctx, "unable to persist counter", tint.Err(err))
		c.editResponse(i, noticeUnexpected)
		return
	}
	c.bindControl(counter.GuildID, counter.MessageID)
	logger.InfoContext(ctx, "counter initialized", "counter", *counter)
	c.editResponse(i, successNotice)
}

// overrideCounter runs the confirm-then-overwrite flow against an
// existing, reachable display message. The write targets the confirmed
// absolute value: a button press landing while the prompt is open is
// overwritten, which is the documented behavior of an override.
func (c *CountTracker) overrideCounter(
	ctx context.Context,
	logger *slog.Logger,
	i *discordgo.InteractionCreate,
	existing *Counter,
	current *discordgo.Message,
	requested int64,
) {
	user := getDiscordUser(i)
	if user == nil {
		c.respondEphemeral(i, noticeUnexpected)
		return
	}
	prompt := newConfirmPrompt(user.ID)
	c.registerPrompt(prompt)
	defer c.unregisterPrompt(prompt)

	err := c.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: fmt.Sprintf(
					"A counter already exists at **%d**. Overwrite it to **%d**?",
					existing.Count,
					requested,
				),
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: prompt.components(),
			},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "unable to send confirm prompt", tint.Err(err))
		return
	}

	outcome := prompt.Await(ctx, c.confirmTimeout)
	logger.InfoContext(
		ctx,
		"override prompt resolved",
		"outcome", outcome.String(),
		"requested", requested,
		"counter", *existing,
	)

	if !outcome.Accepted() {
		notice := "Keeping the current count."
		if outcome == ConfirmTimedOut {
			notice = "No answer in time. Keeping the current count."
		}
		c.editResponse(i, notice)
		return
	}

	_, err = c.session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:      current.ID,
			Channel: i.ChannelID,
			Embeds:  &[]*discordgo.MessageEmbed{newCountEmbed(requested)},
		},
	)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"unable to edit counter message",
			tint.Err(err),
			"counter", *existing,
		)
		switch {
		case discordErrNotFound(err), discordErrForbidden(err):
			c.editResponse(
				i,
				"The counter message vanished mid-confirm. Run `/init_counter` again.",
			)
		case discordErrTransient(err):
			c.editResponse(i, noticeTransient)
		default:
			c.editResponse(i, noticeUnexpected)
		}
		return
	}

	counter, err := c.db.CounterUpsert(
		ctx,
		existing.GuildID,
		existing.MessageID,
		requested,
		true,
	)
	if err != nil {
		logger.ErrorContext(ctx, "unable to persist override", tint.Err(err))
		c.editResponse(i, noticeUnexpected)
		return
	}
	c.bindControl(counter.GuildID, counter.MessageID)
	c.editResponse(i, fmt.Sprintf("Count set to %d.", requested))
}

// handleCounterButton handles one +1/-1 press. The bound message is
// fetched first: if it's still there, the stored count is adjusted in a
// single atomic statement and the display redrawn; if it's gone or
// unreadable, the row is deactivated with count and message ID preserved.
func (c *CountTracker) handleCounterButton(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	guildID string,
	delta int64,
) {
	logger := c.logger.With(
		"interaction_id", i.ID,
		"guild_id", guildID,
		"delta", delta,
	)

	ctl, ok := c.control(guildID)
	if !ok {
		c.respondEphemeral(i, noticeNotInitialized)
		return
	}

	_, err := c.session.ChannelMessage(i.ChannelID, ctl.MessageID)
	if err != nil {
		c.handleCounterButtonFetchErr(ctx, logger, i, guildID, err)
		return
	}

	counter, err := c.db.CounterAdjust(ctx, guildID, delta)
	if err != nil {
		logger.ErrorContext(ctx, "counter adjust failed", tint.Err(err))
		c.respondEphemeral(i, noticeUnexpected)
		return
	}

	_, err = c.session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:      ctl.MessageID,
			Channel: i.ChannelID,
			Embeds:  &[]*discordgo.MessageEmbed{newCountEmbed(counter.Count)},
		},
	)
	if err != nil {
		logger.ErrorContext(
			ctx,
			"counter redraw failed",
			tint.Err(err),
			"counter", *counter,
		)
		switch {
		case discordErrNotFound(err), discordErrForbidden(err):
			c.deactivateCounter(ctx, logger, i, guildID, err)
		case discordErrTransient(err):
			c.respondEphemeral(i, noticeTransient)
		default:
			c.respondEphemeral(i, noticeUnexpected)
		}
		return
	}

	logger.InfoContext(ctx, "count adjusted", "counter", *counter)
	c.respondEphemeral(i, fmt.Sprintf("Count is now %d.", counter.Count))
}

func (c *CountTracker) handleCounterButtonFetchErr(
	ctx context.Context,
	logger *slog.Logger,
	i *discordgo.InteractionCreate,
	guildID string,
	err error,
) {
	switch {
	case discordErrNotFound(err), discordErrForbidden(err):
		c.deactivateCounter(ctx, logger, i, guildID, err)
	case discordErrTransient(err):
		c.respondEphemeral(i, noticeTransient)
	default:
		// Unclassified failures are logged with full context and end
		// only this interaction, never the process.
		logger.ErrorContext(
			ctx,
			"unexpected counter message fetch failure",
			tint.Err(err),
		)
		c.respondEphemeral(i, noticeUnexpected)
	}
}

// deactivateCounter flags the row inactive after its message turned up
// missing or unreadable, preserving the count for a later re-initialize.
func (c *CountTracker) deactivateCounter(
	ctx context.Context,
	logger *slog.Logger,
	i *discordgo.InteractionCreate,
	guildID string,
	cause error,
) {
	if err := c.db.CounterDeactivate(ctx, guildID); err != nil {
		logger.ErrorContext(
			ctx,
			"unable to deactivate counter",
			tint.Err(err),
			"cause", cause,
		)
		c.respondEphemeral(i, noticeUnexpected)
		return
	}
	logger.WarnContext(ctx, "counter deactivated", tint.Err(cause))
	if discordErrForbidden(cause) {
		c.respondEphemeral(i, noticeForbidden)
		return
	}
	c.respondEphemeral(i, noticeMessageGone)
}

// handleConfirmButton routes a press on a confirm/deny button to its
// prompt. Only the user who opened the prompt may answer it.
func (c *CountTracker) handleConfirmButton(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	nonce string,
	accepted bool,
) {
	prompt, ok := c.prompt(nonce)
	if !ok {
		c.respondEphemeral(i, noticePromptExpired)
		return
	}
	user := getDiscordUser(i)
	if user == nil || user.ID != prompt.userID {
		c.respondEphemeral(i, noticeNotYourPrompt)
		return
	}

	outcome := ConfirmDenied
	if accepted {
		outcome = ConfirmAccepted
	}
	prompt.resolve(outcome)

	// Acknowledge the component press. The goroutine blocked in Await
	// rewrites the prompt message with the result.
	err := c.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		},
	)
	if err != nil {
		c.logger.WarnContext(
			ctx,
			"unable to acknowledge confirm button",
			tint.Err(err),
			"nonce", nonce,
		)
	}
}

// respondEphemeral sends a plain ephemeral message as the interaction's
// initial response.
func (c *CountTracker) respondEphemeral(
	i *discordgo.InteractionCreate,
	content string,
) {
	err := c.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: truncate(content, discordMaxMessageLength),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		c.logger.Warn("unable to respond to interaction", tint.Err(err))
	}
}

// deferEphemeral acknowledges the interaction so slower flows get more
// than discord's three-second response window.
func (c *CountTracker) deferEphemeral(i *discordgo.InteractionCreate) {
	err := c.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		c.logger.Warn("unable to defer interaction", tint.Err(err))
	}
}

// editResponse rewrites the interaction's (already sent or deferred)
// response with plain content, dropping any components.
func (c *CountTracker) editResponse(
	i *discordgo.InteractionCreate,
	content string,
) {
	content = truncate(content, discordMaxMessageLength)
	_, err := c.session.InteractionResponseEdit(
		i.Interaction,
		&discordgo.WebhookEdit{
			Content:    &content,
			Components: &[]discordgo.MessageComponent{},
		},
	)
	if err != nil {
		c.logger.Warn("unable to edit interaction response", tint.Err(err))
	}
}
