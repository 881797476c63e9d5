package slaybot

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTracker(
	t *testing.T,
	session *mockSession,
	confirmTimeout time.Duration,
) *CountTracker {
	t.Helper()
	return newCountTracker(testDB(t), session, nil, confirmTimeout)
}

func initCounterInteraction(
	id string,
	guildID string,
	initialValue int64,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        id,
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   guildID,
			ChannelID: "channel1",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "user1", Username: "tester"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name: commandInitCounter,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:  optionInitialValue,
						Type:  discordgo.ApplicationCommandOptionInteger,
						Value: float64(initialValue),
					},
				},
			},
		},
	}
}

func buttonInteraction(
	id string,
	guildID string,
	customID string,
	userID string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:        id,
			Type:      discordgo.InteractionMessageComponent,
			GuildID:   guildID,
			ChannelID: "channel1",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: userID, Username: "tester"},
			},
			Data: discordgo.MessageComponentInteractionData{
				CustomID:      customID,
				ComponentType: discordgo.ButtonComponent,
			},
		},
	}
}

// promptNonce digs the confirm button's nonce out of the recorded
// interaction response.
func promptNonce(
	t *testing.T,
	resp *discordgo.InteractionResponse,
) string {
	t.Helper()
	require.NotNil(t, resp)
	require.NotNil(t, resp.Data)
	require.Len(t, resp.Data.Components, 1)
	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	confirm, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	nonce := strings.TrimPrefix(confirm.CustomID, customIDConfirmPrefix+":")
	require.NotEqual(t, confirm.CustomID, nonce)
	return nonce
}

func embedValue(t *testing.T, msg *discordgo.Message) string {
	t.Helper()
	require.NotNil(t, msg)
	require.Len(t, msg.Embeds, 1)
	require.Len(t, msg.Embeds[0].Fields, 1)
	return msg.Embeds[0].Fields[0].Value
}

func TestInitCounterCreate(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	tracker.handleInitCounter(ctx, initCounterInteraction("i1", "guild1", 5))

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(5), counter.Count)
	assert.True(t, counter.Active)

	msg := session.message(counter.MessageID)
	assert.Equal(t, "5", embedValue(t, msg))
	assert.NotEmpty(t, msg.Components)
	assert.Contains(t, session.pinned, counter.MessageID)

	// No confirmation prompt: the initial response was a plain deferral
	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredChannelMessageWithSource,
		resp.Type,
	)

	edit := session.lastResponseEdit()
	require.NotNil(t, edit)
	assert.Contains(t, stringPointerValue(edit.Content), "5")

	ctl, ok := tracker.control("guild1")
	require.True(t, ok)
	assert.Equal(t, counter.MessageID, ctl.MessageID)
}

func TestInitCounterRejectsDirectMessages(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)

	i := initCounterInteraction("i1", "", 5)
	tracker.handleInitCounter(context.Background(), i)

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeGuildOnly, resp.Data.Content)
}

func TestInitCounterOverrideConfirmed(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, 5*time.Second)
	ctx := context.Background()

	// Existing counter with a live display message
	msg, err := session.ChannelMessageSendComplex(
		"channel1",
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{newCountEmbed(6)},
		},
	)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild1", msg.ID, 6, true)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.handleInitCounter(
			ctx,
			initCounterInteraction("i1", "guild1", 0),
		)
	}()

	require.Eventually(
		t,
		func() bool { return session.response("i1") != nil },
		time.Second,
		5*time.Millisecond,
	)
	resp := session.response("i1")
	assert.Contains(t, resp.Data.Content, "6")
	assert.Contains(t, resp.Data.Content, "0")

	nonce := promptNonce(t, resp)
	tracker.handleConfirmButton(
		ctx,
		buttonInteraction("i2", "guild1", customIDConfirmPrefix+":"+nonce, "user1"),
		nonce,
		true,
	)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleInitCounter did not return")
	}

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(0), counter.Count)
	assert.Equal(t, msg.ID, counter.MessageID)
	assert.Equal(t, "0", embedValue(t, session.message(msg.ID)))
}

func TestInitCounterOverrideDenied(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, 5*time.Second)
	ctx := context.Background()

	msg, err := session.ChannelMessageSendComplex(
		"channel1",
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{newCountEmbed(6)},
		},
	)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild1", msg.ID, 6, true)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.handleInitCounter(
			ctx,
			initCounterInteraction("i1", "guild1", 0),
		)
	}()

	require.Eventually(
		t,
		func() bool { return session.response("i1") != nil },
		time.Second,
		5*time.Millisecond,
	)
	nonce := promptNonce(t, session.response("i1"))
	tracker.handleConfirmButton(
		ctx,
		buttonInteraction("i2", "guild1", customIDDenyPrefix+":"+nonce, "user1"),
		nonce,
		false,
	)
	<-done

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(6), counter.Count)
	assert.Equal(t, "6", embedValue(t, session.message(msg.ID)))
}

func TestInitCounterOverrideTimeout(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, 30*time.Millisecond)
	ctx := context.Background()

	msg, err := session.ChannelMessageSendComplex(
		"channel1",
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{newCountEmbed(6)},
		},
	)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild1", msg.ID, 6, true)
	require.NoError(t, err)

	tracker.handleInitCounter(ctx, initCounterInteraction("i1", "guild1", 0))

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(6), counter.Count)

	edit := session.lastResponseEdit()
	require.NotNil(t, edit)
	assert.Contains(t, stringPointerValue(edit.Content), "No answer in time")
}

func TestInitCounterOverrideMessageGone(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	// Row exists but its message was deleted out from under the bot
	_, err := tracker.db.CounterUpsert(ctx, "guild1", "missing", 6, true)
	require.NoError(t, err)

	tracker.handleInitCounter(ctx, initCounterInteraction("i1", "guild1", 2))

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(2), counter.Count)
	assert.NotEqual(t, "missing", counter.MessageID)
	assert.True(t, counter.Active)
	assert.Equal(t, "2", embedValue(t, session.message(counter.MessageID)))
}

func TestInitCounterOverrideTransientFetch(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	session.fetchErr = newRESTError(http.StatusServiceUnavailable)
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	_, err := tracker.db.CounterUpsert(ctx, "guild1", "msg1", 6, true)
	require.NoError(t, err)

	tracker.handleInitCounter(ctx, initCounterInteraction("i1", "guild1", 0))

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeTransient, resp.Data.Content)

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(6), counter.Count)
	assert.Equal(t, "msg1", counter.MessageID)
	assert.True(t, counter.Active)
}

func TestCounterButtonAdjust(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	msg, err := session.ChannelMessageSendComplex(
		"channel1",
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{newCountEmbed(5)},
		},
	)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild1", msg.ID, 5, true)
	require.NoError(t, err)
	require.NoError(t, tracker.restoreActiveControls(ctx))

	incrID := "counter:guild1:" + counterDirectionIncr
	decrID := "counter:guild1:" + counterDirectionDecr

	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i1", "guild1", incrID, "user1"),
		"guild1",
		1,
	)
	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i2", "guild1", incrID, "user2"),
		"guild1",
		1,
	)
	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i3", "guild1", decrID, "user1"),
		"guild1",
		-1,
	)

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, int64(6), counter.Count)
	assert.Equal(t, "6", embedValue(t, session.message(msg.ID)))

	resp := session.response("i3")
	require.NotNil(t, resp)
	assert.Contains(t, resp.Data.Content, "6")
}

func TestCounterButtonMessageGone(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	_, err := tracker.db.CounterUpsert(ctx, "guild1", "missing", 6, true)
	require.NoError(t, err)
	require.NoError(t, tracker.restoreActiveControls(ctx))

	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i1", "guild1", "counter:guild1:incr", "user1"),
		"guild1",
		1,
	)

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.False(t, counter.Active)
	assert.Equal(t, int64(6), counter.Count)
	assert.Equal(t, "missing", counter.MessageID)

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeMessageGone, resp.Data.Content)
}

func TestCounterButtonForbidden(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	session.fetchErr = newRESTError(http.StatusForbidden)
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	_, err := tracker.db.CounterUpsert(ctx, "guild1", "msg1", 6, true)
	require.NoError(t, err)
	require.NoError(t, tracker.restoreActiveControls(ctx))

	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i1", "guild1", "counter:guild1:incr", "user1"),
		"guild1",
		1,
	)

	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.False(t, counter.Active)
	assert.Equal(t, int64(6), counter.Count)

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeForbidden, resp.Data.Content)
}

func TestCounterButtonTransient(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	session.fetchErr = newRESTError(http.StatusTooManyRequests)
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	_, err := tracker.db.CounterUpsert(ctx, "guild1", "msg1", 6, true)
	require.NoError(t, err)
	require.NoError(t, tracker.restoreActiveControls(ctx))

	tracker.handleCounterButton(
		ctx,
		buttonInteraction("i1", "guild1", "counter:guild1:incr", "user1"),
		"guild1",
		1,
	)

	// Transient failures never mutate state
	counter, err := tracker.db.CounterGet(ctx, "guild1")
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.True(t, counter.Active)
	assert.Equal(t, int64(6), counter.Count)

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeTransient, resp.Data.Content)
}

func TestCounterButtonNotInitialized(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)

	tracker.handleCounterButton(
		context.Background(),
		buttonInteraction("i1", "guild1", "counter:guild1:incr", "user1"),
		"guild1",
		1,
	)

	resp := session.response("i1")
	require.NotNil(t, resp)
	assert.Equal(t, noticeNotInitialized, resp.Data.Content)
}

func TestRestoreActiveControls(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	_, err := tracker.db.CounterUpsert(ctx, "guild1", "msg1", 1, true)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild2", "msg2", 2, true)
	require.NoError(t, err)
	_, err = tracker.db.CounterUpsert(ctx, "guild3", "msg3", 3, false)
	require.NoError(t, err)

	require.NoError(t, tracker.restoreActiveControls(ctx))

	ctl, ok := tracker.control("guild1")
	require.True(t, ok)
	assert.Equal(t, "msg1", ctl.MessageID)

	_, ok = tracker.control("guild2")
	assert.True(t, ok)

	_, ok = tracker.control("guild3")
	assert.False(t, ok)
}

func TestHandleConfirmButtonValidation(t *testing.T) {
	t.Parallel()
	session := newMockSession()
	tracker := testTracker(t, session, time.Second)
	ctx := context.Background()

	t.Run(
		"unknown nonce", func(t *testing.T) {
			tracker.handleConfirmButton(
				ctx,
				buttonInteraction("i1", "guild1", "confirm:nope", "user1"),
				"nope",
				true,
			)
			resp := session.response("i1")
			require.NotNil(t, resp)
			assert.Equal(t, noticePromptExpired, resp.Data.Content)
		},
	)

	t.Run(
		"wrong user", func(t *testing.T) {
			prompt := newConfirmPrompt("user1")
			tracker.registerPrompt(prompt)
			defer tracker.unregisterPrompt(prompt)

			tracker.handleConfirmButton(
				ctx,
				buttonInteraction(
					"i2",
					"guild1",
					customIDConfirmPrefix+":"+prompt.nonce,
					"someone-else",
				),
				prompt.nonce,
				true,
			)
			resp := session.response("i2")
			require.NotNil(t, resp)
			assert.Equal(t, noticeNotYourPrompt, resp.Data.Content)

			// Prompt remains unresolved: a later legitimate press works
			prompt.resolve(ConfirmAccepted)
			assert.Equal(
				t,
				ConfirmAccepted,
				prompt.Await(ctx, time.Second),
			)
		},
	)
}

func TestParseCounterCustomID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		customID string
		guildID  string
		delta    int64
		ok       bool
	}{
		{customID: "counter:guild1:incr", guildID: "guild1", delta: 1, ok: true},
		{customID: "counter:guild1:decr", guildID: "guild1", delta: -1, ok: true},
		{customID: "counter:guild1:sideways"},
		{customID: "confirm:abc123"},
		{customID: "counter:guild1"},
		{customID: "counter:guild1:incr:extra"},
		{customID: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(
			tc.customID, func(t *testing.T) {
				t.Parallel()
				guildID, delta, ok := parseCounterCustomID(tc.customID)
				assert.Equal(t, tc.ok, ok)
				assert.Equal(t, tc.guildID, guildID)
				assert.Equal(t, tc.delta, delta)
			},
		)
	}
}

func TestCounterButtons(t *testing.T) {
	t.Parallel()
	components := counterButtons("guild1")
	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	incr, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "counter:guild1:incr", incr.CustomID)
	assert.Equal(t, "+1", incr.Label)

	decr, ok := row.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "counter:guild1:decr", decr.CustomID)
	assert.Equal(t, "-1", decr.Label)
}
