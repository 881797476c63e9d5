package slaybot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
)

// SlayBot is the top-level bot: the discord gateway connection, the
// sqlite-backed store, the counter feature, the joke commands and the
// read-only status API. Create one with [New] and start it with
// [SlayBot.Run].
type SlayBot struct {
	config  *Config
	db      DBI
	discord *Discord
	tracker *CountTracker
	fun     *FunCommands
	api     *http.Server
	logger  *slog.Logger

	// signalReady is closed once startup completes and the gateway is up
	signalReady chan struct{}

	// signalStop triggers a graceful shutdown when closed or signaled
	signalStop chan struct{}

	stopOnce  sync.Once
	readyOnce sync.Once

	eventHandlerWG sync.WaitGroup
}

// New validates the given config and assembles a SlayBot. It does not
// touch the network or the filesystem; [SlayBot.Run] does that.
func New(config *Config) (*SlayBot, error) {
	if config == nil {
		return nil, errors.New("nil config")
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(
		tint.NewHandler(
			os.Stdout,
			&tint.Options{
				Level:     config.LogLevel,
				AddSource: true,
			},
		),
	).With(loggerNameKey, "slaybot")
	slog.SetDefault(logger)

	if config.Discord.httpClient == nil {
		config.Discord.httpClient = config.HTTPClient
	}
	discord, err := newDiscord(config.Discord, logger)
	if err != nil {
		return nil, err
	}

	bot := &SlayBot{
		config:      config,
		discord:     discord,
		logger:      logger,
		signalReady: make(chan struct{}),
		signalStop:  make(chan struct{}),
	}
	return bot, nil
}

// structValidator validates config structs via their `binding` tags.
var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

// Ready returns a channel closed once startup has finished and the bot is
// serving interactions.
func (b *SlayBot) Ready() <-chan struct{} {
	return b.signalReady
}

// Stop triggers a graceful shutdown. Safe to call multiple times.
func (b *SlayBot) Stop() {
	b.stopOnce.Do(
		func() {
			close(b.signalStop)
		},
	)
}

// Run starts the bot and blocks until ctx is cancelled, [SlayBot.Stop] is
// called, or SIGINT/SIGTERM arrives. Startup (store migration, control
// rehydration, command registration, gateway connect) must finish within
// Config.StartupTimeout or Run aborts.
func (b *SlayBot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(
		ctx,
		b.config.StartupTimeout,
	)
	defer startupCancel()

	if err := b.startup(startupCtx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	b.readyOnce.Do(
		func() {
			close(b.signalReady)
		},
	)
	b.logger.InfoContext(ctx, "bot is ready", "config", b.config)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		b.logger.WarnContext(ctx, "received signal", "signal", sig.String())
	case <-b.signalStop:
		b.logger.WarnContext(ctx, "stop requested")
	case <-ctx.Done():
		b.logger.WarnContext(ctx, "context cancelled")
	}

	return b.shutdown()
}

// startup brings up the store, rehydrates counter controls, connects to
// the gateway, registers commands and starts the status API.
func (b *SlayBot) startup(ctx context.Context) error {
	gdb, err := CreateDB(ctx, b.config.Database)
	if err != nil {
		return fmt.Errorf("error creating database: %w", err)
	}
	b.db = NewDatabase(gdb, b.logger)

	session := b.discord.session
	b.tracker = newCountTracker(
		b.db,
		session,
		b.logger,
		b.config.ConfirmTimeout,
	)
	b.fun = newFunCommands(session, b.logger)

	// Controls must be rebound before any button press can arrive.
	if err = b.tracker.restoreActiveControls(ctx); err != nil {
		return err
	}

	session.AddHandler(b.handleInteractionCreate)
	session.AddHandler(
		func(_ *discordgo.Session, _ *discordgo.Ready) {
			b.logger.Info("discord gateway ready")
		},
	)

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if err = b.registerCommands(ctx); err != nil {
		return err
	}

	b.discord.setCustomStatus(b.config.Discord.CustomStatus)
	b.discord.announceStartup()

	return b.startAPI(ctx)
}

func (b *SlayBot) shutdown() error {
	b.logger.Warn(
		"shutting down",
		"timeout", b.config.ShutdownTimeout,
	)
	ctx, cancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer cancel()

	done := make(chan struct{})
	go func() {
		b.eventHandlerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("timed out waiting for in-flight interactions")
	}

	var errs []error
	if b.api != nil {
		if err := b.api.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
	}
	if err := b.discord.session.Close(); err != nil {
		errs = append(errs, fmt.Errorf("discord close: %w", err))
	}
	b.logger.Warn("shutdown complete")
	return errors.Join(errs...)
}

// applicationCommands defines the bot's slash-command surface, pushed via
// bulk overwrite on startup.
func applicationCommands() []*discordgo.ApplicationCommand {
	minInitialValue := float64(-1 << 31)
	return []*discordgo.ApplicationCommand{
		{
			Name:        commandInitCounter,
			Description: "Create or reset this server's counter",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionInitialValue,
					Description: "Starting value for the counter",
					MinValue:    &minInitialValue,
					Required:    false,
				},
			},
		},
		{
			Name:        commandRoll,
			Description: "Roll dice in NdM format",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionDice,
					Description: "Dice to roll, like 3d6",
					Required:    true,
				},
			},
		},
		{
			Name:        commandChoose,
			Description: "For when you wanna settle the score some other way",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionChoices,
					Description: "Space-separated choices",
					Required:    true,
				},
			},
		},
		{
			Name:        commandTurtle,
			Description: "Turtle!",
		},
		{
			Name:        commandR8,
			Description: "i r8 something out of 8 m8",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionInput,
					Description: "The thing to r8",
					Required:    true,
				},
			},
		},
		{
			Name:        commandHow,
			Description: "Determines how great or terrible something is",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionInput,
					Description: "adjective is/are/was/were subject",
					Required:    true,
				},
			},
		},
		{
			Name:        commandBox,
			Description: "🎲",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionSentence,
					Description: "Sentence to box",
					Required:    true,
				},
			},
		},
		{
			Name:        commandClap,
			Description: "Claps 👏 because 👏 they 👏 are 👏 necessary",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionSentence,
					Description: "Sentence to clap up",
					Required:    true,
				},
			},
		},
		{
			Name:        commandMock,
			Description: "bECAUsE pEOpLe sAy StUpid shIt",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionSentence,
					Description: "Sentence to mock",
					Required:    true,
				},
			},
		},
	}
}

func (b *SlayBot) registerCommands(ctx context.Context) error {
	commands := applicationCommands()
	registered, err := b.discord.session.ApplicationCommandBulkOverwrite(
		b.config.Discord.ApplicationID,
		b.config.Discord.GuildID,
		commands,
	)
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	names := make([]string, 0, len(registered))
	for _, cmd := range registered {
		names = append(names, cmd.Name)
	}
	b.logger.InfoContext(
		ctx,
		"registered commands",
		"guild_id", b.config.Discord.GuildID,
		"commands", strings.Join(names, ", "),
	)
	return nil
}

// handleInteractionCreate is the gateway entry point for every slash
// command and button press. Each interaction is dispatched on its own
// goroutine, tracked for the shutdown drain.
func (b *SlayBot) handleInteractionCreate(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	b.eventHandlerWG.Add(1)
	go func() {
		defer b.eventHandlerWG.Done()
		ctx := context.Background()

		b.logInteraction(ctx, i)

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			b.handleCommand(ctx, i)
		case discordgo.InteractionMessageComponent:
			b.handleComponent(ctx, i)
		default:
			b.logger.WarnContext(
				ctx,
				"unhandled interaction type",
				"type", i.Type.String(),
				"interaction_id", i.ID,
			)
		}
	}()
}

func (b *SlayBot) handleCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	name := i.ApplicationCommandData().Name
	switch name {
	case commandInitCounter:
		b.tracker.handleInitCounter(ctx, i)
	case commandRoll,
		commandChoose,
		commandTurtle,
		commandR8,
		commandHow,
		commandBox,
		commandClap,
		commandMock:
		b.fun.handle(i)
	default:
		b.logger.WarnContext(
			ctx,
			"unknown command",
			"command", name,
			"interaction_id", i.ID,
		)
	}
}

func (b *SlayBot) handleComponent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	customID := i.MessageComponentData().CustomID

	if guildID, delta, ok := parseCounterCustomID(customID); ok {
		b.tracker.handleCounterButton(ctx, i, guildID, delta)
		return
	}

	prefix, nonce, found := strings.Cut(customID, ":")
	if found {
		switch prefix {
		case customIDConfirmPrefix:
			b.tracker.handleConfirmButton(ctx, i, nonce, true)
			return
		case customIDDenyPrefix:
			b.tracker.handleConfirmButton(ctx, i, nonce, false)
			return
		}
	}

	b.logger.WarnContext(
		ctx,
		"unknown component",
		"custom_id", customID,
		"interaction_id", i.ID,
	)
}

// startAPI launches the read-only status API in the background, if
// configured.
func (b *SlayBot) startAPI(ctx context.Context) error {
	if b.config.API == nil || b.config.API.Listen == "" {
		return nil
	}
	srv, err := newAPIServer(b.config.API, b.db, b.logger)
	if err != nil {
		return err
	}
	b.api = srv

	listener, err := net.Listen(
		b.config.API.ListenNetwork,
		b.config.API.Listen,
	)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", b.config.API.Listen, err)
	}
	b.logger.InfoContext(
		ctx,
		"status api listening",
		"listen", b.config.API.Listen,
	)
	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			b.logger.Error("api server error", tint.Err(serveErr))
			b.Stop()
		}
	}()
	return nil
}
