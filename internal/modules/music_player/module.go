package music_player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/bot"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/tunebot/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/tunebot/internal/modules/music_player/presentation/discord"
)

const shutdownTimeout = 10 * time.Second

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var (
	_ bot.ConfigurableModule = (*MusicPlayerModule)(nil)
	_ bot.TextCommandModule  = (*MusicPlayerModule)(nil)
)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers

	loop     *events.Loop
	voice    *usecases.VoiceChannelService
	lavalink *infrastructure.LavalinkConnector
	library  *infrastructure.LocalLibrary
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return m.commandHandlers.SlashHandlers()
}

// TextCommands returns the prefixed chat commands, aliases included.
func (m *MusicPlayerModule) TextCommands() map[string]bot.TextCommandHandler {
	return m.commandHandlers.TextHandlers()
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.handleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.handleVoiceStateUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.MessageReactionAdd) {
			m.eventHandlers.HandleReactionAdd(s, event)
		},
		func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			m.autocomplete.HandleInteraction(s, i)
		},
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	if deps.Session == nil || deps.Session.State == nil || deps.Session.State.User == nil {
		return errors.New("music_player requires an open Discord session")
	}

	botID, err := snowflake.Parse(deps.Session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot ID: %w", err)
	}

	connector, err := m.newConnector(deps.Session)
	if err != nil {
		return err
	}

	// A nil *LocalLibrary must not reach the services as a non-nil interface.
	var local ports.LocalLibrary
	if m.config.LocalMusicDir != "" {
		library, err := infrastructure.NewLocalLibrary(m.config.LocalMusicDir)
		if err != nil {
			m.closeBackends()
			return fmt.Errorf("failed to open local music library: %w", err)
		}
		m.library = library
		local = library
	}

	repo := infrastructure.NewMemoryRepository()
	sinks := usecases.NewSinkRegistry()
	m.loop = events.NewLoop(events.DefaultBufferSize)

	voiceState := infrastructure.NewVoiceStateProvider(deps.Session)
	surface := infrastructure.NewDiscordControlSurface(deps.Session)

	loader := usecases.NewSongLoaderService(infrastructure.NewYtDlpResolver(), local)
	m.voice = usecases.NewVoiceChannelService(
		repo,
		sinks,
		connector,
		voiceState,
		m.loop,
		m.config.VoiceConnectTimeout,
	)
	playback := usecases.NewPlaybackService(repo, sinks, surface, m.loop, local != nil)
	queue := usecases.NewQueueService(repo, m.loop)
	control := usecases.NewControlService(repo, sinks, m.loop, playback, m.voice, loader)
	autocomplete := usecases.NewAutocompleteService(infrastructure.NewYtSearchSearcher(), local)

	m.commandHandlers = discord.NewCommandHandlers(m.voice, playback, queue, loader)
	m.eventHandlers = discord.NewEventHandlers(botID, m.voice, control)
	m.autocomplete = discord.NewAutocompleteHandler(autocomplete)

	slog.Info("music_player module initialized",
		"backend", m.config.AudioBackend,
		"local_library", local != nil,
	)

	return nil
}

func (m *MusicPlayerModule) newConnector(session *discordgo.Session) (ports.VoiceConnector, error) {
	if m.config.AudioBackend != BackendLavalink {
		return infrastructure.NewFFmpegConnector(session, m.config.FFmpegPath), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.VoiceConnectTimeout)
	defer cancel()

	connector, err := infrastructure.NewLavalinkConnector(ctx, session, infrastructure.LavalinkConfig{
		Address:  m.config.LavalinkAddress,
		Password: m.config.LavalinkPassword,
		Secure:   m.config.LavalinkSecure,
	})
	if err != nil {
		return nil, err
	}
	m.lavalink = connector
	return connector, nil
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	if m.voice != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		m.voice.Shutdown(ctx)
		cancel()
	}

	if m.loop != nil {
		// Let queued work and in-flight surface calls finish before closing
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := m.loop.Settle(ctx); err != nil {
			slog.Warn("event loop did not settle before shutdown", "error", err)
		}
		cancel()
		m.loop.Close()
	}

	m.closeBackends()
	return nil
}

func (m *MusicPlayerModule) closeBackends() {
	if m.lavalink != nil {
		m.lavalink.Close()
		m.lavalink = nil
	}

	if m.library != nil {
		if err := m.library.Close(); err != nil {
			slog.Warn("failed to close local music library", "error", err)
		}
		m.library = nil
	}
}

// Event handlers.

func (m *MusicPlayerModule) handleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	if m.lavalink != nil {
		m.lavalink.OnVoiceServerUpdate(event)
	}
}

func (m *MusicPlayerModule) handleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if m.lavalink != nil {
		m.lavalink.OnVoiceStateUpdate(event)
	}
	if m.eventHandlers != nil {
		m.eventHandlers.HandleVoiceStateUpdate(s, event)
	}
}
