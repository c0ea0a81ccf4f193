package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// DefaultConnectTimeout bounds how long joining a voice channel may take.
const DefaultConnectTimeout = 10 * time.Second

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
}

// JoinOutput contains the result of the Join use case.
type JoinOutput struct {
	VoiceChannelID snowflake.ID
	Connected      bool // a new connection was opened
	Moved          bool // an existing connection switched channels
}

// LeaveInput contains the input for the Leave use case.
type LeaveInput struct {
	GuildID snowflake.ID
}

// BotVoiceStateChangeInput contains the input for handling bot voice state changes.
type BotVoiceStateChangeInput struct {
	GuildID      snowflake.ID
	NewChannelID *snowflake.ID // nil means disconnected
}

// VoiceChannelService handles voice channel operations.
type VoiceChannelService struct {
	repo           domain.PlayerStateRepository
	sinks          *SinkRegistry
	connector      ports.VoiceConnector
	voiceState     ports.VoiceStateProvider
	loop           *events.Loop
	connectTimeout time.Duration
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	repo domain.PlayerStateRepository,
	sinks *SinkRegistry,
	connector ports.VoiceConnector,
	voiceState ports.VoiceStateProvider,
	loop *events.Loop,
	connectTimeout time.Duration,
) *VoiceChannelService {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &VoiceChannelService{
		repo:           repo,
		sinks:          sinks,
		connector:      connector,
		voiceState:     voiceState,
		loop:           loop,
		connectTimeout: connectTimeout,
	}
}

// Join makes sure the guild has a sink in the requesting user's voice channel,
// moving an existing connection or opening a new one.
func (v *VoiceChannelService) Join(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	voiceChannelID, err := v.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up voice channel: %w", err)
	}
	if voiceChannelID == 0 {
		return nil, ErrUserNotInVoice
	}

	var existing ports.VoiceSink
	err = v.loop.Do(ctx, func(context.Context) error {
		state := v.repo.GetOrCreate(input.GuildID, input.NotificationChannelID)
		state.SetNotificationChannel(input.NotificationChannelID)

		existing = v.sinks.Get(input.GuildID)
		if existing != nil && !existing.IsConnected() {
			// Dropped without us noticing; start over with a fresh connection
			v.sinks.Remove(input.GuildID)
			existing = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.ChannelID() == voiceChannelID {
			return &JoinOutput{VoiceChannelID: voiceChannelID}, nil
		}
		if err := existing.Move(ctx, voiceChannelID); err != nil {
			return nil, fmt.Errorf("failed to move to voice channel: %w", err)
		}
		return &JoinOutput{VoiceChannelID: voiceChannelID, Moved: true}, nil
	}

	sink, err := v.connect(ctx, input.GuildID, voiceChannelID)
	if err != nil {
		return nil, err
	}

	// Another handler may have registered a sink while we were connecting
	err = v.loop.Do(ctx, func(context.Context) error {
		if current := v.sinks.Connected(input.GuildID); current != nil && current != sink {
			slog.Debug("kept concurrently registered voice sink", "guild", input.GuildID)
			return nil
		}
		v.sinks.Set(input.GuildID, sink)
		return nil
	})
	if err != nil {
		v.disconnect(input.GuildID, sink)
		return nil, err
	}

	slog.Info("joined voice channel", "guild", input.GuildID, "channel", voiceChannelID)

	return &JoinOutput{VoiceChannelID: voiceChannelID, Connected: true}, nil
}

// EnsureConnected joins the user's voice channel unless the guild already has a
// connected sink, which then stays where it is.
func (v *VoiceChannelService) EnsureConnected(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	var channelID snowflake.ID
	err := v.loop.Do(ctx, func(context.Context) error {
		sink := v.sinks.Connected(input.GuildID)
		if sink == nil {
			return nil
		}
		state := v.repo.GetOrCreate(input.GuildID, input.NotificationChannelID)
		state.SetNotificationChannel(input.NotificationChannelID)
		channelID = sink.ChannelID()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if channelID != 0 {
		return &JoinOutput{VoiceChannelID: channelID}, nil
	}

	return v.Join(ctx, input)
}

// connect opens a sink, bounded by the connect timeout.
func (v *VoiceChannelService) connect(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	connectCtx, cancel := context.WithTimeout(ctx, v.connectTimeout)
	defer cancel()

	sink, err := v.connector.Connect(connectCtx, guildID, channelID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ports.ErrConnectTimeout) {
			err = fmt.Errorf("%w: %w", ports.ErrConnectTimeout, err)
		}
		slog.Warn("failed to connect to voice channel",
			"guild", guildID,
			"channel", channelID,
			"error", err,
		)
		return nil, err
	}
	return sink, nil
}

// Leave clears the guild's queue and disconnects its sink.
func (v *VoiceChannelService) Leave(ctx context.Context, input LeaveInput) error {
	var sink ports.VoiceSink
	err := v.loop.Do(ctx, func(context.Context) error {
		sink = v.sinks.Remove(input.GuildID)
		if sink == nil {
			return ErrNotConnected
		}
		if state := v.repo.Get(input.GuildID); state != nil {
			state.Clear()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sink.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}

	slog.Info("left voice channel", "guild", input.GuildID)

	return nil
}

// HandleBotVoiceStateChange handles external voice state changes (bot moved or disconnected).
// When the bot is disconnected the sink is dropped but the queue is kept, so a
// later resume can rejoin and replay the current song.
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	ctx context.Context,
	input BotVoiceStateChangeInput,
) {
	if input.NewChannelID != nil {
		slog.Debug("bot voice channel changed", "guild", input.GuildID, "channel", *input.NewChannelID)
		return
	}

	var sink ports.VoiceSink
	err := v.loop.Do(ctx, func(context.Context) error {
		sink = v.sinks.Remove(input.GuildID)
		return nil
	})
	if err != nil || sink == nil {
		return
	}

	slog.Info("bot was disconnected from voice", "guild", input.GuildID)
	v.disconnect(input.GuildID, sink)
}

// Shutdown disconnects every sink.
func (v *VoiceChannelService) Shutdown(ctx context.Context) {
	var sinks map[snowflake.ID]ports.VoiceSink
	err := v.loop.Do(ctx, func(context.Context) error {
		sinks = v.sinks.Drain()
		return nil
	})
	if err != nil {
		return
	}

	for guildID, sink := range sinks {
		v.disconnect(guildID, sink)
	}
}

// disconnect releases a sink that is no longer registered, logging failures.
func (v *VoiceChannelService) disconnect(guildID snowflake.ID, sink ports.VoiceSink) {
	ctx, cancel := context.WithTimeout(context.Background(), v.connectTimeout)
	defer cancel()

	if err := sink.Disconnect(ctx); err != nil {
		slog.Warn("failed to disconnect voice sink", "guild", guildID, "error", err)
	}
}
