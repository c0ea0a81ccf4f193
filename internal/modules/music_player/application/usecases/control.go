package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// ControlOutcome tells the presentation layer what a control input did.
type ControlOutcome int

const (
	// OutcomeIgnored means the input was not on the guild's current control message.
	OutcomeIgnored ControlOutcome = iota
	// OutcomeNoop means the input was accepted but did not apply in the current state.
	OutcomeNoop
	OutcomePaused
	OutcomeResumed
	OutcomeSkipped
	OutcomeStopped
	OutcomeQueueShown
	OutcomeQueueEmpty
	OutcomeLocalQueued
)

// ControlInputEvent is a control input received on a published control surface.
type ControlInputEvent struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	UserID    snowflake.ID
	Input     ControlInput
}

// ControlOutput contains the result of dispatching a control input.
type ControlOutput struct {
	Outcome ControlOutcome
	Queue   *QueueView // set for OutcomeQueueShown
	Play    *PlayOutput
}

// Accepted reports whether the input was recognized on the current control message.
func (o *ControlOutput) Accepted() bool {
	return o.Outcome != OutcomeIgnored
}

// ControlService applies control-surface inputs to a guild's playback.
type ControlService struct {
	repo     domain.PlayerStateRepository
	sinks    *SinkRegistry
	loop     *events.Loop
	playback *PlaybackService
	voice    *VoiceChannelService
	loader   *SongLoaderService
}

// NewControlService creates a new ControlService.
func NewControlService(
	repo domain.PlayerStateRepository,
	sinks *SinkRegistry,
	loop *events.Loop,
	playback *PlaybackService,
	voice *VoiceChannelService,
	loader *SongLoaderService,
) *ControlService {
	return &ControlService{
		repo:     repo,
		sinks:    sinks,
		loop:     loop,
		playback: playback,
		voice:    voice,
		loader:   loader,
	}
}

// follow-up work that cannot run on the loop because it connects or resolves
type controlFollowUp int

const (
	followUpNone controlFollowUp = iota
	followUpRejoin
	followUpPlayLocal
)

// Dispatch applies one control input. Inputs on any message other than the
// guild's current control message are ignored. Inputs that do not fit the
// current state are accepted as no-ops.
func (c *ControlService) Dispatch(ctx context.Context, event ControlInputEvent) (*ControlOutput, error) {
	output := &ControlOutput{Outcome: OutcomeIgnored}
	followUp := followUpNone

	err := c.loop.Do(ctx, func(ctx context.Context) error {
		state := c.repo.Get(event.GuildID)
		if state == nil || !state.IsControlMessage(event.MessageID) {
			return nil
		}

		var err error
		output.Outcome, followUp, err = c.applyLocked(ctx, state, event.Input)
		if err != nil {
			return err
		}
		if output.Outcome == OutcomeQueueShown {
			output.Queue, err = queueViewLocked(state)
			if errors.Is(err, ErrQueueEmpty) {
				output.Outcome = OutcomeQueueEmpty
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch followUp {
	case followUpRejoin:
		if err := c.rejoin(ctx, event); err != nil {
			return nil, err
		}
	case followUpPlayLocal:
		play, err := c.playLocal(ctx, event)
		if err != nil {
			return nil, err
		}
		output.Play = play
	}

	slog.Debug("dispatched control input",
		"guild", event.GuildID,
		"input", event.Input.String(),
		"outcome", output.Outcome,
	)

	return output, nil
}

// applyLocked runs the part of a control input that only touches loop-owned state.
func (c *ControlService) applyLocked(
	ctx context.Context,
	state *domain.PlayerState,
	input ControlInput,
) (ControlOutcome, controlFollowUp, error) {
	guildID := state.GuildID

	switch input {
	case domain.ControlPause:
		return outcomeOf(c.playback.pauseLocked(ctx, guildID), OutcomePaused, ErrNotPlaying)

	case domain.ControlResume:
		if c.sinks.Connected(guildID) == nil {
			if _, ok := state.Current(); ok {
				return OutcomeResumed, followUpRejoin, nil
			}
			return OutcomeNoop, followUpNone, nil
		}
		return outcomeOf(c.playback.resumeLocked(ctx, guildID), OutcomeResumed, ErrNotPaused)

	case domain.ControlSkip:
		return outcomeOf(c.playback.skipLocked(ctx, guildID), OutcomeSkipped, ErrNotPlaying)

	case domain.ControlStop:
		return outcomeOf(c.playback.stopLocked(ctx, guildID), OutcomeStopped, ErrNotConnected)

	case domain.ControlShowQueue:
		return OutcomeQueueShown, followUpNone, nil

	case domain.ControlPlayLocal:
		if !c.loader.LocalEnabled() {
			return OutcomeNoop, followUpNone, nil
		}
		return OutcomeLocalQueued, followUpPlayLocal, nil
	}

	return OutcomeNoop, followUpNone, nil
}

// outcomeOf maps an operation error to an outcome, treating the given
// invalid-state error as a silent no-op.
func outcomeOf(err error, success ControlOutcome, noop error) (ControlOutcome, controlFollowUp, error) {
	switch {
	case err == nil:
		return success, followUpNone, nil
	case errors.Is(err, noop):
		return OutcomeNoop, followUpNone, nil
	default:
		return OutcomeNoop, followUpNone, err
	}
}

// rejoin reconnects to the reacting member's voice channel and replays the
// current song, which is what resume means for a disconnected guild.
func (c *ControlService) rejoin(ctx context.Context, event ControlInputEvent) error {
	if _, err := c.voice.EnsureConnected(ctx, JoinInput{
		GuildID:               event.GuildID,
		UserID:                event.UserID,
		NotificationChannelID: event.ChannelID,
	}); err != nil {
		return err
	}
	return c.playback.ReplayCurrent(ctx, event.GuildID)
}

// playLocal queues the local shortcut song, joining the reacting member's voice
// channel first when the guild is not connected.
func (c *ControlService) playLocal(ctx context.Context, event ControlInputEvent) (*PlayOutput, error) {
	loaded, err := c.loader.LoadLocalSong(ctx, domain.LocalShortcutIndex)
	if err != nil {
		return nil, err
	}

	if _, err := c.voice.EnsureConnected(ctx, JoinInput{
		GuildID:               event.GuildID,
		UserID:                event.UserID,
		NotificationChannelID: event.ChannelID,
	}); err != nil {
		return nil, err
	}

	return c.playback.RequestPlay(ctx, PlayInput{
		GuildID:               event.GuildID,
		NotificationChannelID: event.ChannelID,
		Song:                  loaded.Song,
	})
}
