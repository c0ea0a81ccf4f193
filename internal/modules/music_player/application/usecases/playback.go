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

// surfaceTimeout bounds each control surface call.
const surfaceTimeout = 10 * time.Second

// PlayInput contains the input for the RequestPlay use case.
type PlayInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
	Song                  Song
}

// PlayOutput contains the result of the RequestPlay use case.
type PlayOutput struct {
	Song     Song
	Started  bool // the song started right away
	Position int  // 1-based position among pending songs when queued
}

// PauseInput contains the input for the Pause use case.
type PauseInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// ResumeInput contains the input for the Resume use case.
type ResumeInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SkipInput contains the input for the Skip use case.
type SkipInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// StopInput contains the input for the Stop use case.
type StopInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// ToggleLoopInput contains the input for the ToggleLoop use case.
type ToggleLoopInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// ToggleLoopOutput contains the result of the ToggleLoop use case.
type ToggleLoopOutput struct {
	Enabled bool
}

// NowPlayingInput contains the input for the ShowNowPlaying use case.
type NowPlayingInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: the card is published here if non-zero
}

// PlaybackService drives a guild's sink from its queue. Every method runs its
// state access on the event loop; the unexported *Locked helpers expect to be
// called from a loop task already.
type PlaybackService struct {
	repo         domain.PlayerStateRepository
	sinks        *SinkRegistry
	surface      ports.ControlSurface
	loop         *events.Loop
	localEnabled bool

	// publishSeq numbers each guild's card publishes so only the latest one
	// becomes the control message. Loop only.
	publishSeq map[snowflake.ID]uint64
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(
	repo domain.PlayerStateRepository,
	sinks *SinkRegistry,
	surface ports.ControlSurface,
	loop *events.Loop,
	localEnabled bool,
) *PlaybackService {
	return &PlaybackService{
		repo:         repo,
		sinks:        sinks,
		surface:      surface,
		loop:         loop,
		localEnabled: localEnabled,
		publishSeq:   make(map[snowflake.ID]uint64),
	}
}

// RequestPlay queues a resolved song and starts playback if the sink is idle.
// The sink is re-checked here since resolution ran off the loop.
func (p *PlaybackService) RequestPlay(ctx context.Context, input PlayInput) (*PlayOutput, error) {
	var output *PlayOutput
	err := p.loop.Do(ctx, func(ctx context.Context) error {
		var err error
		output, err = p.requestPlayLocked(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (p *PlaybackService) requestPlayLocked(ctx context.Context, input PlayInput) (*PlayOutput, error) {
	sink := p.sinks.Connected(input.GuildID)
	if sink == nil {
		return nil, ErrNotConnected
	}

	state := p.repo.GetOrCreate(input.GuildID, input.NotificationChannelID)
	state.SetNotificationChannel(input.NotificationChannelID)

	state.Add(input.Song)
	position := state.Len()

	slog.Debug("queued song",
		"guild", input.GuildID,
		"title", input.Song.Title,
		"position", position,
	)

	output := &PlayOutput{Song: input.Song, Position: position}
	if isIdle(sink) {
		p.playNextLocked(ctx, input.GuildID)
		current, ok := state.Current()
		output.Started = ok && current == input.Song && state.Len() < position
	}
	return output, nil
}

// playNextLocked starts the next song if the guild's sink is connected and idle.
// It is the only place songs are started from the queue, so a sink never
// renders more than one song.
func (p *PlaybackService) playNextLocked(ctx context.Context, guildID snowflake.ID) {
	sink := p.sinks.Connected(guildID)
	if sink == nil {
		return
	}
	if !isIdle(sink) {
		return
	}

	state := p.repo.Get(guildID)
	if state == nil {
		return
	}

	song, ok := state.Advance()
	if !ok {
		slog.Debug("queue finished", "guild", guildID)
		return
	}

	p.startLocked(ctx, state, sink, song)
}

// startLocked hands song to the sink and publishes a fresh control surface.
func (p *PlaybackService) startLocked(
	ctx context.Context,
	state *domain.PlayerState,
	sink ports.VoiceSink,
	song Song,
) {
	guildID := state.GuildID

	if err := sink.Play(ctx, audioSourceFor(song), p.completionFor(guildID, song)); err != nil {
		p.startFailedLocked(state, song, err)
		return
	}

	slog.Info("started playback",
		"guild", guildID,
		"title", song.Title,
		"source", song.SourceKind.String(),
	)

	p.publishLocked(state, song)
}

// startFailedLocked reports a song that could not be started and moves on.
func (p *PlaybackService) startFailedLocked(state *domain.PlayerState, song Song, err error) {
	guildID := state.GuildID

	slog.Error("failed to start playback",
		"guild", guildID,
		"title", song.Title,
		"error", err,
	)
	p.notifyLocked(state, fmt.Sprintf("❌ Could not play **%s**: %v", song.Title, err))

	// Replaying a song that just failed would spin
	if !state.LoopEnabled() {
		p.loop.Post(func(ctx context.Context) {
			p.playNextLocked(ctx, guildID)
		})
	}
}

// completionFor returns the callback a sink fires when song stops rendering.
// It runs on the sink's goroutine, so it only hands the follow-up to the loop.
func (p *PlaybackService) completionFor(guildID snowflake.ID, song Song) ports.CompletionFunc {
	return func(err error) {
		if errors.Is(err, ports.ErrPlaybackFailed) {
			p.loop.Post(func(context.Context) {
				if state := p.repo.Get(guildID); state != nil {
					p.startFailedLocked(state, song, err)
				}
			})
			return
		}

		if err != nil {
			slog.Warn("playback ended with error", "guild", guildID, "error", err)
		}
		p.loop.Post(func(ctx context.Context) {
			p.playNextLocked(ctx, guildID)
		})
	}
}

// publishLocked publishes a control surface for song off the loop. Once the
// card exists it replaces the guild's control message, unless a newer publish
// was started meanwhile.
func (p *PlaybackService) publishLocked(state *domain.PlayerState, song Song) {
	if p.surface == nil || state.NotificationChannelID == 0 {
		return
	}

	guildID := state.GuildID
	channelID := state.NotificationChannelID
	info := ports.NowPlaying{
		Song:         song,
		LoopEnabled:  state.LoopEnabled(),
		LocalEnabled: p.localEnabled,
	}
	p.publishSeq[guildID]++
	seq := p.publishSeq[guildID]

	p.loop.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, surfaceTimeout)
		defer cancel()

		msg, err := p.surface.Publish(ctx, channelID, info)
		if err != nil {
			slog.Warn("failed to publish control surface", "guild", guildID, "error", err)
			return
		}
		p.loop.Post(func(context.Context) {
			p.adoptControlMessageLocked(guildID, seq, msg)
		})
	})
}

// adoptControlMessageLocked makes msg the guild's control message and retires
// the card it replaces. A card that lost the race is retired instead.
func (p *PlaybackService) adoptControlMessageLocked(guildID snowflake.ID, seq uint64, msg domain.ControlMessage) {
	state := p.repo.Get(guildID)
	if state == nil || p.publishSeq[guildID] != seq {
		p.retire(msg)
		return
	}
	if previous := state.SetControlMessage(msg); previous != nil && *previous != msg {
		p.retire(*previous)
	}
}

func (p *PlaybackService) retire(msg domain.ControlMessage) {
	p.loop.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, surfaceTimeout)
		defer cancel()
		p.surface.Retire(ctx, msg)
	})
}

func (p *PlaybackService) notifyLocked(state *domain.PlayerState, message string) {
	if p.surface == nil || state.NotificationChannelID == 0 {
		return
	}

	guildID := state.GuildID
	channelID := state.NotificationChannelID
	p.loop.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, surfaceTimeout)
		defer cancel()
		if err := p.surface.Notify(ctx, channelID, message); err != nil {
			slog.Warn("failed to send notice", "guild", guildID, "error", err)
		}
	})
}

// Pause pauses the current song.
func (p *PlaybackService) Pause(ctx context.Context, input PauseInput) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		p.updateNotificationChannelLocked(input.GuildID, input.NotificationChannelID)
		return p.pauseLocked(ctx, input.GuildID)
	})
}

func (p *PlaybackService) pauseLocked(ctx context.Context, guildID snowflake.ID) error {
	sink := p.sinks.Connected(guildID)
	if sink == nil || !sink.IsPlaying() {
		return ErrNotPlaying
	}
	if err := sink.Pause(ctx); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	return nil
}

// Resume continues a paused song.
func (p *PlaybackService) Resume(ctx context.Context, input ResumeInput) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		p.updateNotificationChannelLocked(input.GuildID, input.NotificationChannelID)
		return p.resumeLocked(ctx, input.GuildID)
	})
}

func (p *PlaybackService) resumeLocked(ctx context.Context, guildID snowflake.ID) error {
	sink := p.sinks.Connected(guildID)
	if sink == nil || !sink.IsPaused() {
		return ErrNotPaused
	}
	if err := sink.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	return nil
}

// Skip stops the current song. The sink's completion callback then advances the
// queue, so with loop enabled the same song starts over.
func (p *PlaybackService) Skip(ctx context.Context, input SkipInput) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		p.updateNotificationChannelLocked(input.GuildID, input.NotificationChannelID)
		return p.skipLocked(ctx, input.GuildID)
	})
}

func (p *PlaybackService) skipLocked(ctx context.Context, guildID snowflake.ID) error {
	sink := p.sinks.Connected(guildID)
	if sink == nil || !sink.IsPlaying() {
		return ErrNotPlaying
	}
	if err := sink.Stop(ctx); err != nil {
		return fmt.Errorf("failed to skip: %w", err)
	}
	return nil
}

// Stop clears the queue and stops the current song. It succeeds even when
// nothing is playing, but needs the bot to be in a voice channel.
func (p *PlaybackService) Stop(ctx context.Context, input StopInput) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		p.updateNotificationChannelLocked(input.GuildID, input.NotificationChannelID)
		return p.stopLocked(ctx, input.GuildID)
	})
}

func (p *PlaybackService) stopLocked(ctx context.Context, guildID snowflake.ID) error {
	sink := p.sinks.Connected(guildID)
	if sink == nil {
		return ErrNotConnected
	}

	if state := p.repo.Get(guildID); state != nil {
		state.Clear()
	}

	if isIdle(sink) {
		return nil
	}
	if err := sink.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	return nil
}

// ToggleLoop flips whether the current song repeats.
func (p *PlaybackService) ToggleLoop(ctx context.Context, input ToggleLoopInput) (*ToggleLoopOutput, error) {
	var enabled bool
	err := p.loop.Do(ctx, func(context.Context) error {
		state := p.repo.GetOrCreate(input.GuildID, input.NotificationChannelID)
		state.SetNotificationChannel(input.NotificationChannelID)
		enabled = state.ToggleLoop()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("toggled loop", "guild", input.GuildID, "enabled", enabled)

	return &ToggleLoopOutput{Enabled: enabled}, nil
}

// ShowNowPlaying republishes the control surface for the current song, which
// makes the new card the only one that accepts control input.
func (p *PlaybackService) ShowNowPlaying(ctx context.Context, input NowPlayingInput) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		state := p.repo.Get(input.GuildID)
		if state == nil {
			return ErrNotPlaying
		}
		sink := p.sinks.Connected(input.GuildID)
		if sink == nil || isIdle(sink) {
			return ErrNotPlaying
		}
		song, ok := state.Current()
		if !ok {
			return ErrNotPlaying
		}

		state.SetNotificationChannel(input.NotificationChannelID)
		p.publishLocked(state, song)
		return nil
	})
}

// ReplayCurrent starts the current song again without advancing the queue. It
// is used after rejoining a voice channel the bot was disconnected from. With
// no current song it behaves like starting the next one.
func (p *PlaybackService) ReplayCurrent(ctx context.Context, guildID snowflake.ID) error {
	return p.loop.Do(ctx, func(ctx context.Context) error {
		return p.replayCurrentLocked(ctx, guildID)
	})
}

func (p *PlaybackService) replayCurrentLocked(ctx context.Context, guildID snowflake.ID) error {
	sink := p.sinks.Connected(guildID)
	if sink == nil {
		return ErrNotConnected
	}
	if !isIdle(sink) {
		return nil
	}

	state := p.repo.Get(guildID)
	if state == nil {
		return ErrQueueEmpty
	}

	song, ok := state.Current()
	if !ok {
		if state.IsEmpty() {
			return ErrQueueEmpty
		}
		p.playNextLocked(ctx, guildID)
		return nil
	}

	p.startLocked(ctx, state, sink, song)
	return nil
}

func (p *PlaybackService) updateNotificationChannelLocked(guildID, channelID snowflake.ID) {
	if channelID == 0 {
		return
	}
	if state := p.repo.Get(guildID); state != nil {
		state.SetNotificationChannel(channelID)
	}
}

// audioSourceFor describes how a sink should render song. Network streams get
// reconnect-on-drop transport options, local files do not.
func audioSourceFor(song Song) ports.AudioSource {
	return ports.AudioSource{
		Reference: song.StreamReference,
		OriginURL: song.OriginURL,
		Title:     song.Title,
		Reconnect: !song.IsLocal(),
	}
}
