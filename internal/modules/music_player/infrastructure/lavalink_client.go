package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/disgolink/v3/disgolink"
	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
)

// ErrNoLavalinkNode is returned when no Lavalink node is available.
var ErrNoLavalinkNode = errors.New("no available Lavalink node")

// lavalinkRequestTimeout bounds each REST request a sink makes to the node.
const lavalinkRequestTimeout = 10 * time.Second

// pendingVoiceConnection tracks the state of a pending voice connection.
type pendingVoiceConnection struct {
	mu             sync.Mutex
	hasVoiceState  bool
	hasVoiceServer bool
	ready          chan struct{}
}

func newPendingVoiceConnection() *pendingVoiceConnection {
	return &pendingVoiceConnection{ready: make(chan struct{})}
}

// onEvent marks an event as received and signals ready once both are present.
func (p *pendingVoiceConnection) onEvent(isVoiceState bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if isVoiceState {
		p.hasVoiceState = true
	} else {
		p.hasVoiceServer = true
	}

	if p.hasVoiceState && p.hasVoiceServer {
		select {
		case <-p.ready:
		default:
			close(p.ready)
		}
	}
}

// voiceEventBuffer holds voice events until both VoiceStateUpdate and
// VoiceServerUpdate arrived, since Lavalink rejects partial voice state.
type voiceEventBuffer struct {
	mu sync.Mutex

	hasVoiceState bool
	channelID     *snowflake.ID
	sessionID     string

	hasVoiceServer bool
	token          string
	endpoint       string
}

// setVoiceState stores voice state data and reports whether both events are ready.
func (b *voiceEventBuffer) setVoiceState(channelID *snowflake.ID, sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceState = true
	b.channelID = channelID
	b.sessionID = sessionID

	return b.hasVoiceState && b.hasVoiceServer
}

// setVoiceServer stores voice server data and reports whether both events are ready.
func (b *voiceEventBuffer) setVoiceServer(token, endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hasVoiceServer = true
	b.token = token
	b.endpoint = endpoint

	return b.hasVoiceState && b.hasVoiceServer
}

// take returns the buffered data and resets the buffer.
func (b *voiceEventBuffer) take() (channelID *snowflake.ID, sessionID, token, endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	channelID, sessionID, token, endpoint = b.channelID, b.sessionID, b.token, b.endpoint

	b.hasVoiceState, b.hasVoiceServer = false, false
	b.channelID = nil
	b.sessionID, b.token, b.endpoint = "", "", ""
	return
}

// LavalinkConfig contains Lavalink connection configuration.
type LavalinkConfig struct {
	Address  string
	Password string
	Secure   bool
}

// LavalinkConnector opens voice sinks whose audio is rendered by a Lavalink
// node. The bot only joins the channel on the gateway; Lavalink owns the
// voice connection itself.
type LavalinkConnector struct {
	link    disgolink.Client
	session *discordgo.Session
	botID   snowflake.ID

	pendingMu sync.Mutex
	pending   map[snowflake.ID]*pendingVoiceConnection

	voiceBufferMu sync.Mutex
	voiceBuffers  map[snowflake.ID]*voiceEventBuffer

	sinksMu sync.Mutex
	sinks   map[snowflake.ID]*LavalinkSink
}

// NewLavalinkConnector creates a LavalinkConnector and connects to the node.
// The session must already be open so the bot user is known.
func NewLavalinkConnector(
	ctx context.Context,
	session *discordgo.Session,
	config LavalinkConfig,
) (*LavalinkConnector, error) {
	if session.State == nil || session.State.User == nil {
		return nil, errors.New("discord session is not open")
	}
	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bot ID: %w", err)
	}

	c := &LavalinkConnector{
		session:      session,
		botID:        botID,
		pending:      make(map[snowflake.ID]*pendingVoiceConnection),
		voiceBuffers: make(map[snowflake.ID]*voiceEventBuffer),
		sinks:        make(map[snowflake.ID]*LavalinkSink),
	}

	c.link = disgolink.New(botID,
		disgolink.WithListenerFunc(c.onTrackEnd),
		disgolink.WithListenerFunc(c.onTrackException),
		disgolink.WithListenerFunc(c.onTrackStuck),
	)

	node, err := c.link.AddNode(ctx, disgolink.NodeConfig{
		Name:     "main",
		Address:  config.Address,
		Password: config.Password,
		Secure:   config.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add Lavalink node: %w", err)
	}

	slog.Info("connected to Lavalink", "node", node.Config().Name, "address", config.Address)

	return c, nil
}

// Connect joins the voice channel and waits for both voice gateway events.
func (c *LavalinkConnector) Connect(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	if existing := c.sink(guildID); existing != nil && existing.IsConnected() {
		if existing.ChannelID() != channelID {
			if err := existing.Move(ctx, channelID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if err := checkVoicePermissions(c.session, channelID); err != nil {
		return nil, err
	}

	pending := newPendingVoiceConnection()
	c.pendingMu.Lock()
	c.pending[guildID] = pending
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, guildID)
		c.pendingMu.Unlock()
	}()

	err := c.session.ChannelVoiceJoinManual(guildID.String(), channelID.String(), false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	select {
	case <-pending.ready:
	case <-ctx.Done():
		leaveCtx, cancel := context.WithTimeout(context.Background(), lavalinkRequestTimeout)
		defer cancel()
		c.leave(leaveCtx, guildID)
		return nil, fmt.Errorf("%w: %w", ports.ErrConnectTimeout, ctx.Err())
	}

	sink := &LavalinkSink{
		connector: c,
		guildID:   guildID,
		requests:  newRequestQueue(lavalinkRequestTimeout),
		channelID: channelID,
		connected: true,
	}
	c.sinksMu.Lock()
	c.sinks[guildID] = sink
	c.sinksMu.Unlock()

	return sink, nil
}

// leave drops the gateway voice state and any Lavalink player for the guild.
func (c *LavalinkConnector) leave(ctx context.Context, guildID snowflake.ID) {
	if player := c.link.ExistingPlayer(guildID); player != nil {
		if err := player.Destroy(ctx); err != nil {
			slog.Warn("failed to destroy player", "guild", guildID, "error", err)
		}
	}
	if err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, true); err != nil {
		slog.Warn("failed to leave voice channel", "guild", guildID, "error", err)
	}
	c.clearVoiceBuffer(guildID)
}

// player returns the guild's player, creating it on the best node.
func (c *LavalinkConnector) player(guildID snowflake.ID) (disgolink.Player, error) {
	if player := c.link.ExistingPlayer(guildID); player != nil {
		return player, nil
	}
	if c.link.BestNode() == nil {
		return nil, ErrNoLavalinkNode
	}
	return c.link.Player(guildID), nil
}

func (c *LavalinkConnector) sink(guildID snowflake.ID) *LavalinkSink {
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()
	return c.sinks[guildID]
}

func (c *LavalinkConnector) forget(guildID snowflake.ID, sink *LavalinkSink) {
	c.sinksMu.Lock()
	defer c.sinksMu.Unlock()
	if c.sinks[guildID] == sink {
		delete(c.sinks, guildID)
	}
}

// loadTrack resolves identifier into an encoded track on the best node.
func (c *LavalinkConnector) loadTrack(ctx context.Context, identifier string) (lavalink.Track, error) {
	node := c.link.BestNode()
	if node == nil {
		return lavalink.Track{}, ErrNoLavalinkNode
	}

	result, err := node.LoadTracks(ctx, identifier)
	if err != nil {
		return lavalink.Track{}, fmt.Errorf("failed to load track: %w", err)
	}
	return firstTrack(result)
}

// firstTrack picks the playable track of a load result. Playlists are not
// imported; only their selected (or first) track is used.
func firstTrack(result *lavalink.LoadResult) (lavalink.Track, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return data, nil
	case lavalink.Search:
		if len(data) > 0 {
			return data[0], nil
		}
	case lavalink.Playlist:
		if len(data.Tracks) > 0 {
			index := data.Info.SelectedTrack
			if index < 0 || index >= len(data.Tracks) {
				index = 0
			}
			return data.Tracks[index], nil
		}
	case lavalink.Exception:
		return lavalink.Track{}, fmt.Errorf("%w: %s", ports.ErrExtractionFailed, data.Message)
	}
	return lavalink.Track{}, ports.ErrNoResults
}

// OnVoiceServerUpdate forwards Discord voice server updates.
// This must be called from the Discord event handler.
func (c *LavalinkConnector) OnVoiceServerUpdate(event *discordgo.VoiceServerUpdate) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	buffer := c.getOrCreateVoiceBuffer(guildID)
	if buffer.setVoiceServer(event.Token, event.Endpoint) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, false)
}

// OnVoiceStateUpdate forwards the bot's own Discord voice state updates.
// This must be called from the Discord event handler.
func (c *LavalinkConnector) OnVoiceStateUpdate(event *discordgo.VoiceStateUpdate) {
	if event.UserID != c.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	var channelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		channelID = &id
	}

	// A disconnect does not wait for a server update
	if channelID == nil {
		c.link.OnVoiceStateUpdate(context.Background(), guildID, nil, event.SessionID)
		c.clearVoiceBuffer(guildID)
		return
	}

	buffer := c.getOrCreateVoiceBuffer(guildID)
	if buffer.setVoiceState(channelID, event.SessionID) {
		c.forwardBufferedVoiceEvents(guildID, buffer)
	}

	c.signalPending(guildID, true)
}

func (c *LavalinkConnector) signalPending(guildID snowflake.ID, isVoiceState bool) {
	c.pendingMu.Lock()
	pending := c.pending[guildID]
	c.pendingMu.Unlock()

	if pending != nil {
		pending.onEvent(isVoiceState)
	}
}

func (c *LavalinkConnector) getOrCreateVoiceBuffer(guildID snowflake.ID) *voiceEventBuffer {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()

	buffer, exists := c.voiceBuffers[guildID]
	if !exists {
		buffer = &voiceEventBuffer{}
		c.voiceBuffers[guildID] = buffer
	}
	return buffer
}

func (c *LavalinkConnector) clearVoiceBuffer(guildID snowflake.ID) {
	c.voiceBufferMu.Lock()
	defer c.voiceBufferMu.Unlock()
	delete(c.voiceBuffers, guildID)
}

func (c *LavalinkConnector) forwardBufferedVoiceEvents(guildID snowflake.ID, buffer *voiceEventBuffer) {
	channelID, sessionID, token, endpoint := buffer.take()

	slog.Debug("forwarding buffered voice events to Lavalink",
		"guild", guildID,
		"channel", channelID,
		"hasSessionID", sessionID != "",
	)

	c.link.OnVoiceStateUpdate(context.Background(), guildID, channelID, sessionID)
	c.link.OnVoiceServerUpdate(context.Background(), guildID, token, endpoint)
}

func (c *LavalinkConnector) onTrackEnd(player disgolink.Player, event lavalink.TrackEndEvent) {
	slog.Debug("track ended", "guild", player.GuildID(), "reason", event.Reason)

	// A replaced track is followed by the start of its replacement
	if event.Reason == lavalink.TrackEndReasonReplaced {
		return
	}

	if sink := c.sink(player.GuildID()); sink != nil {
		var err error
		if event.Reason == lavalink.TrackEndReasonLoadFailed {
			err = sink.takeException()
			if err == nil {
				err = errors.New("track failed to load")
			}
		}
		sink.finish(err)
	}
}

func (c *LavalinkConnector) onTrackException(player disgolink.Player, event lavalink.TrackExceptionEvent) {
	slog.Warn("track exception", "guild", player.GuildID(), "error", event.Exception.Message)

	if sink := c.sink(player.GuildID()); sink != nil {
		sink.recordException(errors.New(event.Exception.Message))
	}
}

func (c *LavalinkConnector) onTrackStuck(player disgolink.Player, event lavalink.TrackStuckEvent) {
	slog.Warn("track stuck", "guild", player.GuildID(), "threshold", event.Threshold)
}

// Close disconnects every sink and closes the Lavalink client.
func (c *LavalinkConnector) Close() {
	c.sinksMu.Lock()
	sinks := make([]*LavalinkSink, 0, len(c.sinks))
	for _, sink := range c.sinks {
		sinks = append(sinks, sink)
	}
	c.sinksMu.Unlock()

	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), lavalinkRequestTimeout)
		_ = sink.Disconnect(ctx)
		cancel()
	}
	c.link.Close()
}

// LavalinkSink is a guild's Lavalink player. Player updates go through an
// ordered request queue so callers never wait on the node.
type LavalinkSink struct {
	connector *LavalinkConnector
	guildID   snowflake.ID
	requests  *requestQueue

	mu         sync.Mutex
	channelID  snowflake.ID
	connected  bool
	playing    bool
	paused     bool
	onComplete ports.CompletionFunc
	exception  error
}

// Move switches the bot to another voice channel of the same guild.
func (s *LavalinkSink) Move(_ context.Context, channelID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrSinkClosed
	}
	err := s.connector.session.ChannelVoiceJoinManual(s.guildID.String(), channelID.String(), false, true)
	if err != nil {
		return fmt.Errorf("failed to change voice channel: %w", err)
	}
	s.channelID = channelID
	return nil
}

// ChannelID returns the voice channel the sink is connected to.
func (s *LavalinkSink) ChannelID() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Play loads source on the Lavalink node and starts it in the background. A
// track that cannot be loaded or started completes with ports.ErrPlaybackFailed.
// Lavalink resolves page URLs itself, so the origin URL is preferred over the
// extracted stream.
func (s *LavalinkSink) Play(_ context.Context, source ports.AudioSource, onComplete ports.CompletionFunc) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	if s.playing || s.paused {
		s.mu.Unlock()
		return ErrSinkBusy
	}
	s.playing = true
	s.onComplete = onComplete
	s.exception = nil
	s.mu.Unlock()

	identifier := source.OriginURL
	if identifier == "" {
		identifier = source.Reference
	}

	queued := s.requests.enqueue(func(ctx context.Context) {
		if err := s.start(ctx, identifier); err != nil {
			if !s.IsConnected() {
				// Disconnect cancelled the start and completes the source itself
				s.finish(nil)
				return
			}
			s.finish(fmt.Errorf("%w: %w", ports.ErrPlaybackFailed, err))
		}
	})
	if !queued {
		s.mu.Lock()
		s.playing = false
		s.onComplete = nil
		s.mu.Unlock()
		return ErrSinkClosed
	}
	return nil
}

func (s *LavalinkSink) start(ctx context.Context, identifier string) error {
	track, err := s.connector.loadTrack(ctx, identifier)
	if err != nil {
		return err
	}

	player, err := s.connector.player(s.guildID)
	if err != nil {
		return err
	}
	if err := player.Update(ctx, lavalink.WithEncodedTrack(track.Encoded)); err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}
	return nil
}

// Pause pauses the Lavalink player.
func (s *LavalinkSink) Pause(context.Context) error {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.playing, s.paused = false, true
	s.mu.Unlock()

	s.setPaused(true)
	return nil
}

// Resume resumes the Lavalink player.
func (s *LavalinkSink) Resume(context.Context) error {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return ErrNothingPlaying
	}
	s.playing, s.paused = true, false
	s.mu.Unlock()

	s.setPaused(false)
	return nil
}

func (s *LavalinkSink) setPaused(paused bool) {
	s.requests.enqueue(func(ctx context.Context) {
		player, err := s.connector.player(s.guildID)
		if err == nil {
			err = player.Update(ctx, lavalink.WithPaused(paused))
		}
		if err != nil {
			slog.Warn("failed to update pause state", "guild", s.guildID, "paused", paused, "error", err)
		}
	})
}

// Stop clears the player's track without waiting for the node. Lavalink
// answers with a TrackEnd event, which completes the source.
func (s *LavalinkSink) Stop(context.Context) error {
	if s.IsIdle() {
		return nil
	}
	s.requests.enqueue(func(ctx context.Context) {
		player, err := s.connector.player(s.guildID)
		if err == nil {
			err = player.Update(ctx, lavalink.WithNullTrack(), lavalink.WithPaused(false))
		}
		if err != nil {
			slog.Warn("failed to stop playback", "guild", s.guildID, "error", err)
			// No TrackEnd will follow, so complete here
			s.finish(nil)
		}
	})
	return nil
}

// IsIdle reports whether no source is playing or paused.
func (s *LavalinkSink) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing && !s.paused
}

// IsPlaying reports whether a track is playing and not paused.
func (s *LavalinkSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// IsPaused reports whether the track is paused.
func (s *LavalinkSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// IsConnected reports whether the bot is still in the voice channel.
func (s *LavalinkSink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect drops pending player updates, destroys the player and leaves the
// voice channel.
func (s *LavalinkSink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	s.mu.Unlock()

	s.requests.close()
	s.connector.forget(s.guildID, s)
	s.connector.leave(ctx, s.guildID)
	s.finish(nil)
	return nil
}

// finish marks the sink idle and fires the completion callback once.
func (s *LavalinkSink) finish(err error) {
	s.mu.Lock()
	onComplete := s.onComplete
	s.onComplete = nil
	s.playing, s.paused = false, false
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(err)
	}
}

func (s *LavalinkSink) recordException(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exception = err
}

func (s *LavalinkSink) takeException() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.exception
	s.exception = nil
	return err
}

// Ensure LavalinkConnector and LavalinkSink implement their ports.
var (
	_ ports.VoiceConnector = (*LavalinkConnector)(nil)
	_ ports.VoiceSink      = (*LavalinkSink)(nil)
)
