package infrastructure

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"layeh.com/gopus"
)

// Opus parameters expected by the Discord voice gateway.
const (
	sampleRate   = 48000
	channels     = 2
	frameSize    = 960 // 20ms at 48kHz
	maxOpusBytes = 4000

	// opusSendTimeout guards against a voice connection that stopped draining packets.
	opusSendTimeout = 2 * time.Second

	// ffmpegWaitDelay bounds how long a killed ffmpeg may keep its output open.
	ffmpegWaitDelay = 2 * time.Second
)

// Sink errors.
var (
	ErrSinkClosed     = errors.New("voice sink is disconnected")
	ErrSinkBusy       = errors.New("voice sink is already playing")
	ErrNothingPlaying = errors.New("voice sink is not playing")
)

// FFmpegConnector joins voice channels through the discordgo voice client and
// returns sinks that transcode with an external ffmpeg process. It keeps one
// sink per guild, since discordgo shares one voice connection per guild.
type FFmpegConnector struct {
	session    *discordgo.Session
	ffmpegPath string

	mu    sync.Mutex
	sinks map[snowflake.ID]*FFmpegSink
}

// NewFFmpegConnector creates a new FFmpegConnector.
func NewFFmpegConnector(session *discordgo.Session, ffmpegPath string) *FFmpegConnector {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegConnector{
		session:    session,
		ffmpegPath: ffmpegPath,
		sinks:      make(map[snowflake.ID]*FFmpegSink),
	}
}

// Connect joins the voice channel and waits until the connection is ready.
func (c *FFmpegConnector) Connect(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceSink, error) {
	c.mu.Lock()
	existing := c.sinks[guildID]
	c.mu.Unlock()

	if existing != nil && existing.IsConnected() {
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

	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}
	done := make(chan joinResult, 1)
	go func() {
		vc, err := c.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
		done <- joinResult{vc: vc, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			c.abandon(guildID, result.vc)
			return nil, fmt.Errorf("failed to join voice channel: %w", result.err)
		}

		sink := &FFmpegSink{
			guildID:    guildID,
			channelID:  channelID,
			ffmpegPath: c.ffmpegPath,
			vc:         result.vc,
			connected:  true,
			onClose:    func(s *FFmpegSink) { c.forget(guildID, s) },
		}
		c.mu.Lock()
		c.sinks[guildID] = sink
		c.mu.Unlock()

		slog.Debug("voice connection ready", "guild", guildID, "channel", channelID)
		return sink, nil

	case <-ctx.Done():
		// The join keeps running in discordgo; tear it down once it settles
		go func() {
			result := <-done
			c.abandon(guildID, result.vc)
		}()
		return nil, fmt.Errorf("%w: %w", ports.ErrConnectTimeout, ctx.Err())
	}
}

// abandon leaves a voice channel after a failed join so nothing stays half open.
func (c *FFmpegConnector) abandon(guildID snowflake.ID, vc *discordgo.VoiceConnection) {
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			slog.Debug("failed to close abandoned voice connection", "guild", guildID, "error", err)
		}
		return
	}
	if err := c.session.ChannelVoiceJoinManual(guildID.String(), "", false, true); err != nil {
		slog.Debug("failed to leave abandoned voice channel", "guild", guildID, "error", err)
	}
}

func (c *FFmpegConnector) forget(guildID snowflake.ID, sink *FFmpegSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sinks[guildID] == sink {
		delete(c.sinks, guildID)
	}
}

// FFmpegSink renders audio into a discordgo voice connection. Each source is
// decoded by ffmpeg to 48kHz stereo PCM and encoded to opus frames with gopus.
type FFmpegSink struct {
	guildID    snowflake.ID
	ffmpegPath string
	onClose    func(*FFmpegSink)

	mu        sync.Mutex
	vc        *discordgo.VoiceConnection
	channelID snowflake.ID
	connected bool
	current   *ffmpegPlayback
}

// ffmpegPlayback is one running source.
type ffmpegPlayback struct {
	cancel  context.CancelFunc
	done    chan struct{}
	resumed chan struct{} // non-nil while paused, closed on resume
}

// Move switches the voice connection to another channel of the same guild.
func (s *FFmpegSink) Move(_ context.Context, channelID snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrSinkClosed
	}
	if err := s.vc.ChangeChannel(channelID.String(), false, true); err != nil {
		return fmt.Errorf("failed to change voice channel: %w", err)
	}
	s.channelID = channelID
	return nil
}

// ChannelID returns the voice channel the sink is connected to.
func (s *FFmpegSink) ChannelID() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// Play starts ffmpeg for source and streams it in the background.
func (s *FFmpegSink) Play(_ context.Context, source ports.AudioSource, onComplete ports.CompletionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrSinkClosed
	}
	if s.current != nil {
		return ErrSinkBusy
	}

	// Cancelling the playback kills ffmpeg, which closes its output and
	// unblocks the pump even when ffmpeg never wrote a frame
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.ffmpegPath, ffmpegArgs(source)...)
	cmd.Stderr = io.Discard
	cmd.WaitDelay = ffmpegWaitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	playback := &ffmpegPlayback{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = playback

	go s.stream(ctx, playback, cmd, stdout, s.vc, onComplete)

	return nil
}

func (s *FFmpegSink) stream(
	ctx context.Context,
	playback *ffmpegPlayback,
	cmd *exec.Cmd,
	stdout io.Reader,
	vc *discordgo.VoiceConnection,
	onComplete ports.CompletionFunc,
) {
	err := s.pump(ctx, playback, stdout, vc)
	stopped := ctx.Err() != nil

	// A pump that failed early leaves ffmpeg running; cancelling kills it
	playback.cancel()
	waitErr := cmd.Wait()

	switch {
	case stopped:
		err = nil
	case err == nil && waitErr != nil:
		// ffmpeg closed its output; a failed decode shows up in the exit status
		err = fmt.Errorf("ffmpeg exited: %w", waitErr)
	}

	s.mu.Lock()
	if s.current == playback {
		s.current = nil
	}
	s.mu.Unlock()
	close(playback.done)

	if onComplete != nil {
		onComplete(err)
	}
}

func (s *FFmpegSink) pump(
	ctx context.Context,
	playback *ffmpegPlayback,
	stdout io.Reader,
	vc *discordgo.VoiceConnection,
) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := vc.Speaking(true); err != nil {
		slog.Debug("failed to set speaking state", "guild", s.guildID, "error", err)
	}
	defer func() { _ = vc.Speaking(false) }()

	return streamOpus(ctx, stdout, encoder, vc.OpusSend, func(ctx context.Context) error {
		return s.waitIfPaused(ctx, playback)
	})
}

// waitIfPaused blocks while playback is paused.
func (s *FFmpegSink) waitIfPaused(ctx context.Context, playback *ffmpegPlayback) error {
	s.mu.Lock()
	resumed := playback.resumed
	s.mu.Unlock()

	if resumed == nil {
		return nil
	}
	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause suspends the current source.
func (s *FFmpegSink) Pause(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNothingPlaying
	}
	if s.current.resumed == nil {
		s.current.resumed = make(chan struct{})
	}
	return nil
}

// Resume continues a paused source.
func (s *FFmpegSink) Resume(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNothingPlaying
	}
	if s.current.resumed != nil {
		close(s.current.resumed)
		s.current.resumed = nil
	}
	return nil
}

// Stop ends the current source without waiting for it. ffmpeg is killed and
// the completion callback fires from the streaming goroutine once it exited.
func (s *FFmpegSink) Stop(context.Context) error {
	s.mu.Lock()
	playback := s.current
	s.mu.Unlock()

	if playback != nil {
		playback.cancel()
	}
	return nil
}

// wait blocks until the current source, if any, has stopped rendering.
func (s *FFmpegSink) wait(ctx context.Context) error {
	s.mu.Lock()
	playback := s.current
	s.mu.Unlock()

	if playback == nil {
		return nil
	}
	select {
	case <-playback.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPlaying reports whether a source is rendering and not paused.
func (s *FFmpegSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.resumed == nil
}

// IsPaused reports whether the current source is paused.
func (s *FFmpegSink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.resumed != nil
}

// IsConnected reports whether the sink still owns its voice connection.
func (s *FFmpegSink) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect stops any source and leaves the voice channel.
func (s *FFmpegSink) Disconnect(ctx context.Context) error {
	_ = s.Stop(ctx)
	if err := s.wait(ctx); err != nil {
		slog.Debug("source still running while disconnecting", "guild", s.guildID, "error", err)
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	vc := s.vc
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose(s)
	}

	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect voice connection: %w", err)
	}
	return nil
}

// ffmpegArgs builds the ffmpeg command line that decodes source to raw PCM on
// stdout. Network streams get reconnect options so short drops do not end the song.
func ffmpegArgs(source ports.AudioSource) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if source.Reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", source.Reference,
		"-vn",
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"pipe:1",
	)
}

// opusEncoder is the subset of *gopus.Encoder used for streaming.
type opusEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// streamOpus reads 20ms PCM frames from r, encodes them and sends the packets.
// It returns nil at the end of the input.
func streamOpus(
	ctx context.Context,
	r io.Reader,
	encoder opusEncoder,
	send chan<- []byte,
	waitIfPaused func(context.Context) error,
) error {
	reader := bufio.NewReaderSize(r, 1<<16)
	pcm := make([]int16, frameSize*channels)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := waitIfPaused(ctx); err != nil {
			return err
		}

		if err := binary.Read(reader, binary.LittleEndian, pcm); err != nil {
			// A trailing partial frame is dropped
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to read pcm: %w", err)
		}

		packet, err := encoder.Encode(pcm, frameSize, maxOpusBytes)
		if err != nil {
			return fmt.Errorf("failed to encode opus frame: %w", err)
		}

		select {
		case send <- packet:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opusSendTimeout):
			return errors.New("voice connection stopped accepting audio")
		}
	}
}

// checkVoicePermissions rejects channels the bot cannot connect or speak in.
// Unknown permissions are left for the platform to decide.
func checkVoicePermissions(session *discordgo.Session, channelID snowflake.ID) error {
	if session.State == nil || session.State.User == nil {
		return nil
	}

	perms, err := session.State.UserChannelPermissions(session.State.User.ID, channelID.String())
	if err != nil {
		return nil
	}

	required := int64(discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak)
	if perms&required != required {
		return ports.ErrConnectRejected
	}
	return nil
}

// Ensure FFmpegConnector and FFmpegSink implement their ports.
var (
	_ ports.VoiceConnector = (*FFmpegConnector)(nil)
	_ ports.VoiceSink      = (*FFmpegSink)(nil)
)
