package ports

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"
)

// Connection errors returned by VoiceConnector implementations. A failed connect
// never leaves a half-open connection behind.
var (
	// ErrConnectTimeout is returned when the voice connection is not ready in time.
	ErrConnectTimeout = errors.New("timed out connecting to voice channel")

	// ErrConnectRejected is returned when the platform refuses the connection,
	// usually because of missing Connect or Speak permissions.
	ErrConnectRejected = errors.New("voice connection rejected")

	// ErrPlaybackFailed wraps the error a sink reports through its completion
	// callback when a source it accepted could not be started.
	ErrPlaybackFailed = errors.New("playback failed to start")
)

// AudioSource describes what a sink should render.
type AudioSource struct {
	Reference string // stream URI or file path
	OriginURL string // page URL, preferred by backends that resolve on their own
	Title     string

	// Reconnect enables reconnect-on-drop transport options for network streams.
	Reconnect bool
}

// CompletionFunc is called exactly once when a started source stops rendering,
// whether it finished, failed (err != nil) or was stopped. It runs on the sink's
// own goroutine after the sink has become idle.
type CompletionFunc func(err error)

// VoiceSink is a guild's single audio connection to a voice channel. Play,
// Pause, Resume and Stop are called from the event loop, so they must not wait
// on transport or process I/O; outcomes that arrive later are reported through
// the completion callback.
type VoiceSink interface {
	// Move switches the connection to another voice channel of the same guild.
	Move(ctx context.Context, channelID snowflake.ID) error

	// ChannelID returns the voice channel the sink is connected to.
	ChannelID() snowflake.ID

	// Play starts rendering source without blocking.
	Play(ctx context.Context, source AudioSource, onComplete CompletionFunc) error

	// Pause suspends rendering.
	Pause(ctx context.Context) error

	// Resume continues a paused source.
	Resume(ctx context.Context) error

	// Stop ends the current source, which fires its completion callback. It may
	// return before the sink is idle.
	Stop(ctx context.Context) error

	IsPlaying() bool
	IsPaused() bool
	IsConnected() bool

	// Disconnect stops any source and leaves the voice channel.
	Disconnect(ctx context.Context) error
}

// VoiceConnector opens voice sinks.
type VoiceConnector interface {
	// Connect joins the voice channel and returns a ready sink.
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (VoiceSink, error)
}
