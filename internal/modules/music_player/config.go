package music_player

import (
	"errors"
	"fmt"
	"time"
)

// Audio backends selectable with AUDIO_BACKEND.
const (
	BackendFFmpeg   = "ffmpeg"
	BackendLavalink = "lavalink"
)

// Config holds the music player module configuration.
type Config struct {
	AudioBackend        string        `env:"AUDIO_BACKEND"         envDefault:"ffmpeg"`
	FFmpegPath          string        `env:"FFMPEG_PATH"           envDefault:"ffmpeg"`
	VoiceConnectTimeout time.Duration `env:"VOICE_CONNECT_TIMEOUT" envDefault:"10s"`
	LocalMusicDir       string        `env:"LOCAL_MUSIC_DIR"`

	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE"`
}

// Validate checks the settings that depend on the selected backend.
func (c *Config) Validate() error {
	switch c.AudioBackend {
	case BackendFFmpeg:
		if c.FFmpegPath == "" {
			return errors.New("FFMPEG_PATH must not be empty")
		}
	case BackendLavalink:
		if c.LavalinkAddress == "" || c.LavalinkPassword == "" {
			return errors.New("LAVALINK_ADDRESS and LAVALINK_PASSWORD are required for the lavalink backend")
		}
	default:
		return fmt.Errorf("unknown AUDIO_BACKEND %q", c.AudioBackend)
	}

	if c.VoiceConnectTimeout <= 0 {
		return fmt.Errorf("VOICE_CONNECT_TIMEOUT must be positive, got %s", c.VoiceConnectTimeout)
	}
	return nil
}
