package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// NowPlaying is the content of a now-playing control surface.
type NowPlaying struct {
	Song         domain.Song
	LoopEnabled  bool
	LocalEnabled bool // offer the local song shortcut
}

// ControlSurface publishes now-playing cards carrying the control affordances.
// Calls block on the platform and are made off the event loop.
type ControlSurface interface {
	// Publish sends a now-playing card with its controls to the channel.
	Publish(ctx context.Context, channelID snowflake.ID, info NowPlaying) (domain.ControlMessage, error)

	// Retire removes the controls from a superseded card. Failures are not reported.
	Retire(ctx context.Context, msg domain.ControlMessage)

	// Notify sends a plain notice to the channel.
	Notify(ctx context.Context, channelID snowflake.ID, message string) error
}
