package usecases

import (
	"maps"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
)

// SinkRegistry holds the voice sink of every connected guild.
// It is only accessed from event loop tasks and therefore has no lock.
type SinkRegistry struct {
	sinks map[snowflake.ID]ports.VoiceSink
}

// NewSinkRegistry creates an empty SinkRegistry.
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{
		sinks: make(map[snowflake.ID]ports.VoiceSink),
	}
}

// Get returns the guild's sink, or nil if the guild is not connected.
func (r *SinkRegistry) Get(guildID snowflake.ID) ports.VoiceSink {
	return r.sinks[guildID]
}

// Connected returns the guild's sink only if it is still connected.
func (r *SinkRegistry) Connected(guildID snowflake.ID) ports.VoiceSink {
	sink := r.sinks[guildID]
	if sink == nil || !sink.IsConnected() {
		return nil
	}
	return sink
}

// Set registers the guild's sink.
func (r *SinkRegistry) Set(guildID snowflake.ID, sink ports.VoiceSink) {
	r.sinks[guildID] = sink
}

// Remove unregisters and returns the guild's sink, or nil if there was none.
func (r *SinkRegistry) Remove(guildID snowflake.ID) ports.VoiceSink {
	sink := r.sinks[guildID]
	delete(r.sinks, guildID)
	return sink
}

// Drain unregisters and returns every sink.
func (r *SinkRegistry) Drain() map[snowflake.ID]ports.VoiceSink {
	drained := maps.Clone(r.sinks)
	clear(r.sinks)
	return drained
}

// isIdle reports whether a sink is neither playing nor paused.
func isIdle(sink ports.VoiceSink) bool {
	return !sink.IsPlaying() && !sink.IsPaused()
}
