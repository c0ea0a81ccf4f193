package domain

import "github.com/disgoorg/snowflake/v2"

// PlayerStateRepository stores the PlayerState of every guild.
type PlayerStateRepository interface {
	// Get returns the state for a guild, or nil if none exists yet.
	Get(guildID snowflake.ID) *PlayerState

	// GetOrCreate returns the state for a guild, creating an empty one on first use.
	GetOrCreate(guildID, notificationChannelID snowflake.ID) *PlayerState

	// Save stores the state under its guild ID.
	Save(state *PlayerState)

	// Delete removes the state for a guild.
	Delete(guildID snowflake.ID)
}
