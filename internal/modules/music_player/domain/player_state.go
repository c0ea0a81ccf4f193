package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// PlayerState is the playback state of one guild: its queue, the text channel
// that receives control surfaces and the currently authoritative control message.
type PlayerState struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Text channel where control surfaces are published
	controlMessage        *ControlMessage
	Queue
}

// NewPlayerState creates an empty PlayerState for the given guild.
func NewPlayerState(guildID, notificationChannelID snowflake.ID) *PlayerState {
	return &PlayerState{
		GuildID:               guildID,
		NotificationChannelID: notificationChannelID,
		Queue:                 NewQueue(),
	}
}

// SetNotificationChannel updates the channel for control surfaces. Zero is ignored.
func (p *PlayerState) SetNotificationChannel(channelID snowflake.ID) {
	if channelID == 0 {
		return
	}
	p.NotificationChannelID = channelID
}

// ControlMessage returns the current control message, or nil if none was published.
func (p *PlayerState) ControlMessage() *ControlMessage {
	return p.controlMessage
}

// SetControlMessage records a newly published control surface and returns the
// one it supersedes, if any.
func (p *PlayerState) SetControlMessage(msg ControlMessage) *ControlMessage {
	previous := p.controlMessage
	p.controlMessage = &msg
	return previous
}

// IsControlMessage reports whether messageID is the guild's current control message.
func (p *PlayerState) IsControlMessage(messageID snowflake.ID) bool {
	return p.controlMessage != nil && p.controlMessage.MessageID == messageID
}
