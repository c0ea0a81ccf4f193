package domain

import "github.com/disgoorg/snowflake/v2"

// ControlMessage identifies a published control surface. Only the most recent
// one per guild accepts control inputs.
type ControlMessage struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

func NewControlMessage(channelID snowflake.ID, messageID snowflake.ID) ControlMessage {
	return ControlMessage{
		ChannelID: channelID,
		MessageID: messageID,
	}
}
