package bot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Reply is a message sent back to whoever triggered a command or control input.
type Reply struct {
	Content string
	Embeds  []*discordgo.MessageEmbed

	// Ephemeral hides the reply from other users where the platform supports it.
	Ephemeral bool

	// DeleteAfter removes the reply after the given delay. Zero keeps it.
	DeleteAfter time.Duration
}

// Responder is the reply sink handed to every command and control handler.
// This interface enables testing handlers without a live Discord connection.
type Responder interface {
	// Reply sends a text and/or embed reply.
	Reply(reply Reply) error
}

// InteractionResponder replies to a slash command interaction. The first reply
// answers the interaction, later replies are sent as followup messages.
type InteractionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

// NewInteractionResponder creates a new InteractionResponder.
func NewInteractionResponder(s *discordgo.Session, i *discordgo.Interaction) *InteractionResponder {
	return &InteractionResponder{
		session:     s,
		interaction: i,
	}
}

// Reply sends the reply via the Discord interaction API.
func (r *InteractionResponder) Reply(reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flags discordgo.MessageFlags
	if reply.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	if !r.responded {
		err := r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: reply.Content,
				Embeds:  reply.Embeds,
				Flags:   flags,
			},
		})
		if err != nil {
			return err
		}
		r.responded = true

		if reply.DeleteAfter > 0 {
			time.AfterFunc(reply.DeleteAfter, func() {
				if err := r.session.InteractionResponseDelete(r.interaction); err != nil {
					slog.Debug("failed to delete interaction response", "error", err)
				}
			})
		}
		return nil
	}

	msg, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: reply.Content,
		Embeds:  reply.Embeds,
		Flags:   flags,
	})
	if err != nil {
		return err
	}

	if reply.DeleteAfter > 0 {
		time.AfterFunc(reply.DeleteAfter, func() {
			if err := r.session.FollowupMessageDelete(r.interaction, msg.ID); err != nil {
				slog.Debug("failed to delete followup message", "error", err)
			}
		})
	}
	return nil
}

// ChannelResponder replies with plain channel messages. It serves prefixed text
// commands and reaction controls, which have no interaction to answer.
type ChannelResponder struct {
	session   *discordgo.Session
	channelID string
}

// NewChannelResponder creates a new ChannelResponder for the given text channel.
func NewChannelResponder(s *discordgo.Session, channelID string) *ChannelResponder {
	return &ChannelResponder{
		session:   s,
		channelID: channelID,
	}
}

// Reply sends the reply as a new message in the channel. A channel message
// cannot be hidden from other users, so ephemeral replies are dropped.
func (r *ChannelResponder) Reply(reply Reply) error {
	if reply.Ephemeral {
		return nil
	}

	msg, err := r.session.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Content: reply.Content,
		Embeds:  reply.Embeds,
	})
	if err != nil {
		return err
	}

	if reply.DeleteAfter > 0 {
		time.AfterFunc(reply.DeleteAfter, func() {
			if err := r.session.ChannelMessageDelete(r.channelID, msg.ID); err != nil {
				slog.Debug("failed to delete transient message", "channel", r.channelID, "error", err)
			}
		})
	}
	return nil
}

// MockResponder is a test double for Responder.
type MockResponder struct {
	Replies []Reply
	Err     error
}

// Reply records the reply for testing.
func (m *MockResponder) Reply(reply Reply) error {
	m.Replies = append(m.Replies, reply)
	return m.Err
}

// LastReply returns the most recent reply, or nil if none was sent.
func (m *MockResponder) LastReply() *Reply {
	if len(m.Replies) == 0 {
		return nil
	}
	return &m.Replies[len(m.Replies)-1]
}

// Compile-time interface checks.
var (
	_ Responder = (*InteractionResponder)(nil)
	_ Responder = (*ChannelResponder)(nil)
	_ Responder = (*MockResponder)(nil)
)
