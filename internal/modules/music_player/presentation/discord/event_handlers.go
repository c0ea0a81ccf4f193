package discord

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/bot"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// How long transient control-surface notices stay visible.
const (
	statusNoticeTTL = 3 * time.Second
	emptyNoticeTTL  = 5 * time.Second
	queueNoticeTTL  = 15 * time.Second
)

// EventHandlers handles Discord gateway events for the music player.
type EventHandlers struct {
	botID        snowflake.ID
	voiceChannel *usecases.VoiceChannelService
	control      *usecases.ControlService
}

// NewEventHandlers creates a new EventHandlers.
func NewEventHandlers(
	botID snowflake.ID,
	voiceChannel *usecases.VoiceChannelService,
	control *usecases.ControlService,
) *EventHandlers {
	return &EventHandlers{
		botID:        botID,
		voiceChannel: voiceChannel,
		control:      control,
	}
}

// HandleVoiceStateUpdate handles VoiceStateUpdate events for the bot.
func (h *EventHandlers) HandleVoiceStateUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	// Only handle updates for the bot itself
	if event.UserID != h.botID.String() {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	// Parse the channel ID - nil means disconnected
	var newChannelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		newChannelID = &id
	}

	h.voiceChannel.HandleBotVoiceStateChange(context.Background(), usecases.BotVoiceStateChangeInput{
		GuildID:      guildID,
		NewChannelID: newChannelID,
	})
}

// HandleReactionAdd turns reactions on the current control surface into
// playback controls.
func (h *EventHandlers) HandleReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" || r.UserID == h.botID.String() {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}

	input, ok := domain.ParseControlInput(r.Emoji.Name)
	if !ok {
		return
	}

	ids, err := parseIDs(r.GuildID, r.ChannelID, r.MessageID, r.UserID)
	if err != nil {
		slog.Warn("failed to parse reaction IDs", "error", err)
		return
	}

	event := usecases.ControlInputEvent{
		GuildID:   ids[0],
		ChannelID: ids[1],
		MessageID: ids[2],
		UserID:    ids[3],
		Input:     input,
	}

	retract := h.handleControl(context.Background(), event, bot.NewChannelResponder(s, r.ChannelID))
	if !retract {
		return
	}

	if err := s.MessageReactionRemove(r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID); err != nil {
		slog.Debug("failed to remove control reaction", "guild", event.GuildID, "error", err)
	}
}

// handleControl dispatches the input and posts its transient notice. It reports
// whether the input was accepted, in which case the user's reaction is retracted.
func (h *EventHandlers) handleControl(
	ctx context.Context,
	event usecases.ControlInputEvent,
	r bot.Responder,
) bool {
	output, err := h.control.Dispatch(ctx, event)
	if err != nil {
		slog.Warn("failed to apply control input",
			"guild", event.GuildID,
			"input", event.Input.String(),
			"error", err,
		)
		if message, ok := controlErrorMessage(err); ok {
			sendNotice(r, bot.Reply{Content: message, DeleteAfter: emptyNoticeTTL})
		}
		return true
	}
	if !output.Accepted() {
		return false
	}

	if reply, ok := controlNotice(output); ok {
		sendNotice(r, reply)
	}
	return true
}

func sendNotice(r bot.Responder, reply bot.Reply) {
	if err := r.Reply(reply); err != nil {
		slog.Debug("failed to send control notice", "error", err)
	}
}

// controlNotice returns the transient reply for an accepted control input.
func controlNotice(output *usecases.ControlOutput) (bot.Reply, bool) {
	switch output.Outcome {
	case usecases.OutcomePaused:
		return bot.Reply{Content: "⏸️ Paused", DeleteAfter: statusNoticeTTL}, true
	case usecases.OutcomeResumed:
		return bot.Reply{Content: "▶️ Resumed", DeleteAfter: statusNoticeTTL}, true
	case usecases.OutcomeSkipped:
		return bot.Reply{Content: "⏭️ Skipped", DeleteAfter: statusNoticeTTL}, true
	case usecases.OutcomeStopped:
		return bot.Reply{Content: "⏹️ Stopped", DeleteAfter: statusNoticeTTL}, true
	case usecases.OutcomeQueueShown:
		return bot.Reply{
			Embeds:      []*discordgo.MessageEmbed{queueEmbed(output.Queue, false)},
			DeleteAfter: queueNoticeTTL,
		}, true
	case usecases.OutcomeQueueEmpty:
		return bot.Reply{Content: "📭 Queue is empty!", DeleteAfter: emptyNoticeTTL}, true
	case usecases.OutcomeLocalQueued:
		if output.Play == nil || output.Play.Started {
			return bot.Reply{}, false
		}
		return bot.Reply{Content: queuedMessage(output.Play.Song), DeleteAfter: emptyNoticeTTL}, true
	default:
		return bot.Reply{}, false
	}
}

// controlErrorMessage maps failures of follow-up work (rejoining, loading the
// local shortcut) to a user-facing notice.
func controlErrorMessage(err error) (string, bool) {
	var invalid *ports.InvalidSongNumberError
	switch {
	case errors.Is(err, usecases.ErrUserNotInVoice),
		errors.Is(err, ports.ErrConnectTimeout),
		errors.Is(err, ports.ErrConnectRejected):
		return connectionMessage(err), true
	case errors.As(err, &invalid),
		errors.Is(err, ports.ErrNoLocalSongs),
		errors.Is(err, ports.ErrLocalLibraryDisabled):
		return resolutionMessage(err), true
	default:
		return "", false
	}
}
