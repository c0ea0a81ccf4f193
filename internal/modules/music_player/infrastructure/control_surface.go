package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// Embed colors.
const (
	colorNowPlaying = 0x2ECC71
)

// DiscordControlSurface publishes now-playing cards whose reactions act as
// playback controls.
type DiscordControlSurface struct {
	session *discordgo.Session
}

// NewDiscordControlSurface creates a new DiscordControlSurface.
func NewDiscordControlSurface(session *discordgo.Session) *DiscordControlSurface {
	return &DiscordControlSurface{session: session}
}

// Publish sends the now-playing card and adds the control reactions in the
// background.
func (s *DiscordControlSurface) Publish(
	ctx context.Context,
	channelID snowflake.ID,
	info ports.NowPlaying,
) (domain.ControlMessage, error) {
	msg, err := s.session.ChannelMessageSendEmbed(
		channelID.String(),
		nowPlayingEmbed(info),
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return domain.ControlMessage{}, fmt.Errorf("failed to send now playing message: %w", err)
	}

	messageID, err := snowflake.Parse(msg.ID)
	if err != nil {
		return domain.ControlMessage{}, fmt.Errorf("failed to parse message ID: %w", err)
	}

	go s.addControls(msg.ChannelID, msg.ID, domain.ControlInputs(info.LocalEnabled))

	return domain.NewControlMessage(channelID, messageID), nil
}

// addControls adds reactions one by one so they appear in display order.
func (s *DiscordControlSurface) addControls(channelID, messageID string, inputs []domain.ControlInput) {
	for _, input := range inputs {
		if err := s.session.MessageReactionAdd(channelID, messageID, input.Emoji()); err != nil {
			slog.Debug("failed to add control reaction",
				"channel", channelID, "message", messageID, "emoji", input.Emoji(), "error", err)
		}
	}
}

// Retire removes the bot's own control reactions from a superseded card. It
// gives up on the remaining reactions once ctx is done.
func (s *DiscordControlSurface) Retire(ctx context.Context, msg domain.ControlMessage) {
	for _, input := range domain.ControlInputs(true) {
		err := s.session.MessageReactionRemove(
			msg.ChannelID.String(),
			msg.MessageID.String(),
			input.Emoji(),
			"@me",
			discordgo.WithContext(ctx),
		)
		if err != nil {
			slog.Debug("failed to remove control reaction",
				"message", msg.MessageID, "emoji", input.Emoji(), "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Notify sends a plain message to the channel.
func (s *DiscordControlSurface) Notify(ctx context.Context, channelID snowflake.ID, message string) error {
	_, err := s.session.ChannelMessageSend(channelID.String(), message, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// nowPlayingEmbed renders the now-playing card.
func nowPlayingEmbed(info ports.NowPlaying) *discordgo.MessageEmbed {
	song := info.Song

	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: fmt.Sprintf("**%s**", song.Title),
		URL:         song.OriginURL,
		Color:       colorNowPlaying,
		Footer: &discordgo.MessageEmbedFooter{
			Text: controlsFooter(info),
		},
	}

	if thumbnailURL := thumbnailFor(song); thumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumbnailURL}
	}

	// Only show duration when it is known
	if duration := song.FormattedDuration(); duration != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Duration",
			Value:  duration,
			Inline: true,
		})
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:   "Source",
		Value:  song.SourceKind.Label(),
		Inline: true,
	})

	return embed
}

func controlsFooter(info ports.NowPlaying) string {
	inputs := domain.ControlInputs(info.LocalEnabled)
	parts := make([]string, 0, len(inputs)+1)
	for _, input := range inputs {
		parts = append(parts, input.Emoji()+" "+input.String())
	}
	if info.LoopEnabled {
		parts = append(parts, "🔁 Loop on")
	}
	return strings.Join(parts, " | ")
}

// thumbnailFor returns the song's thumbnail, or the standard YouTube preview
// when the song came from a YouTube page without one.
func thumbnailFor(song domain.Song) string {
	if song.ThumbnailURL != "" {
		return song.ThumbnailURL
	}
	if videoID := youTubeVideoID(song.OriginURL); videoID != "" {
		return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
	}
	return ""
}

func youTubeVideoID(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch strings.TrimPrefix(u.Hostname(), "www.") {
	case "youtube.com", "music.youtube.com", "m.youtube.com":
		return u.Query().Get("v")
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	default:
		return ""
	}
}

// Ensure DiscordControlSurface implements ports.ControlSurface.
var _ ports.ControlSurface = (*DiscordControlSurface)(nil)
