package discord

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/tunebot/internal/bot"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
)

// Embed colors.
const (
	colorQueue = 0x5865F2
	colorError = 0xE74C3C
)

const (
	// embedFieldLimit is the most characters Discord accepts in a field value.
	embedFieldLimit = 1024

	// queueTitleLimit keeps a full page of pending songs inside one field.
	queueTitleLimit = 90
)

func respondContent(r bot.Responder, content string) error {
	return r.Reply(bot.Reply{Content: content})
}

func respondError(r bot.Responder, message string) error {
	return r.Reply(bot.Reply{
		Embeds: []*discordgo.MessageEmbed{
			{
				Description: message,
				Color:       colorError,
			},
		},
		Ephemeral: true,
	})
}

func respondQueued(r bot.Responder, song usecases.Song) error {
	return respondContent(r, queuedMessage(song))
}

func queuedMessage(song usecases.Song) string {
	return fmt.Sprintf("📝 Added to queue: **%s**", song.Title)
}

// queueEmbed renders the current song and the first pending songs. The footer
// with the pending total is left out of transient control-surface replies.
func queueEmbed(view *usecases.QueueView, withTotal bool) *discordgo.MessageEmbed {
	title := "🎵 Music Queue"
	if view.LoopEnabled {
		title += " 🔁"
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		Color: colorQueue,
	}

	if view.Current != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Now Playing",
			Value: fmt.Sprintf("**%s**", truncateTitle(view.Current.Title, queueTitleLimit)),
		})
	}

	if len(view.Upcoming) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Up Next",
			Value: upNextValue(view.Upcoming, view.Remaining),
		})
	}

	if withTotal {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Total in queue: %d song(s)", view.Total),
		}
	}

	return embed
}

// upNextValue numbers the pending songs. Songs that do not fit in one embed
// field are folded into the trailing "... and N more" line.
func upNextValue(songs []usecases.Song, remaining int) string {
	reserve := utf8.RuneCountInString(moreLine(remaining + len(songs)))

	var sb strings.Builder
	length := 0
	for i, song := range songs {
		line := fmt.Sprintf("%d. %s", i+1, truncateTitle(song.Title, queueTitleLimit))
		if i > 0 {
			line = "\n" + line
		}
		n := utf8.RuneCountInString(line)
		if length+n+reserve > embedFieldLimit {
			remaining += len(songs) - i
			break
		}
		sb.WriteString(line)
		length += n
	}

	if remaining > 0 {
		sb.WriteString(moreLine(remaining))
	}
	return sb.String()
}

func moreLine(count int) string {
	return fmt.Sprintf("\n... and %d more", count)
}

// truncateTitle shortens title to at most limit characters.
func truncateTitle(title string, limit int) string {
	if utf8.RuneCountInString(title) <= limit {
		return title
	}
	runes := []rune(title)
	return string(runes[:limit-1]) + "…"
}

// localSongsEmbed lists the first limit local songs with their play numbers.
func localSongsEmbed(songs []usecases.Song, limit int) *discordgo.MessageEmbed {
	var sb strings.Builder
	for i, song := range songs {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more", len(songs)-limit)
			break
		}
		fmt.Fprintf(&sb, "`%d.` %s\n", i+1, song.Title)
	}

	return &discordgo.MessageEmbed{
		Title:       "📁 Local Songs",
		Description: strings.TrimSuffix(sb.String(), "\n"),
		Color:       colorQueue,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Play one with play <number>",
		},
	}
}
