package discord

import "github.com/bwmarrin/discordgo"

// Commands returns all slash commands for the music player module.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "join",
			Description: "Join your voice channel",
		},
		{
			Name:        "leave",
			Description: "Leave the voice channel",
		},
		{
			Name:        "play",
			Description: "Play audio from YouTube (URL or search)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "query",
					Description:  "YouTube URL, search text or local song number",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		{
			Name:        "songs",
			Description: "List the local songs",
		},
		{
			Name:        "pause",
			Description: "Pause the current song",
		},
		{
			Name:        "resume",
			Description: "Resume playback",
		},
		{
			Name:        "skip",
			Description: "Skip the current song",
		},
		{
			Name:        "stop",
			Description: "Stop playback and clear the queue",
		},
		{
			Name:        "queue",
			Description: "Show the current queue",
		},
		{
			Name:        "nowplaying",
			Description: "Show the current song",
		},
		{
			Name:        "loop",
			Description: "Toggle loop mode",
		},
	}
}

// TextAliases maps alternative prefixed command names to their canonical command.
var TextAliases = map[string]string{
	"l":          "leave",
	"disconnect": "leave",
	"dc":         "leave",
	"p":          "play",
	"unpause":    "resume",
	"s":          "skip",
	"next":       "skip",
	"q":          "queue",
	"np":         "nowplaying",
	"current":    "nowplaying",
}
