package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/bot"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
)

// request is what a command needs, whether it came from a slash interaction or
// a prefixed chat message.
type request struct {
	GuildID   snowflake.ID
	UserID    snowflake.ID
	ChannelID snowflake.ID
	Query     string
}

// command is a handler shared by the slash and the text form of a command.
type command func(ctx context.Context, req request, r bot.Responder) error

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	voiceChannel *usecases.VoiceChannelService
	playback     *usecases.PlaybackService
	queue        *usecases.QueueService
	songLoader   *usecases.SongLoaderService
}

// NewCommandHandlers creates new CommandHandlers.
func NewCommandHandlers(
	voiceChannel *usecases.VoiceChannelService,
	playback *usecases.PlaybackService,
	queue *usecases.QueueService,
	songLoader *usecases.SongLoaderService,
) *CommandHandlers {
	return &CommandHandlers{
		voiceChannel: voiceChannel,
		playback:     playback,
		queue:        queue,
		songLoader:   songLoader,
	}
}

func (h *CommandHandlers) commands() map[string]command {
	return map[string]command{
		"join":       h.join,
		"leave":      h.leave,
		"play":       h.play,
		"songs":      h.songs,
		"pause":      h.pause,
		"resume":     h.resume,
		"skip":       h.skip,
		"stop":       h.stop,
		"queue":      h.showQueue,
		"nowplaying": h.nowPlaying,
		"loop":       h.toggleLoop,
	}
}

// SlashHandlers returns the slash command handlers keyed by command name.
func (h *CommandHandlers) SlashHandlers() map[string]bot.InteractionHandler {
	handlers := make(map[string]bot.InteractionHandler)
	for name, cmd := range h.commands() {
		handlers[name] = slash(cmd)
	}
	return handlers
}

// TextHandlers returns the prefixed command handlers keyed by command name and alias.
func (h *CommandHandlers) TextHandlers() map[string]bot.TextCommandHandler {
	commands := h.commands()
	handlers := make(map[string]bot.TextCommandHandler, len(commands)+len(TextAliases))
	for name, cmd := range commands {
		handlers[name] = text(cmd)
	}
	for alias, name := range TextAliases {
		if cmd, ok := commands[name]; ok {
			handlers[alias] = text(cmd)
		}
	}
	return handlers
}

func slash(cmd command) bot.InteractionHandler {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate, r bot.Responder) error {
		req, err := requestFromInteraction(i)
		if err != nil {
			return respondError(r, "This command can only be used in a server.")
		}
		return cmd(context.Background(), req, r)
	}
}

func text(cmd command) bot.TextCommandHandler {
	return func(_ *discordgo.Session, m *discordgo.MessageCreate, args string, r bot.Responder) error {
		req, err := requestFromMessage(m, args)
		if err != nil {
			return respondError(r, "This command can only be used in a server.")
		}
		return cmd(context.Background(), req, r)
	}
}

func requestFromInteraction(i *discordgo.InteractionCreate) (request, error) {
	if i.Member == nil || i.Member.User == nil {
		return request{}, errors.New("interaction has no guild member")
	}

	ids, err := parseIDs(i.GuildID, i.Member.User.ID, i.ChannelID)
	if err != nil {
		return request{}, err
	}

	req := request{GuildID: ids[0], UserID: ids[1], ChannelID: ids[2]}
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "query" {
			req.Query = opt.StringValue()
		}
	}
	return req, nil
}

func requestFromMessage(m *discordgo.MessageCreate, args string) (request, error) {
	if m.Author == nil {
		return request{}, errors.New("message has no author")
	}

	ids, err := parseIDs(m.GuildID, m.Author.ID, m.ChannelID)
	if err != nil {
		return request{}, err
	}
	return request{GuildID: ids[0], UserID: ids[1], ChannelID: ids[2], Query: args}, nil
}

func parseIDs(raw ...string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, len(raw))
	for i, s := range raw {
		id, err := snowflake.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ID %q: %w", s, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (h *CommandHandlers) join(ctx context.Context, req request, r bot.Responder) error {
	output, err := h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               req.GuildID,
		UserID:                req.UserID,
		NotificationChannelID: req.ChannelID,
	})
	if err != nil {
		return respondContent(r, connectionMessage(err))
	}

	return respondContent(r, fmt.Sprintf("✅ Joined <#%s>", output.VoiceChannelID))
}

func (h *CommandHandlers) leave(ctx context.Context, req request, r bot.Responder) error {
	err := h.voiceChannel.Leave(ctx, usecases.LeaveInput{GuildID: req.GuildID})
	if errors.Is(err, usecases.ErrNotConnected) {
		return respondContent(r, "❌ I'm not in a voice channel!")
	}
	if err != nil {
		return err
	}

	return respondContent(r, "👋 Disconnected from voice channel")
}

// play joins the user's voice channel if needed, resolves the query and queues
// the song. A song that starts right away gets its control surface from the
// playback service instead of a reply.
func (h *CommandHandlers) play(ctx context.Context, req request, r bot.Responder) error {
	if req.Query == "" {
		return respondContent(r, "❌ Please provide a URL or search text.")
	}

	if err := respondContent(r, fmt.Sprintf("🔍 Searching for: **%s**", req.Query)); err != nil {
		return err
	}

	if _, err := h.voiceChannel.EnsureConnected(ctx, usecases.JoinInput{
		GuildID:               req.GuildID,
		UserID:                req.UserID,
		NotificationChannelID: req.ChannelID,
	}); err != nil {
		return respondContent(r, connectionMessage(err))
	}

	loaded, err := h.songLoader.LoadSong(ctx, usecases.LoadSongInput{Query: req.Query})
	if err != nil {
		slog.Info("failed to resolve song", "guild", req.GuildID, "query", req.Query, "error", err)
		return respondContent(r, resolutionMessage(err))
	}

	output, err := h.playback.RequestPlay(ctx, usecases.PlayInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
		Song:                  loaded.Song,
	})
	if errors.Is(err, usecases.ErrNotConnected) {
		return respondContent(r, "❌ I'm not in a voice channel!")
	}
	if err != nil {
		return err
	}

	if output.Started {
		return nil
	}
	return respondQueued(r, output.Song)
}

// maxListedSongs is how many local songs the songs command shows.
const maxListedSongs = 20

func (h *CommandHandlers) songs(ctx context.Context, _ request, r bot.Responder) error {
	output, err := h.songLoader.LocalSongs(ctx)
	if errors.Is(err, ports.ErrLocalLibraryDisabled) {
		return respondContent(r, "❌ No local music directory configured")
	}
	if err != nil {
		return err
	}
	if len(output.Songs) == 0 {
		return respondContent(r, "📭 No local songs found")
	}

	return r.Reply(bot.Reply{
		Content: fmt.Sprintf("📁 %d local song(s) available", len(output.Songs)),
		Embeds:  []*discordgo.MessageEmbed{localSongsEmbed(output.Songs, maxListedSongs)},
	})
}

func (h *CommandHandlers) pause(ctx context.Context, req request, r bot.Responder) error {
	err := h.playback.Pause(ctx, usecases.PauseInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrNotPlaying) {
		return respondContent(r, "❌ Nothing is playing!")
	}
	if err != nil {
		return err
	}

	return respondContent(r, "⏸️ Paused")
}

func (h *CommandHandlers) resume(ctx context.Context, req request, r bot.Responder) error {
	err := h.playback.Resume(ctx, usecases.ResumeInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrNotPaused) {
		return respondContent(r, "❌ Nothing is paused!")
	}
	if err != nil {
		return err
	}

	return respondContent(r, "▶️ Resumed")
}

func (h *CommandHandlers) skip(ctx context.Context, req request, r bot.Responder) error {
	err := h.playback.Skip(ctx, usecases.SkipInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrNotPlaying) {
		return respondContent(r, "❌ Nothing is playing!")
	}
	if err != nil {
		return err
	}

	return respondContent(r, "⏭️ Skipped")
}

func (h *CommandHandlers) stop(ctx context.Context, req request, r bot.Responder) error {
	err := h.playback.Stop(ctx, usecases.StopInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrNotConnected) {
		return respondContent(r, "❌ I'm not in a voice channel!")
	}
	if err != nil {
		return err
	}

	return respondContent(r, "⏹️ Stopped and cleared the queue")
}

func (h *CommandHandlers) showQueue(ctx context.Context, req request, r bot.Responder) error {
	view, err := h.queue.List(ctx, usecases.QueueListInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrQueueEmpty) {
		return respondContent(r, "📭 Queue is empty!")
	}
	if err != nil {
		return err
	}

	return r.Reply(bot.Reply{Embeds: []*discordgo.MessageEmbed{queueEmbed(view, true)}})
}

func (h *CommandHandlers) nowPlaying(ctx context.Context, req request, r bot.Responder) error {
	err := h.playback.ShowNowPlaying(ctx, usecases.NowPlayingInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if errors.Is(err, usecases.ErrNotPlaying) {
		return respondContent(r, "❌ Nothing is playing!")
	}
	if err != nil {
		return err
	}

	// The card itself is the visible answer; interactions still need a response
	return r.Reply(bot.Reply{Content: "🎵 Posted the current song", Ephemeral: true})
}

func (h *CommandHandlers) toggleLoop(ctx context.Context, req request, r bot.Responder) error {
	output, err := h.playback.ToggleLoop(ctx, usecases.ToggleLoopInput{
		GuildID:               req.GuildID,
		NotificationChannelID: req.ChannelID,
	})
	if err != nil {
		return err
	}

	if output.Enabled {
		return respondContent(r, "🔁 Loop enabled")
	}
	return respondContent(r, "➡️ Loop disabled")
}

// connectionMessage renders a failure to join the user's voice channel.
func connectionMessage(err error) string {
	switch {
	case errors.Is(err, usecases.ErrUserNotInVoice):
		return "❌ You must be in a voice channel!"
	case errors.Is(err, ports.ErrConnectTimeout), errors.Is(err, ports.ErrConnectRejected):
		return "❌ Could not connect to voice channel. " +
			"Please check that I have permission to **Connect** and **Speak** in your voice channel."
	default:
		return fmt.Sprintf("❌ Connection error: %v", err)
	}
}

// resolutionMessage renders a failure to turn a query into a song.
func resolutionMessage(err error) string {
	var invalid *ports.InvalidSongNumberError
	if errors.As(err, &invalid) {
		return "❌ " + invalid.Error()
	}
	return fmt.Sprintf("❌ Error: %v", err)
}
