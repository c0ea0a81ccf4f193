package discord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/bot"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
	"github.com/sglre6355/tunebot/internal/modules/music_player/infrastructure"
)

const (
	testGuildID          = snowflake.ID(1)
	testUserID           = snowflake.ID(2)
	testTextChannelID    = snowflake.ID(3)
	testVoiceChannelID   = snowflake.ID(4)
	testBotID            = snowflake.ID(5)
	testFirstCardMessage = snowflake.ID(1001)
)

func mockSong(title string) domain.Song {
	return domain.NewSong(domain.SourceRemote, "https://cdn.example/"+title, title, time.Minute, "", "")
}

// fakeSink is an in-memory VoiceSink whose Stop completes synchronously.
type fakeSink struct {
	mu         sync.Mutex
	channelID  snowflake.ID
	connected  bool
	playing    bool
	paused     bool
	onComplete ports.CompletionFunc
}

func (f *fakeSink) Move(_ context.Context, channelID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelID = channelID
	return nil
}

func (f *fakeSink) ChannelID() snowflake.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelID
}

func (f *fakeSink) Play(_ context.Context, _ ports.AudioSource, onComplete ports.CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	f.paused = false
	f.onComplete = onComplete
	return nil
}

func (f *fakeSink) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing, f.paused = false, true
	return nil
}

func (f *fakeSink) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing, f.paused = true, false
	return nil
}

func (f *fakeSink) Stop(context.Context) error {
	f.mu.Lock()
	onComplete := f.onComplete
	f.onComplete = nil
	f.playing, f.paused = false, false
	f.mu.Unlock()

	if onComplete != nil {
		onComplete(nil)
	}
	return nil
}

func (f *fakeSink) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeSink) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSink) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return f.Stop(ctx)
}

type fakeConnector struct {
	err error
}

func (f *fakeConnector) Connect(_ context.Context, _, channelID snowflake.ID) (ports.VoiceSink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeSink{channelID: channelID, connected: true}, nil
}

type mockVoiceStateProvider struct {
	channels map[snowflake.ID]snowflake.ID
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(_, userID snowflake.ID) (snowflake.ID, error) {
	return m.channels[userID], nil
}

// fakeSurface records published cards, numbering messages from testFirstCardMessage.
type fakeSurface struct {
	mu     sync.Mutex
	cards  []ports.NowPlaying
	nextID snowflake.ID
}

func (f *fakeSurface) Publish(
	_ context.Context,
	channelID snowflake.ID,
	info ports.NowPlaying,
) (domain.ControlMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextID == 0 {
		f.nextID = testFirstCardMessage
	}
	f.cards = append(f.cards, info)
	msg := domain.NewControlMessage(channelID, f.nextID)
	f.nextID++
	return msg, nil
}

func (f *fakeSurface) Retire(context.Context, domain.ControlMessage) {}

func (f *fakeSurface) Notify(context.Context, snowflake.ID, string) error {
	return nil
}

func (f *fakeSurface) cardCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cards)
}

type mockResolver struct {
	err error
}

func (m *mockResolver) Resolve(_ context.Context, query domain.SearchQuery) (domain.Song, error) {
	if m.err != nil {
		return domain.Song{}, m.err
	}
	return mockSong(query.Query), nil
}

// testEnv wires the real services against in-memory fakes.
type testEnv struct {
	loop       *events.Loop
	connector  *fakeConnector
	voiceState *mockVoiceStateProvider
	surface    *fakeSurface
	resolver   *mockResolver

	commands *CommandHandlers
	events   *EventHandlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	loop := events.NewLoop(0)
	t.Cleanup(loop.Close)

	env := &testEnv{
		loop:       loop,
		connector:  &fakeConnector{},
		voiceState: &mockVoiceStateProvider{channels: make(map[snowflake.ID]snowflake.ID)},
		surface:    &fakeSurface{},
		resolver:   &mockResolver{},
	}

	repo := infrastructure.NewMemoryRepository()
	sinks := usecases.NewSinkRegistry()

	voice := usecases.NewVoiceChannelService(repo, sinks, env.connector, env.voiceState, loop, time.Second)
	playback := usecases.NewPlaybackService(repo, sinks, env.surface, loop, false)
	queue := usecases.NewQueueService(repo, loop)
	loader := usecases.NewSongLoaderService(env.resolver, nil)
	control := usecases.NewControlService(repo, sinks, loop, playback, voice, loader)

	env.commands = NewCommandHandlers(voice, playback, queue, loader)
	env.events = NewEventHandlers(testBotID, voice, control)
	return env
}

func (e *testEnv) run(t *testing.T, name, query string) *bot.MockResponder {
	t.Helper()
	cmd, ok := e.commands.commands()[name]
	if !ok {
		t.Fatalf("unknown command %q", name)
	}

	responder := &bot.MockResponder{}
	req := request{GuildID: testGuildID, UserID: testUserID, ChannelID: testTextChannelID, Query: query}
	if err := cmd(context.Background(), req, responder); err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	e.settle(t)
	return responder
}

// settle waits for loop tasks and background surface calls to finish.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.loop.Settle(ctx); err != nil {
		t.Fatalf("failed to settle loop: %v", err)
	}
}

func contents(r *bot.MockResponder) []string {
	out := make([]string, len(r.Replies))
	for i, reply := range r.Replies {
		out[i] = reply.Content
	}
	return out
}
