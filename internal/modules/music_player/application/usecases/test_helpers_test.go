package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

func mockSong(title string) Song {
	return domain.NewSong(
		domain.SourceRemote,
		"https://stream.example/"+title,
		title,
		3*time.Minute,
		"https://img.example/"+title+".jpg",
		"https://video.example/"+title,
	)
}

func mockLocalSong(title string) Song {
	return domain.NewSong(domain.SourceLocal, "/music/"+title+".mp3", title, 0, "", "")
}

// newTestLoop starts an event loop that is closed when the test ends.
func newTestLoop(t *testing.T) *events.Loop {
	t.Helper()
	loop := events.NewLoop(events.DefaultBufferSize)
	t.Cleanup(loop.Close)
	return loop
}

// settle waits until every posted task and background surface call is done,
// including the work they start in turn.
func settle(t *testing.T, loop *events.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Settle(ctx); err != nil {
		t.Fatalf("failed to settle loop: %v", err)
	}
}

type mockRepository struct {
	states map[snowflake.ID]*domain.PlayerState
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		states: make(map[snowflake.ID]*domain.PlayerState),
	}
}

func (m *mockRepository) Get(guildID snowflake.ID) *domain.PlayerState {
	return m.states[guildID]
}

func (m *mockRepository) GetOrCreate(guildID, notificationChannelID snowflake.ID) *domain.PlayerState {
	if state, ok := m.states[guildID]; ok {
		return state
	}
	state := domain.NewPlayerState(guildID, notificationChannelID)
	m.states[guildID] = state
	return state
}

func (m *mockRepository) Save(state *domain.PlayerState) {
	m.states[state.GuildID] = state
}

func (m *mockRepository) Delete(guildID snowflake.ID) {
	delete(m.states, guildID)
}

// fakeSink is an in-memory VoiceSink. Stop fires the completion callback
// synchronously; finish simulates a song reaching its natural end.
type fakeSink struct {
	mu         sync.Mutex
	channelID  snowflake.ID
	connected  bool
	playing    bool
	paused     bool
	played     []ports.AudioSource
	onComplete ports.CompletionFunc

	playErr       error
	moveErr       error
	disconnected  int
	stopCalls     int
	completeCalls int
}

func newFakeSink(channelID snowflake.ID) *fakeSink {
	return &fakeSink{channelID: channelID, connected: true}
}

func (f *fakeSink) Move(_ context.Context, channelID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.channelID = channelID
	return nil
}

func (f *fakeSink) ChannelID() snowflake.ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelID
}

func (f *fakeSink) Play(_ context.Context, source ports.AudioSource, onComplete ports.CompletionFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, source)
	f.playing = true
	f.paused = false
	f.onComplete = onComplete
	return nil
}

func (f *fakeSink) Pause(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
	f.paused = true
	return nil
}

func (f *fakeSink) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = true
	f.paused = false
	return nil
}

func (f *fakeSink) Stop(context.Context) error {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
	f.complete(nil)
	return nil
}

// finish ends the current song as if it had played to the end.
func (f *fakeSink) finish(err error) {
	f.complete(err)
}

func (f *fakeSink) complete(err error) {
	f.mu.Lock()
	onComplete := f.onComplete
	f.onComplete = nil
	f.playing = false
	f.paused = false
	if onComplete != nil {
		f.completeCalls++
	}
	f.mu.Unlock()

	if onComplete != nil {
		onComplete(err)
	}
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

func (f *fakeSink) Disconnect(context.Context) error {
	f.mu.Lock()
	f.connected = false
	f.disconnected++
	f.mu.Unlock()
	f.complete(nil)
	return nil
}

// drop simulates the platform closing the connection.
func (f *fakeSink) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeSink) playedSources() []ports.AudioSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.AudioSource(nil), f.played...)
}

func (f *fakeSink) playedTitles() []string {
	sources := f.playedSources()
	titles := make([]string, len(sources))
	for i, source := range sources {
		titles[i] = source.Title
	}
	return titles
}

type fakeConnector struct {
	mu      sync.Mutex
	sinks   []*fakeSink
	err     error
	block   bool // wait for ctx to expire
	connect int
}

func (f *fakeConnector) Connect(ctx context.Context, _, channelID snowflake.ID) (ports.VoiceSink, error) {
	f.mu.Lock()
	f.connect++
	err, block := f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	sink := newFakeSink(channelID)
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
	return sink, nil
}

func (f *fakeConnector) connectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connect
}

type mockVoiceStateProvider struct {
	channels map[snowflake.ID]snowflake.ID // userID -> channelID
	err      error
}

func newMockVoiceStateProvider() *mockVoiceStateProvider {
	return &mockVoiceStateProvider{channels: make(map[snowflake.ID]snowflake.ID)}
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(_, userID snowflake.ID) (snowflake.ID, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.channels[userID], nil
}

type publishedCard struct {
	ChannelID snowflake.ID
	Info      ports.NowPlaying
	Message   domain.ControlMessage
}

// fakeSurface records cards and notices. Publishing to a held channel blocks
// until the hold is released, like a slow platform.
type fakeSurface struct {
	mu         sync.Mutex
	nextID     snowflake.ID
	published  []publishedCard
	retired    []domain.ControlMessage
	notices    []string
	publishErr error
	holds      map[snowflake.ID]chan struct{}
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{nextID: 1000, holds: make(map[snowflake.ID]chan struct{})}
}

// hold makes publishes to channelID wait until the returned channel is closed.
func (f *fakeSurface) hold(channelID snowflake.ID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	release := make(chan struct{})
	f.holds[channelID] = release
	return release
}

func (f *fakeSurface) Publish(
	ctx context.Context,
	channelID snowflake.ID,
	info ports.NowPlaying,
) (domain.ControlMessage, error) {
	f.mu.Lock()
	release := f.holds[channelID]
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.ControlMessage{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return domain.ControlMessage{}, f.publishErr
	}
	f.nextID++
	msg := domain.NewControlMessage(channelID, f.nextID)
	f.published = append(f.published, publishedCard{ChannelID: channelID, Info: info, Message: msg})
	return msg, nil
}

func (f *fakeSurface) Retire(_ context.Context, msg domain.ControlMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retired = append(f.retired, msg)
}

func (f *fakeSurface) Notify(_ context.Context, _ snowflake.ID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
	return nil
}

func (f *fakeSurface) cards() []publishedCard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedCard(nil), f.published...)
}

func (f *fakeSurface) lastCard() publishedCard {
	cards := f.cards()
	if len(cards) == 0 {
		return publishedCard{}
	}
	return cards[len(cards)-1]
}

func (f *fakeSurface) retiredMessages() []domain.ControlMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ControlMessage(nil), f.retired...)
}

func (f *fakeSurface) noticeList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notices...)
}

type mockResolver struct {
	songs   map[string]Song
	err     error
	queries []domain.SearchQuery
}

func (m *mockResolver) Resolve(_ context.Context, query domain.SearchQuery) (Song, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return Song{}, m.err
	}
	song, ok := m.songs[query.Query]
	if !ok {
		return Song{}, ports.ErrNoResults
	}
	return song, nil
}

// mockLocalLibrary resolves 1-based numbers into its songs.
type mockLocalLibrary struct {
	songs   []Song
	listErr error
}

func (m *mockLocalLibrary) Resolve(_ context.Context, query domain.SearchQuery) (Song, error) {
	if len(m.songs) == 0 {
		return Song{}, ports.ErrNoLocalSongs
	}
	if query.Index < 1 || query.Index > len(m.songs) {
		return Song{}, &ports.InvalidSongNumberError{Max: len(m.songs)}
	}
	return m.songs[query.Index-1], nil
}

func (m *mockLocalLibrary) Songs(context.Context) ([]Song, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.songs, nil
}

type mockSearcher struct {
	results []ports.SearchSuggestion
	err     error
	limit   int
}

func (m *mockSearcher) Search(_ context.Context, _ string, limit int) ([]ports.SearchSuggestion, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// testEnv wires every service against in-memory fakes.
type testEnv struct {
	repo       *mockRepository
	sinks      *SinkRegistry
	loop       *events.Loop
	connector  *fakeConnector
	voiceState *mockVoiceStateProvider
	surface    *fakeSurface
	resolver   *mockResolver
	library    *mockLocalLibrary

	voice    *VoiceChannelService
	playback *PlaybackService
	queue    *QueueService
	loader   *SongLoaderService
	control  *ControlService
}

func newTestEnv(t *testing.T, localSongs ...Song) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:       newMockRepository(),
		sinks:      NewSinkRegistry(),
		loop:       newTestLoop(t),
		connector:  &fakeConnector{},
		voiceState: newMockVoiceStateProvider(),
		surface:    newFakeSurface(),
		resolver:   &mockResolver{songs: make(map[string]Song)},
	}

	var local ports.LocalLibrary
	if localSongs != nil {
		env.library = &mockLocalLibrary{songs: localSongs}
		local = env.library
	}

	env.voice = NewVoiceChannelService(
		env.repo, env.sinks, env.connector, env.voiceState, env.loop, time.Second,
	)
	env.playback = NewPlaybackService(env.repo, env.sinks, env.surface, env.loop, local != nil)
	env.queue = NewQueueService(env.repo, env.loop)
	env.loader = NewSongLoaderService(env.resolver, local)
	env.control = NewControlService(env.repo, env.sinks, env.loop, env.playback, env.voice, env.loader)

	return env
}

// connect registers a connected sink for the guild and creates its state.
func (e *testEnv) connect(t *testing.T, guildID, voiceChannelID, notificationChannelID snowflake.ID) *fakeSink {
	t.Helper()
	sink := newFakeSink(voiceChannelID)
	err := e.loop.Do(context.Background(), func(context.Context) error {
		e.repo.GetOrCreate(guildID, notificationChannelID)
		e.sinks.Set(guildID, sink)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to register sink: %v", err)
	}
	return sink
}

// play queues songs through RequestPlay and waits for follow-up tasks.
func (e *testEnv) play(t *testing.T, guildID, notificationChannelID snowflake.ID, songs ...Song) {
	t.Helper()
	for _, song := range songs {
		_, err := e.playback.RequestPlay(context.Background(), PlayInput{
			GuildID:               guildID,
			NotificationChannelID: notificationChannelID,
			Song:                  song,
		})
		if err != nil {
			t.Fatalf("RequestPlay(%q) failed: %v", song.Title, err)
		}
	}
	settle(t, e.loop)
}

// state reads the guild's state on the loop.
func (e *testEnv) state(t *testing.T, guildID snowflake.ID) *domain.PlayerState {
	t.Helper()
	var state *domain.PlayerState
	_ = e.loop.Do(context.Background(), func(context.Context) error {
		state = e.repo.Get(guildID)
		return nil
	})
	return state
}

func (e *testEnv) currentTitle(t *testing.T, guildID snowflake.ID) string {
	t.Helper()
	var title string
	_ = e.loop.Do(context.Background(), func(context.Context) error {
		if state := e.repo.Get(guildID); state != nil {
			if song, ok := state.Current(); ok {
				title = song.Title
			}
		}
		return nil
	})
	return title
}

func (e *testEnv) pendingTitles(t *testing.T, guildID snowflake.ID) []string {
	t.Helper()
	var titles []string
	_ = e.loop.Do(context.Background(), func(context.Context) error {
		if state := e.repo.Get(guildID); state != nil {
			for _, song := range state.Pending() {
				titles = append(titles, song.Title)
			}
		}
		return nil
	})
	return titles
}
