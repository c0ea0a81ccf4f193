package discord

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
)

func TestQueueEmbed(t *testing.T) {
	current := mockSong("now")
	upcoming := make([]usecases.Song, 10)
	for i := range upcoming {
		upcoming[i] = mockSong(fmt.Sprintf("song %d", i+1))
	}
	view := &usecases.QueueView{
		Current:     &current,
		Upcoming:    upcoming,
		Remaining:   2,
		Total:       12,
		LoopEnabled: true,
	}

	embed := queueEmbed(view, true)

	if embed.Title != "🎵 Music Queue 🔁" {
		t.Errorf("unexpected title %q", embed.Title)
	}
	if len(embed.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(embed.Fields))
	}
	upNext := embed.Fields[1].Value
	if !strings.HasPrefix(upNext, "1. song 1\n") || !strings.HasSuffix(upNext, "10. song 10\n... and 2 more") {
		t.Errorf("unexpected up next field %q", upNext)
	}
	if embed.Footer == nil || embed.Footer.Text != "Total in queue: 12 song(s)" {
		t.Errorf("unexpected footer %+v", embed.Footer)
	}

	if transient := queueEmbed(view, false); transient.Footer != nil {
		t.Errorf("expected no footer on transient embed, got %+v", transient.Footer)
	}
}

func TestQueueEmbed_OnlyCurrent(t *testing.T) {
	current := mockSong("now")

	embed := queueEmbed(&usecases.QueueView{Current: &current}, false)

	if embed.Title != "🎵 Music Queue" {
		t.Errorf("unexpected title %q", embed.Title)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Name != "Now Playing" {
		t.Errorf("expected only the now playing field, got %+v", embed.Fields)
	}
}

func TestQueueEmbed_LongTitles(t *testing.T) {
	long := strings.Repeat("long title ", 20)
	current := mockSong(long)
	upcoming := make([]usecases.Song, 10)
	for i := range upcoming {
		upcoming[i] = mockSong(fmt.Sprintf("%d %s", i+1, long))
	}

	embed := queueEmbed(&usecases.QueueView{Current: &current, Upcoming: upcoming, Total: 10}, true)

	for _, field := range embed.Fields {
		if n := utf8.RuneCountInString(field.Value); n > embedFieldLimit {
			t.Errorf("field %q has %d characters, over the %d limit", field.Name, n, embedFieldLimit)
		}
	}
	upNext := strings.Split(embed.Fields[1].Value, "\n")
	if len(upNext) != 10 {
		t.Fatalf("expected all 10 songs listed, got %d lines", len(upNext))
	}
	if !strings.HasPrefix(upNext[9], "10. 10 long title") || !strings.HasSuffix(upNext[9], "…") {
		t.Errorf("expected a shortened title, got %q", upNext[9])
	}
}

func TestUpNextValue_FoldsOverflow(t *testing.T) {
	songs := make([]usecases.Song, 30)
	for i := range songs {
		songs[i] = mockSong(strings.Repeat("x", 200))
	}

	value := upNextValue(songs, 5)

	if n := utf8.RuneCountInString(value); n > embedFieldLimit {
		t.Fatalf("expected at most %d characters, got %d", embedFieldLimit, n)
	}
	lines := strings.Split(value, "\n")
	shown := len(lines) - 1
	want := fmt.Sprintf("... and %d more", len(songs)-shown+5)
	if lines[len(lines)-1] != want {
		t.Errorf("expected %q, got %q", want, lines[len(lines)-1])
	}
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name  string
		title string
		limit int
		want  string
	}{
		{name: "short", title: "song", limit: 5, want: "song"},
		{name: "exact", title: "songs", limit: 5, want: "songs"},
		{name: "long", title: "songbook", limit: 5, want: "song…"},
		{name: "multibyte", title: "曲曲曲曲曲曲", limit: 3, want: "曲曲…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateTitle(tt.title, tt.limit); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLocalSongsEmbed(t *testing.T) {
	tests := []struct {
		name  string
		count int
		limit int
		want  string
	}{
		{name: "under limit", count: 2, limit: 20, want: "`1.` song 1\n`2.` song 2"},
		{name: "over limit", count: 4, limit: 2, want: "`1.` song 1\n`2.` song 2\n... and 2 more"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			songs := make([]usecases.Song, tt.count)
			for i := range songs {
				songs[i] = mockSong(fmt.Sprintf("song %d", i+1))
			}

			if got := localSongsEmbed(songs, tt.limit).Description; got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
