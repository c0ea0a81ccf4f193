package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

func TestSongLoaderService_LoadSong(t *testing.T) {
	local := make([]Song, 10)
	for i := range local {
		local[i] = mockLocalSong(string(rune('a' + i)))
	}

	tests := []struct {
		name      string
		query     string
		local     []Song
		remote    map[string]Song
		wantTitle string
		wantErr   error
		wantMax   int
		wantKind  domain.QueryKind
	}{
		{
			name:      "url goes to remote resolver",
			query:     "https://youtu.be/x",
			remote:    map[string]Song{"https://youtu.be/x": mockSong("video")},
			wantTitle: "video",
			wantKind:  domain.QueryURL,
		},
		{
			name:      "free text goes to remote resolver",
			query:     "  lofi beats ",
			remote:    map[string]Song{"lofi beats": mockSong("lofi")},
			wantTitle: "lofi",
			wantKind:  domain.QuerySearch,
		},
		{
			name:      "number without local library is searched",
			query:     "2",
			remote:    map[string]Song{"2": mockSong("two")},
			wantTitle: "two",
			wantKind:  domain.QuerySearch,
		},
		{
			name:      "number selects local song",
			query:     "3",
			local:     local,
			wantTitle: "c",
		},
		{
			name:    "local number out of range",
			query:   "11",
			local:   local,
			wantErr: &ports.InvalidSongNumberError{},
			wantMax: 10,
		},
		{
			name:    "local number zero",
			query:   "0",
			local:   local,
			wantErr: &ports.InvalidSongNumberError{},
			wantMax: 10,
		},
		{
			name:    "no search results",
			query:   "nothing",
			wantErr: ports.ErrNoResults,
		},
		{
			name:    "blank query",
			query:   "   ",
			wantErr: ErrEmptyQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &mockResolver{songs: tt.remote}
			var library ports.LocalLibrary
			if tt.local != nil {
				library = &mockLocalLibrary{songs: tt.local}
			}
			loader := NewSongLoaderService(resolver, library)

			output, err := loader.LoadSong(context.Background(), LoadSongInput{Query: tt.query})

			if tt.wantErr != nil {
				var invalid *ports.InvalidSongNumberError
				if errors.As(tt.wantErr, &invalid) {
					if !errors.As(err, &invalid) || invalid.Max != tt.wantMax {
						t.Fatalf("expected InvalidSongNumberError{Max: %d}, got %v", tt.wantMax, err)
					}
					return
				}
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if output.Song.Title != tt.wantTitle {
				t.Errorf("expected title %q, got %q", tt.wantTitle, output.Song.Title)
			}
			if tt.remote != nil && resolver.queries[0].Kind != tt.wantKind {
				t.Errorf("expected query kind %v, got %v", tt.wantKind, resolver.queries[0].Kind)
			}
		})
	}
}

func TestSongLoaderService_InvalidSongNumberMessage(t *testing.T) {
	local := make([]Song, 10)
	for i := range local {
		local[i] = mockLocalSong("song")
	}
	loader := NewSongLoaderService(&mockResolver{}, &mockLocalLibrary{songs: local})

	_, err := loader.LoadSong(context.Background(), LoadSongInput{Query: "11"})
	if err == nil || err.Error() != "Invalid song number. Choose 1-10" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSongLoaderService_LocalDisabled(t *testing.T) {
	loader := NewSongLoaderService(&mockResolver{}, nil)

	if loader.LocalEnabled() {
		t.Error("expected local library to be disabled")
	}
	if _, err := loader.LoadLocalSong(context.Background(), 2); !errors.Is(err, ports.ErrLocalLibraryDisabled) {
		t.Errorf("expected ErrLocalLibraryDisabled, got %v", err)
	}
	if _, err := loader.LocalSongs(context.Background()); !errors.Is(err, ports.ErrLocalLibraryDisabled) {
		t.Errorf("expected ErrLocalLibraryDisabled, got %v", err)
	}
}

func TestSongLoaderService_LocalSongs(t *testing.T) {
	songs := []Song{mockLocalSong("a"), mockLocalSong("b")}
	loader := NewSongLoaderService(&mockResolver{}, &mockLocalLibrary{songs: songs})

	output, err := loader.LocalSongs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Songs) != 2 {
		t.Errorf("expected 2 songs, got %d", len(output.Songs))
	}

	failing := NewSongLoaderService(&mockResolver{}, &mockLocalLibrary{listErr: errors.New("unreadable")})
	if _, err := failing.LocalSongs(context.Background()); err == nil {
		t.Error("expected listing error")
	}
}
