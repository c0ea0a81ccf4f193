package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// Resolution errors returned by SongResolver implementations.
var (
	// ErrNoResults is returned when a search yields nothing.
	ErrNoResults = errors.New("no results found")

	// ErrExtractionFailed is returned when no playable stream could be extracted.
	ErrExtractionFailed = errors.New("failed to extract audio")

	// ErrNoLocalSongs is returned when the local music directory has no playable files.
	ErrNoLocalSongs = errors.New("no local songs found")

	// ErrLocalLibraryDisabled is returned when no local music directory is configured.
	ErrLocalLibraryDisabled = errors.New("no local music directory configured")
)

// InvalidSongNumberError is returned for local song numbers outside [1, Max].
type InvalidSongNumberError struct {
	Max int
}

func (e *InvalidSongNumberError) Error() string {
	return fmt.Sprintf("Invalid song number. Choose 1-%d", e.Max)
}

// SongResolver turns a parsed query into a playable song.
type SongResolver interface {
	Resolve(ctx context.Context, query domain.SearchQuery) (domain.Song, error)
}

// LocalLibrary lists the playable files of the local music directory.
type LocalLibrary interface {
	SongResolver

	// Songs returns the local songs sorted by file name.
	Songs(ctx context.Context) ([]domain.Song, error)
}

// SearchSuggestion is a single autocomplete candidate.
type SearchSuggestion struct {
	Title    string
	Channel  string
	Duration string
	URL      string
}

// SongSearcher looks up search suggestions without extracting streams.
type SongSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchSuggestion, error)
}
