package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// LoadSongInput contains the input for the LoadSong use case.
type LoadSongInput struct {
	Query string
}

// LoadSongOutput contains the result of the LoadSong use case.
type LoadSongOutput struct {
	Song Song
}

// SongLoaderService resolves play queries into songs. Resolution can take
// seconds, so it always runs on the caller's goroutine and never on the loop.
type SongLoaderService struct {
	remote ports.SongResolver
	local  ports.LocalLibrary // nil when no local music directory is configured
}

// NewSongLoaderService creates a new SongLoaderService. local may be nil.
func NewSongLoaderService(remote ports.SongResolver, local ports.LocalLibrary) *SongLoaderService {
	return &SongLoaderService{
		remote: remote,
		local:  local,
	}
}

// LocalEnabled reports whether a local library is configured.
func (s *SongLoaderService) LocalEnabled() bool {
	return s.local != nil
}

// LoadSong resolves a user query. Numbers select local songs when a local
// library is configured; everything else goes to the remote resolver.
func (s *SongLoaderService) LoadSong(ctx context.Context, input LoadSongInput) (*LoadSongOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, ErrEmptyQuery
	}

	query := domain.NewSearchQuery(input.Query, s.LocalEnabled())
	return s.resolve(ctx, query)
}

// LoadLocalSong resolves the local song with the given 1-based number.
func (s *SongLoaderService) LoadLocalSong(ctx context.Context, index int) (*LoadSongOutput, error) {
	if !s.LocalEnabled() {
		return nil, ports.ErrLocalLibraryDisabled
	}
	return s.resolve(ctx, domain.NewLocalQuery(index))
}

func (s *SongLoaderService) resolve(ctx context.Context, query domain.SearchQuery) (*LoadSongOutput, error) {
	resolver := s.remote
	if query.IsLocal() {
		if s.local == nil {
			return nil, ports.ErrLocalLibraryDisabled
		}
		resolver = s.local
	}

	song, err := resolver.Resolve(ctx, query)
	if err != nil {
		// Resolver errors are already user-presentable
		slog.Debug("failed to resolve song", "query", query.Query, "error", err)
		return nil, err
	}
	if !song.IsValid() {
		return nil, ports.ErrExtractionFailed
	}

	return &LoadSongOutput{Song: song}, nil
}

// LocalSongsOutput contains the result of the LocalSongs use case.
type LocalSongsOutput struct {
	Songs []Song
}

// LocalSongs lists the local library in playback-number order.
func (s *SongLoaderService) LocalSongs(ctx context.Context) (*LocalSongsOutput, error) {
	if s.local == nil {
		return nil, ports.ErrLocalLibraryDisabled
	}

	songs, err := s.local.Songs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local songs: %w", err)
	}

	return &LocalSongsOutput{Songs: songs}, nil
}
