package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

const (
	watchURLPrefix = "https://www.youtube.com/watch?v="

	// Fields printed by yt-dlp, tab separated, in this order.
	printTemplate = "%(url)s\t%(title)s\t%(duration)s\t%(thumbnail)s\t%(webpage_url)s"

	// Default budget for a single fast search before falling back to yt-dlp.
	defaultSearchTimeout = 3 * time.Second
)

// YtDlpResolver resolves URLs and free text to remote streams using yt-dlp.
type YtDlpResolver struct {
	search        *ytsearch.Client
	searchTimeout time.Duration
}

// NewYtDlpResolver creates a new YtDlpResolver.
func NewYtDlpResolver() *YtDlpResolver {
	return &YtDlpResolver{
		search:        ytsearch.NewClient(nil),
		searchTimeout: defaultSearchTimeout,
	}
}

// Resolve extracts the best audio stream for the query.
func (r *YtDlpResolver) Resolve(ctx context.Context, query domain.SearchQuery) (domain.Song, error) {
	target := query.ExtractorTarget()
	if query.Kind == domain.QuerySearch {
		if url, ok := r.topResult(ctx, query.Query); ok {
			target = url
		}
	}

	res, err := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoPlaylist().
		Format("bestaudio/best").
		Print(printTemplate).
		Run(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Song{}, ctx.Err()
		}
		return domain.Song{}, fmt.Errorf("%w: %v", ports.ErrExtractionFailed, err)
	}

	song, err := parsePrintOutput(res.Stdout)
	if err != nil {
		return domain.Song{}, err
	}
	return song, nil
}

// topResult looks up the first video for free text without spawning yt-dlp.
func (r *YtDlpResolver) topResult(ctx context.Context, query string) (string, bool) {
	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	res, err := r.search.Search(searchCtx, query)
	if err != nil {
		slog.Debug("fast search failed, falling back to yt-dlp", "query", query, "error", err)
		return "", false
	}
	for _, v := range res.Results {
		if v.VideoID != "" {
			return watchURLPrefix + v.VideoID, true
		}
	}
	return "", false
}

// parsePrintOutput builds a song from the first non-empty line printed with
// printTemplate. yt-dlp prints "NA" for missing fields.
func parsePrintOutput(stdout string) (domain.Song, error) {
	var line string
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if line == "" {
		return domain.Song{}, ports.ErrNoResults
	}

	fields := strings.Split(line, "\t")
	for len(fields) < 5 {
		fields = append(fields, "")
	}
	for i, f := range fields {
		if f == "NA" {
			fields[i] = ""
		}
	}

	streamURL := fields[0]
	if streamURL == "" {
		return domain.Song{}, fmt.Errorf("%w: no stream URL", ports.ErrExtractionFailed)
	}

	var duration time.Duration
	if seconds, err := strconv.ParseFloat(fields[2], 64); err == nil && seconds > 0 {
		duration = time.Duration(seconds * float64(time.Second))
	}

	return domain.NewSong(
		domain.SourceRemote,
		streamURL,
		fields[1],
		duration,
		fields[3],
		fields[4],
	), nil
}

// YtSearchSearcher suggests YouTube videos for partially typed queries.
type YtSearchSearcher struct {
	client *ytsearch.Client
}

// NewYtSearchSearcher creates a new YtSearchSearcher.
func NewYtSearchSearcher() *YtSearchSearcher {
	return &YtSearchSearcher{
		client: ytsearch.NewClient(nil),
	}
}

// Search returns up to limit suggestions.
func (s *YtSearchSearcher) Search(
	ctx context.Context,
	query string,
	limit int,
) ([]ports.SearchSuggestion, error) {
	res, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	suggestions := make([]ports.SearchSuggestion, 0, limit)
	for _, v := range res.Results {
		if len(suggestions) >= limit {
			break
		}
		if v.VideoID == "" {
			continue
		}
		suggestions = append(suggestions, ports.SearchSuggestion{
			Title:    v.Title,
			Channel:  v.Channel,
			Duration: v.Duration,
			URL:      watchURLPrefix + v.VideoID,
		})
	}
	return suggestions, nil
}

var (
	_ ports.SongResolver = (*YtDlpResolver)(nil)
	_ ports.SongSearcher = (*YtSearchSearcher)(nil)
)
