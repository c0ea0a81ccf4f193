package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".m4a":  true,
	".opus": true,
	".aac":  true,
}

// LocalLibrary serves the audio files of a local directory, numbered from 1 in
// file name order. The listing is cached until the directory changes.
type LocalLibrary struct {
	dir string

	mu     sync.Mutex
	cached []domain.Song
	valid  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLocalLibrary creates a LocalLibrary for dir. If the directory cannot be
// watched, the listing is rescanned on every call instead of cached.
func NewLocalLibrary(dir string) (*LocalLibrary, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local music directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local music path %q is not a directory", dir)
	}

	l := &LocalLibrary{
		dir:  dir,
		done: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("local library watcher unavailable, caching disabled", "error", err)
		return l, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		slog.Warn("failed to watch local music directory, caching disabled", "dir", dir, "error", err)
		return l, nil
	}

	l.watcher = watcher
	go l.watch()
	return l, nil
}

func (l *LocalLibrary) watch() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if !isAudioFile(event.Name) {
				continue
			}
			slog.Debug("local music directory changed", "file", event.Name, "op", event.Op.String())
			l.invalidate()
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("local library watcher error", "error", err)
			l.invalidate()
		}
	}
}

func (l *LocalLibrary) invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.valid = false
	l.cached = nil
}

// Songs returns the local songs sorted by file name.
func (l *LocalLibrary) Songs(ctx context.Context) ([]domain.Song, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Callers get their own copy so they cannot edit the cache
	if l.valid {
		return slices.Clone(l.cached), nil
	}

	songs, err := scanLocalDir(ctx, l.dir)
	if err != nil {
		return nil, err
	}
	if l.watcher != nil {
		l.cached = songs
		l.valid = true
	}
	return slices.Clone(songs), nil
}

// Resolve returns the local song with the query's 1-based number.
func (l *LocalLibrary) Resolve(ctx context.Context, query domain.SearchQuery) (domain.Song, error) {
	if !query.IsLocal() {
		return domain.Song{}, fmt.Errorf("%w: %q is not a local song number", ports.ErrNoResults, query.Query)
	}

	songs, err := l.Songs(ctx)
	if err != nil {
		return domain.Song{}, err
	}
	if len(songs) == 0 {
		return domain.Song{}, ports.ErrNoLocalSongs
	}
	if query.Index < 1 || query.Index > len(songs) {
		return domain.Song{}, &ports.InvalidSongNumberError{Max: len(songs)}
	}
	return songs[query.Index-1], nil
}

// Close stops watching the directory.
func (l *LocalLibrary) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}

// scanLocalDir lists the playable files directly inside dir.
func scanLocalDir(ctx context.Context, dir string) ([]domain.Song, error) {
	// ReadDir returns entries sorted by file name.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read local music directory: %w", err)
	}

	songs := make([]domain.Song, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isAudioFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		songs = append(songs, domain.NewSong(
			domain.SourceLocal,
			path,
			localTitle(path),
			0,
			"",
			"",
		))
	}
	return songs, nil
}

func isAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// localTitle reads the embedded title tag, falling back to the file name
// without its extension.
func localTitle(path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	metadata, err := tag.ReadFrom(f)
	if err != nil {
		return fallback
	}
	if title := strings.TrimSpace(metadata.Title()); title != "" {
		return title
	}
	return fallback
}

// Ensure LocalLibrary implements ports.LocalLibrary.
var _ ports.LocalLibrary = (*LocalLibrary)(nil)
