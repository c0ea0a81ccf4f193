package domain

import (
	"fmt"
	"time"
)

// SourceKind tells where a song's audio comes from.
type SourceKind int

const (
	// SourceRemote is a network stream extracted from a video platform.
	SourceRemote SourceKind = iota
	// SourceLocal is a file in the local music directory.
	SourceLocal
)

// String returns a short machine-friendly name.
func (k SourceKind) String() string {
	switch k {
	case SourceLocal:
		return "local"
	default:
		return "remote"
	}
}

// Label returns the human-readable name shown on the now-playing card.
func (k SourceKind) Label() string {
	switch k {
	case SourceLocal:
		return "Local file"
	default:
		return "Stream"
	}
}

// UnknownTitle is used when the resolver could not find a title.
const UnknownTitle = "Unknown"

// Song is a resolved, playable piece of audio. Songs are values and never
// change once resolved.
type Song struct {
	SourceKind      SourceKind
	StreamReference string // URI for remote streams, file path for local files
	Title           string
	Duration        time.Duration // 0 when unknown
	ThumbnailURL    string
	OriginURL       string // page the song was found on, if any
}

// NewSong creates a Song, defaulting an empty title to UnknownTitle.
func NewSong(
	kind SourceKind,
	streamReference string,
	title string,
	duration time.Duration,
	thumbnailURL string,
	originURL string,
) Song {
	if title == "" {
		title = UnknownTitle
	}
	return Song{
		SourceKind:      kind,
		StreamReference: streamReference,
		Title:           title,
		Duration:        duration,
		ThumbnailURL:    thumbnailURL,
		OriginURL:       originURL,
	}
}

// IsValid returns true if the song has something to play.
func (s Song) IsValid() bool {
	return s.StreamReference != ""
}

// IsLocal returns true for songs read from the local music directory.
func (s Song) IsLocal() bool {
	return s.SourceKind == SourceLocal
}

// FormattedDuration renders the duration as m:ss with unpadded minutes, e.g.
// "3:20" or "75:00". It returns an empty string when the duration is unknown.
func (s Song) FormattedDuration() string {
	return FormatDuration(s.Duration)
}

// FormatDuration renders d as m:ss, or "" for non-positive durations.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	totalSeconds := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}
