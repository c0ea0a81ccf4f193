package infrastructure

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
)

func TestFFmpegArgs(t *testing.T) {
	tests := []struct {
		name   string
		source ports.AudioSource
		want   []string
	}{
		{
			name:   "remote stream reconnects",
			source: ports.AudioSource{Reference: "https://cdn.example/audio", Reconnect: true},
			want: []string{
				"-hide_banner", "-loglevel", "error",
				"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
				"-i", "https://cdn.example/audio",
				"-vn", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1",
			},
		},
		{
			name:   "local file",
			source: ports.AudioSource{Reference: "/music/song.flac"},
			want: []string{
				"-hide_banner", "-loglevel", "error",
				"-i", "/music/song.flac",
				"-vn", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ffmpegArgs(tt.source); !slices.Equal(got, tt.want) {
				t.Errorf("ffmpegArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

type countingEncoder struct {
	frames int
	err    error
}

func (e *countingEncoder) Encode(pcm []int16, size, _ int) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if len(pcm) != size*channels {
		return nil, errors.New("unexpected frame length")
	}
	e.frames++
	return []byte{byte(e.frames)}, nil
}

func pcmFrames(n int, extraBytes int) *bytes.Reader {
	var buf bytes.Buffer
	samples := make([]int16, frameSize*channels*n)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	buf.Write(make([]byte, extraBytes))
	return bytes.NewReader(buf.Bytes())
}

func notPaused(context.Context) error { return nil }

func TestStreamOpus(t *testing.T) {
	t.Run("sends one packet per frame", func(t *testing.T) {
		encoder := &countingEncoder{}
		send := make(chan []byte, 10)

		err := streamOpus(context.Background(), pcmFrames(3, 100), encoder, send, notPaused)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(send) != 3 {
			t.Errorf("expected 3 packets, got %d", len(send))
		}
	})

	t.Run("encoder failure", func(t *testing.T) {
		encoder := &countingEncoder{err: errors.New("bad frame")}
		send := make(chan []byte, 10)

		if err := streamOpus(context.Background(), pcmFrames(1, 0), encoder, send, notPaused); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("stops when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := streamOpus(ctx, pcmFrames(3, 0), &countingEncoder{}, make(chan []byte, 10), notPaused)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("pause gate error ends stream", func(t *testing.T) {
		gate := func(context.Context) error { return context.Canceled }

		err := streamOpus(context.Background(), pcmFrames(3, 0), &countingEncoder{}, make(chan []byte, 10), gate)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestFFmpegSink_PauseResumeState(t *testing.T) {
	sink := &FFmpegSink{connected: true}
	if err := sink.Pause(context.Background()); !errors.Is(err, ErrNothingPlaying) {
		t.Errorf("expected ErrNothingPlaying, got %v", err)
	}

	sink.current = &ffmpegPlayback{done: make(chan struct{}), cancel: func() {}}
	if !sink.IsPlaying() || sink.IsPaused() {
		t.Fatal("expected playing state")
	}

	if err := sink.Pause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.IsPlaying() || !sink.IsPaused() {
		t.Fatal("expected paused state")
	}

	gateDone := make(chan error, 1)
	go func() { gateDone <- sink.waitIfPaused(context.Background(), sink.current) }()

	if err := sink.Resume(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := <-gateDone; err != nil {
		t.Errorf("expected pause gate to open, got %v", err)
	}
	if !sink.IsPlaying() {
		t.Error("expected playing state after resume")
	}
}

// silentFFmpeg writes an executable that starts like ffmpeg but never outputs a
// frame, the way a stalled network source behaves.
func silentFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}
	return path
}

func TestFFmpegSink_StopKillsSilentSource(t *testing.T) {
	sink := &FFmpegSink{
		ffmpegPath: silentFFmpeg(t),
		vc:         &discordgo.VoiceConnection{},
		connected:  true,
	}

	completed := make(chan error, 1)
	source := ports.AudioSource{Reference: "https://cdn.example/stalled", Reconnect: true}
	if err := sink.Play(context.Background(), source, func(err error) { completed <- err }); err != nil {
		t.Fatalf("failed to start playback: %v", err)
	}
	if !sink.IsPlaying() {
		t.Fatal("expected sink to be playing")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- sink.Stop(context.Background()) }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Stop to return without waiting for the source")
	}

	select {
	case err := <-completed:
		if err != nil {
			t.Errorf("expected a stopped source to complete without error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected completion after ffmpeg was killed")
	}
	if err := sink.wait(context.Background()); err != nil {
		t.Errorf("unexpected error waiting for idle sink: %v", err)
	}
	if sink.IsPlaying() || sink.IsPaused() {
		t.Error("expected sink to be idle after completion")
	}
}

