package domain

import (
	"strconv"
	"testing"
)

func testSong(title string) Song {
	return NewSong(SourceRemote, "https://cdn.example/"+title, title, 0, "", "")
}

func TestNewQueue(t *testing.T) {
	q := NewQueue()

	if !q.IsEmpty() {
		t.Error("expected new queue to be empty")
	}
	if q.LoopEnabled() {
		t.Error("expected loop to be disabled")
	}
	if _, ok := q.Current(); ok {
		t.Error("expected no current song")
	}
}

func TestQueue_AdvancePreservesArrivalOrder(t *testing.T) {
	q := NewQueue()
	q.Add(testSong("A"))
	q.Add(testSong("B"))
	q.Add(testSong("C"))

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.Advance()
		if !ok {
			t.Fatalf("expected %s, got nothing", want)
		}
		if got.Title != want {
			t.Errorf("expected %s, got %s", want, got.Title)
		}
		current, _ := q.Current()
		if current.Title != want {
			t.Errorf("expected current %s, got %s", want, current.Title)
		}
	}

	if _, ok := q.Advance(); ok {
		t.Error("expected nothing after the last song")
	}
	if _, ok := q.Current(); ok {
		t.Error("expected current to be cleared at end of queue")
	}
}

func TestQueue_AdvanceWithLoopReplaysCurrent(t *testing.T) {
	q := NewQueue()
	q.Add(testSong("X"))
	q.Add(testSong("Y"))
	q.Add(testSong("Z"))

	if _, ok := q.Advance(); !ok {
		t.Fatal("expected X to start")
	}
	if !q.ToggleLoop() {
		t.Fatal("expected loop to be enabled")
	}

	for i := range 5 {
		got, ok := q.Advance()
		if !ok || got.Title != "X" {
			t.Fatalf("advance %d: expected X, got %q (ok=%v)", i, got.Title, ok)
		}
	}
	if q.Len() != 2 {
		t.Errorf("expected pending songs untouched, got %d", q.Len())
	}
}

func TestQueue_LoopWithoutCurrentDequeues(t *testing.T) {
	q := NewQueue()
	q.ToggleLoop()
	q.Add(testSong("A"))

	got, ok := q.Advance()
	if !ok || got.Title != "A" {
		t.Fatalf("expected A, got %q (ok=%v)", got.Title, ok)
	}
}

func TestQueue_ToggleLoopBackToOff(t *testing.T) {
	q := NewQueue()
	q.Add(testSong("A"))
	q.Add(testSong("B"))
	q.Advance()

	q.ToggleLoop()
	if q.ToggleLoop() {
		t.Fatal("expected loop to be disabled after second toggle")
	}

	got, ok := q.Advance()
	if !ok || got.Title != "B" {
		t.Errorf("expected B, got %q (ok=%v)", got.Title, ok)
	}
}

func TestQueue_ClearThenAdvance(t *testing.T) {
	q := NewQueue()
	for i := range 4 {
		q.Add(testSong(strconv.Itoa(i)))
	}
	q.Advance()

	q.Clear()

	if !q.IsEmpty() {
		t.Error("expected queue to be empty after clear")
	}
	if _, ok := q.Advance(); ok {
		t.Error("expected nothing to play after clear")
	}
}

func TestQueue_ClearKeepsLoopFlag(t *testing.T) {
	q := NewQueue()
	q.ToggleLoop()
	q.Add(testSong("A"))
	q.Advance()

	q.Clear()

	if !q.LoopEnabled() {
		t.Error("expected loop flag to survive clear")
	}
	if _, ok := q.Advance(); ok {
		t.Error("expected loop to have nothing to replay after clear")
	}
}

func TestQueue_PendingNeverContainsCurrent(t *testing.T) {
	q := NewQueue()
	q.Add(testSong("A"))
	q.Add(testSong("B"))

	current, _ := q.Advance()
	for _, song := range q.Pending() {
		if song == current {
			t.Errorf("pending contains current song %q", current.Title)
		}
	}
}

func TestQueue_PendingReturnsCopy(t *testing.T) {
	q := NewQueue()
	q.Add(testSong("A"))

	pending := q.Pending()
	pending[0] = testSong("changed")

	if got := q.Pending()[0].Title; got != "A" {
		t.Errorf("expected queue to be unaffected, got %q", got)
	}
}
