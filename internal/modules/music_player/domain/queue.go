package domain

// Queue holds a guild's pending songs in arrival order, the song currently being
// rendered and the loop flag. Pending songs never include the current song.
type Queue struct {
	pending []Song
	current *Song
	loop    bool
}

// NewQueue creates a new empty Queue.
func NewQueue() Queue {
	return Queue{
		pending: make([]Song, 0),
	}
}

// Add appends a song to the end of the pending songs.
func (q *Queue) Add(song Song) {
	q.pending = append(q.pending, song)
}

// Advance moves playback forward and returns the song to render next.
//   - loop enabled with a current song: the current song is returned unchanged
//   - otherwise the first pending song becomes current and is returned
//   - with nothing pending, current is cleared and ok is false
func (q *Queue) Advance() (song Song, ok bool) {
	if q.loop && q.current != nil {
		return *q.current, true
	}

	if len(q.pending) == 0 {
		q.current = nil
		return Song{}, false
	}

	next := q.pending[0]
	q.pending[0] = Song{}
	q.pending = q.pending[1:]
	q.current = &next
	return next, true
}

// Clear drops all pending songs and the current song. It does not touch the sink.
func (q *Queue) Clear() {
	q.pending = make([]Song, 0)
	q.current = nil
}

// ToggleLoop flips the loop flag and returns the new value.
func (q *Queue) ToggleLoop() bool {
	q.loop = !q.loop
	return q.loop
}

// LoopEnabled reports whether the current song replays on Advance.
func (q *Queue) LoopEnabled() bool {
	return q.loop
}

// Current returns the song being rendered, if any.
func (q *Queue) Current() (Song, bool) {
	if q.current == nil {
		return Song{}, false
	}
	return *q.current, true
}

// Pending returns a copy of the songs waiting to be played.
func (q *Queue) Pending() []Song {
	result := make([]Song, len(q.pending))
	copy(result, q.pending)
	return result
}

// Len returns the number of pending songs.
func (q *Queue) Len() int {
	return len(q.pending)
}

// IsEmpty returns true if there is neither a current nor a pending song.
func (q *Queue) IsEmpty() bool {
	return q.current == nil && len(q.pending) == 0
}
