package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/events"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// UpcomingLimit is the number of pending songs shown in a queue view.
const UpcomingLimit = 10

// QueueListInput contains the input for the QueueList use case.
type QueueListInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// QueueView is a snapshot of a guild's queue for display.
type QueueView struct {
	Current     *Song  // nil if nothing is current
	Upcoming    []Song // at most UpcomingLimit pending songs
	Remaining   int    // pending songs beyond Upcoming
	Total       int    // all pending songs
	LoopEnabled bool
}

// QueueService handles queue operations.
type QueueService struct {
	repo domain.PlayerStateRepository
	loop *events.Loop
}

// NewQueueService creates a new QueueService.
func NewQueueService(repo domain.PlayerStateRepository, loop *events.Loop) *QueueService {
	return &QueueService{
		repo: repo,
		loop: loop,
	}
}

// List returns the guild's queue, or ErrQueueEmpty when there is nothing to show.
func (q *QueueService) List(ctx context.Context, input QueueListInput) (*QueueView, error) {
	var view *QueueView
	err := q.loop.Do(ctx, func(context.Context) error {
		state := q.repo.Get(input.GuildID)
		if state != nil {
			state.SetNotificationChannel(input.NotificationChannelID)
		}
		var err error
		view, err = queueViewLocked(state)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// queueViewLocked builds a QueueView from state.
func queueViewLocked(state *domain.PlayerState) (*QueueView, error) {
	if state == nil || state.IsEmpty() {
		return nil, ErrQueueEmpty
	}

	pending := state.Pending()
	view := &QueueView{
		Total:       len(pending),
		LoopEnabled: state.LoopEnabled(),
	}

	if current, ok := state.Current(); ok {
		view.Current = &current
	}

	if len(pending) > UpcomingLimit {
		view.Upcoming = pending[:UpcomingLimit]
		view.Remaining = len(pending) - UpcomingLimit
	} else {
		view.Upcoming = pending
	}

	return view, nil
}
