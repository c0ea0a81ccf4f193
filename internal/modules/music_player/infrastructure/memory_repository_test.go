package infrastructure

import (
	"sync"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

func TestMemoryRepository_Get(t *testing.T) {
	repo := NewMemoryRepository()
	guildID := snowflake.ID(123)

	if state := repo.Get(guildID); state != nil {
		t.Fatal("expected nil for non-existent state")
	}

	saved := domain.NewPlayerState(guildID, snowflake.ID(200))
	repo.Save(saved)

	if state := repo.Get(guildID); state != saved {
		t.Error("expected same state instance after save")
	}
	if state := repo.Get(snowflake.ID(456)); state != nil {
		t.Error("expected nil for different guild")
	}
}

func TestMemoryRepository_GetOrCreate(t *testing.T) {
	repo := NewMemoryRepository()
	guildID := snowflake.ID(123)

	created := repo.GetOrCreate(guildID, snowflake.ID(200))
	if created == nil {
		t.Fatal("expected a new state")
	}
	if created.GuildID != guildID || created.NotificationChannelID != snowflake.ID(200) {
		t.Errorf("unexpected state identity: %+v", created)
	}
	if !created.IsEmpty() {
		t.Error("expected new state to have an empty queue")
	}

	// The existing state is returned as is, keeping its channel
	again := repo.GetOrCreate(guildID, snowflake.ID(300))
	if again != created {
		t.Error("expected same state instance on second call")
	}
	if again.NotificationChannelID != snowflake.ID(200) {
		t.Errorf("expected notification channel 200, got %d", again.NotificationChannelID)
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	guildID := snowflake.ID(123)

	repo.Save(domain.NewPlayerState(guildID, snowflake.ID(200)))
	repo.Delete(guildID)

	if repo.Get(guildID) != nil {
		t.Error("expected nil after delete")
	}
	if repo.Count() != 0 {
		t.Errorf("expected count 0, got %d", repo.Count())
	}
}

func TestMemoryRepository_ConcurrentGetOrCreate(t *testing.T) {
	repo := NewMemoryRepository()
	guildID := snowflake.ID(1)

	var wg sync.WaitGroup
	results := make([]*domain.PlayerState, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.GetOrCreate(guildID, snowflake.ID(100))
		}(i)
	}
	wg.Wait()

	for i, state := range results {
		if state != results[0] {
			t.Fatalf("result %d is a different instance", i)
		}
	}
	if repo.Count() != 1 {
		t.Errorf("expected 1 state, got %d", repo.Count())
	}
}
