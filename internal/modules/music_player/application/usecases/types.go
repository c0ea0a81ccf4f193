package usecases

import (
	"github.com/sglre6355/tunebot/internal/modules/music_player/domain"
)

// Re-export domain types for presentation layer use.
// This allows presentation to depend only on usecases without importing domain directly.

// Song is an alias for domain.Song.
type Song = domain.Song

// ControlInput is an alias for domain.ControlInput.
type ControlInput = domain.ControlInput

// PlayerStateRepository is an alias for domain.PlayerStateRepository.
type PlayerStateRepository = domain.PlayerStateRepository
