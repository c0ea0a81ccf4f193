package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sglre6355/tunebot/internal/modules/music_player/application/ports"
)

// MaxSuggestions is the most choices an autocomplete response can carry.
const MaxSuggestions = 25

// maxSuggestionNameLength is the platform limit on a choice's display name.
const maxSuggestionNameLength = 100

// SuggestInput contains the input for the Suggest use case.
type SuggestInput struct {
	Query string
	Limit int // Max suggestions (optional, defaults to MaxSuggestions)
}

// Suggestion is a single autocomplete choice: what the user sees and what is
// submitted as the play query when chosen.
type Suggestion struct {
	Name  string
	Value string
}

// SuggestOutput contains the result of the Suggest use case.
type SuggestOutput struct {
	Suggestions []Suggestion
}

// AutocompleteService handles autocomplete-related operations.
type AutocompleteService struct {
	searcher ports.SongSearcher
	local    ports.LocalLibrary // nil when no local music directory is configured
}

// NewAutocompleteService creates a new AutocompleteService. Either dependency may be nil.
func NewAutocompleteService(searcher ports.SongSearcher, local ports.LocalLibrary) *AutocompleteService {
	return &AutocompleteService{
		searcher: searcher,
		local:    local,
	}
}

// Suggest returns play suggestions. With a local library, empty or numeric input
// lists matching local songs; any other input is searched remotely.
func (s *AutocompleteService) Suggest(ctx context.Context, input SuggestInput) (*SuggestOutput, error) {
	limit := input.Limit
	if limit <= 0 || limit > MaxSuggestions {
		limit = MaxSuggestions
	}

	query := strings.TrimSpace(input.Query)

	if s.local != nil && isLocalPrefix(query) {
		return s.suggestLocal(ctx, query, limit)
	}

	if query == "" || s.searcher == nil {
		return &SuggestOutput{}, nil
	}

	results, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(results))
	for _, result := range results {
		if result.URL == "" {
			continue
		}
		name := result.Title
		if result.Channel != "" {
			name += " - " + result.Channel
		}
		if result.Duration != "" {
			name += " (" + result.Duration + ")"
		}
		suggestions = append(suggestions, Suggestion{
			Name:  truncate(name, maxSuggestionNameLength),
			Value: result.URL,
		})
		if len(suggestions) == limit {
			break
		}
	}

	return &SuggestOutput{Suggestions: suggestions}, nil
}

func (s *AutocompleteService) suggestLocal(ctx context.Context, prefix string, limit int) (*SuggestOutput, error) {
	songs, err := s.local.Songs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local songs: %w", err)
	}

	suggestions := make([]Suggestion, 0, min(limit, len(songs)))
	for i, song := range songs {
		number := strconv.Itoa(i + 1)
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Name:  truncate(number+". "+song.Title, maxSuggestionNameLength),
			Value: number,
		})
		if len(suggestions) == limit {
			break
		}
	}

	return &SuggestOutput{Suggestions: suggestions}, nil
}

// isLocalPrefix reports whether query is empty or made of digits only.
func isLocalPrefix(query string) bool {
	for _, r := range query {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
