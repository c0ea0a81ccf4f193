package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sglre6355/tunebot/internal/modules/music_player/application/usecases"
)

// Autocomplete results must be sent within the platform's response window.
const autocompleteTimeout = 2500 * time.Millisecond

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	autocomplete *usecases.AutocompleteService
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(autocomplete *usecases.AutocompleteService) *AutocompleteHandler {
	return &AutocompleteHandler{
		autocomplete: autocomplete,
	}
}

// HandleInteraction answers autocomplete interactions for the play command.
func (h *AutocompleteHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}
	if i.ApplicationCommandData().Name != "play" {
		return
	}

	choices := h.playChoices(i.ApplicationCommandData().Options)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
	if err != nil {
		slog.Debug("failed to respond to autocomplete", "error", err)
	}
}

func (h *AutocompleteHandler) playChoices(
	options []*discordgo.ApplicationCommandInteractionDataOption,
) []*discordgo.ApplicationCommandOptionChoice {
	var query string
	for _, opt := range options {
		if opt.Name == "query" && opt.Focused {
			query = opt.StringValue()
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), autocompleteTimeout)
	defer cancel()

	output, err := h.autocomplete.Suggest(ctx, usecases.SuggestInput{Query: query})
	if err != nil {
		slog.Debug("failed to suggest songs", "query", query, "error", err)
		return []*discordgo.ApplicationCommandOptionChoice{}
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(output.Suggestions))
	for _, suggestion := range output.Suggestions {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  suggestion.Name,
			Value: suggestion.Value,
		})
	}
	return choices
}
