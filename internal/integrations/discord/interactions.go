package discord

import (
	"github.com/bwmarrin/discordgo"

	"discord-ollama/internal/render"
	"discord-ollama/internal/usecase"
)

// PageUpdate answers a page button by replacing the message's embed and
// buttons in place.
func PageUpdate(view render.View) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{Embed(view)},
			Components: Components(view),
		},
	}
}

// Ephemeral answers an interaction with a message only the invoker sees.
func Ephemeral(text string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

// ErrorText is the user-facing reply for a failed command or button press.
func ErrorText(err error) string {
	switch usecase.CodeOf(err) {
	case usecase.ErrorNoActiveModel:
		return "No active model. Please set a model using the /model command."
	case usecase.ErrorUnknownModel:
		return "That model was not found in the model directory."
	case usecase.ErrorNotFound:
		if usecase.ReasonOf(err) == "no_page_data" {
			return "This message has no pages to navigate."
		}
		return "Unable to find the conversation for this message."
	case usecase.ErrorUpstream:
		return "The model server could not be reached."
	default:
		return "An error occurred while processing the command."
	}
}
