package bot

import (
	"github.com/bwmarrin/discordgo"
)

const (
	commandModel  = "model"
	commandHelp   = "help"
	commandRejoin = "Rejoin Conversation"

	optionModel        = "model"
	optionNumCtx       = "num_ctx"
	optionSystemPrompt = "system_prompt"
	optionTemperature  = "temperature"

	// Discord rejects more choices than this on one option.
	maxModelChoices = 25
)

// applicationCommands returns the commands registered on Ready. Installed
// models are offered as choices for the model option.
func applicationCommands(models []string) []*discordgo.ApplicationCommand {
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, m := range models {
		if len(choices) == maxModelChoices {
			break
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: m, Value: m})
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        commandModel,
			Description: "Load and configure a language model.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionModel,
					Description: "The model to switch to",
					Required:    true,
					Choices:     choices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionNumCtx,
					Description: "Set the context window size",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionSystemPrompt,
					Description: "The system prompt for the model",
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        optionTemperature,
					Description: "The temperature value for the model",
				},
			},
		},
		{
			Name:        commandHelp,
			Description: "Get instructions on how to use the bot",
		},
		{
			Name: commandRejoin,
			Type: discordgo.MessageApplicationCommand,
		},
	}
}

func helpEmbed() *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Bot Usage Instructions",
		Description: "Chat with a local language model. Here's how:",
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Model Command",
				Value: "`/model [model] [num_ctx] [system_prompt] [temperature]`",
			},
			{
				Name: "Parameters",
				Value: "• `model`: (Required) The language model to use.\n" +
					"• `num_ctx`: (Optional) Context window size.\n" +
					"• `system_prompt`: (Optional) System prompt for the model.\n" +
					"• `temperature`: (Optional) Sampling temperature.",
			},
			{
				Name: "Talking to the Bot",
				Value: "Once a model is loaded:\n" +
					"• Send messages in the active channel.\n" +
					"• Reply to any message to discuss it.\n" +
					"• Attach text files to include them in the prompt.\n" +
					"• Use **Rejoin Conversation** from a message's context menu to pick up an old conversation.\n" +
					"• Send `stop` to end a response early, or `reset` to clear the context.",
			},
			{
				Name: "Notes",
				Value: "• `/model` stops any running response and starts a new conversation.\n" +
					"• The last used model, system prompt and temperature survive restarts.\n" +
					"• Long answers are split into pages; use the Previous and Next buttons.",
			},
		},
	}
}
