package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
	"discord-ollama/internal/usecase"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSession struct {
	responses  []*discordgo.InteractionResponse
	edits      []string
	registered []*discordgo.ApplicationCommand
	appID      string
	statuses   []string
	channelErr error
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, e *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.edits = append(f.edits, *e.Content)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ApplicationCommandBulkOverwrite(appID string, _ string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.appID = appID
	f.registered = cmds
	return cmds, nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return &discordgo.Channel{ID: channelID}, nil
}

func (f *fakeSession) UpdateGameStatus(_ int, name string) error {
	f.statuses = append(f.statuses, name)
	return nil
}

type fakeChat struct {
	got []usecase.IncomingMessage
	err error
}

func (f *fakeChat) HandleMessage(_ context.Context, msg usecase.IncomingMessage) error {
	f.got = append(f.got, msg)
	return f.err
}

type fakeCommands struct {
	setOpts   []usecase.ModelOptions
	setResult usecase.ModelResult
	setErr    error

	rejoinResult usecase.RejoinResult
	rejoinErr    error
	rejoined     []string

	resumed       string
	activeChannel string
	cleared       bool
}

func (f *fakeCommands) SetModel(_ context.Context, opts usecase.ModelOptions) (usecase.ModelResult, error) {
	f.setOpts = append(f.setOpts, opts)
	return f.setResult, f.setErr
}

func (f *fakeCommands) Rejoin(messageID, channelID string) (usecase.RejoinResult, error) {
	f.rejoined = append(f.rejoined, messageID+"@"+channelID)
	return f.rejoinResult, f.rejoinErr
}

func (f *fakeCommands) Resume(context.Context) string { return f.resumed }
func (f *fakeCommands) ActiveChannel() string { return f.activeChannel }

func (f *fakeCommands) ClearActiveChannel() error {
	f.cleared = true
	return nil
}

type fakePager struct {
	view render.View
	err  error
	dirs []render.Direction
}

func (f *fakePager) Navigate(_ context.Context, _ string, dir render.Direction) (render.View, bool, error) {
	f.dirs = append(f.dirs, dir)
	return f.view, true, f.err
}

type fakeModels struct{ models []string }

func (f *fakeModels) ListModels(context.Context) ([]string, error) { return f.models, nil }

type botFixture struct {
	session  *fakeSession
	chat     *fakeChat
	commands *fakeCommands
	pages    *fakePager
	restored int
	bot      *Bot
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	f := &botFixture{
		session:  &fakeSession{},
		chat:     &fakeChat{},
		commands: &fakeCommands{},
		pages:    &fakePager{},
	}
	b, err := New(f.session, Deps{
		Chat:     f.chat,
		Commands: f.commands,
		Pages:    f.pages,
		Models:   &fakeModels{models: []string{"llama3:latest", "mistral:7b"}},
		Restore: func(context.Context) (int, error) {
			f.restored++
			return 3, nil
		},
	})
	require.NoError(t, err)
	f.bot = b
	return f
}

func commandInteraction(data discordgo.ApplicationCommandInteractionData) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "c1",
		Data:      data,
	}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, Deps{})
	require.Error(t, err)
	_, err = New(&fakeSession{}, Deps{Chat: &fakeChat{}})
	require.Error(t, err)
}

func TestOnReady(t *testing.T) {
	f := newBotFixture(t)
	f.commands.resumed = "llama3:latest"
	f.commands.activeChannel = "c1"
	f.session.channelErr = errors.New("unknown channel")

	f.bot.OnReady(context.Background(), &discordgo.Ready{User: &discordgo.User{ID: "bot1", Username: "ollama"}})

	require.Equal(t, "bot1", f.session.appID)
	require.Len(t, f.session.registered, 3)
	choices := f.session.registered[0].Options[0].Choices
	require.Len(t, choices, 2)
	require.Equal(t, "llama3:latest", choices[0].Value)
	require.Equal(t, discordgo.MessageApplicationCommand, f.session.registered[2].Type)

	require.True(t, f.commands.cleared)
	require.Equal(t, 1, f.restored)
	require.Equal(t, []string{"llama3:latest"}, f.session.statuses)
}

func TestOnReady_NoModel(t *testing.T) {
	f := newBotFixture(t)
	f.bot.OnReady(context.Background(), &discordgo.Ready{
		User:        &discordgo.User{ID: "bot1"},
		Application: &discordgo.Application{ID: "app1"},
	})
	require.Equal(t, "app1", f.session.appID)
	require.False(t, f.commands.cleared)
	require.Equal(t, []string{activityNoModel}, f.session.statuses)
}

func TestOnMessageCreate_MapsMessage(t *testing.T) {
	f := newBotFixture(t)
	f.bot.OnReady(context.Background(), &discordgo.Ready{User: &discordgo.User{ID: "bot1"}})

	f.bot.OnMessageCreate(context.Background(), &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:               "u1",
		ChannelID:        "c1",
		Content:          "<@bot1> look",
		Author:           &discordgo.User{ID: "user1"},
		Mentions:         []*discordgo.User{{ID: "someone"}, {ID: "bot1"}},
		MessageReference: &discordgo.MessageReference{MessageID: "b7"},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "notes.txt", ContentType: "text/plain", URL: "https://cdn/notes.txt"},
		},
	}})

	require.Len(t, f.chat.got, 1)
	require.Equal(t, usecase.IncomingMessage{
		ID:          "u1",
		ChannelID:   "c1",
		Content:     "<@bot1> look",
		MentionsBot: true,
		ReferenceID: "b7",
		Attachments: []usecase.Attachment{{Name: "notes.txt", ContentType: "text/plain", URL: "https://cdn/notes.txt"}},
	}, f.chat.got[0])
}

func TestOnMessageCreate_FlagsBotsAndThreads(t *testing.T) {
	f := newBotFixture(t)
	f.chat.err = errors.New("ignored")

	f.bot.OnMessageCreate(context.Background(), &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "t1", Type: discordgo.MessageTypeThreadCreated, Author: &discordgo.User{ID: "x", Bot: true},
	}})
	require.True(t, f.chat.got[0].AuthorIsBot)
	require.True(t, f.chat.got[0].ThreadCreated)
	require.False(t, f.chat.got[0].MentionsBot)

	f.bot.OnMessageCreate(context.Background(), &discordgo.MessageCreate{Message: &discordgo.Message{ID: "sys"}})
	require.Len(t, f.chat.got, 1, "messages without author are dropped")
}

func TestModelCommand(t *testing.T) {
	f := newBotFixture(t)
	f.commands.setResult = usecase.ModelResult{Settings: domain.ChatSettings{Model: "mistral:7b", NumCtx: 4096, Temperature: 0.5}}

	f.bot.OnInteractionCreate(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name:        commandModel,
		CommandType: discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: optionModel, Type: discordgo.ApplicationCommandOptionString, Value: "mistral:7b"},
			{Name: optionNumCtx, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(4096)},
			{Name: optionSystemPrompt, Type: discordgo.ApplicationCommandOptionString, Value: "be brief"},
			{Name: optionTemperature, Type: discordgo.ApplicationCommandOptionNumber, Value: 0.5},
		},
	}))

	require.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, f.session.responses[0].Type)
	require.Len(t, f.commands.setOpts, 1)
	opts := f.commands.setOpts[0]
	require.Equal(t, "mistral:7b", opts.Model)
	require.Equal(t, 4096, *opts.NumCtx)
	require.Equal(t, "be brief", opts.SystemPrompt)
	require.InDelta(t, 0.5, *opts.Temperature, 1e-9)
	require.Equal(t, "c1", opts.ChannelID)

	require.Equal(t, []string{"mistral:7b"}, f.session.statuses)
	require.Len(t, f.session.edits, 1)
	require.Contains(t, f.session.edits[0], "**mistral:7b**")
}

func TestModelCommand_Errors(t *testing.T) {
	f := newBotFixture(t)
	f.commands.setErr = &usecase.Error{Code: usecase.ErrorUnknownModel, Reason: "model_not_installed"}

	f.bot.OnInteractionCreate(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
		Name: commandModel,
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: optionModel, Type: discordgo.ApplicationCommandOptionString, Value: "phi3"},
		},
	}))
	require.Equal(t, []string{"That model was not found in the model directory."}, f.session.edits)
	require.Empty(t, f.session.statuses)

	f = newBotFixture(t)
	f.commands.setResult = usecase.ModelResult{
		Settings: domain.ChatSettings{Model: "llama3"},
		LoadErr:  errors.New("timeout"),
	}
	f.bot.OnInteractionCreate(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{Name: commandModel}))
	require.Equal(t, []string{"There was an issue loading the model llama3."}, f.session.edits)
	require.Equal(t, []string{"llama3"}, f.session.statuses)
}

func TestHelpCommand(t *testing.T) {
	f := newBotFixture(t)
	f.bot.OnInteractionCreate(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{Name: commandHelp}))

	require.Len(t, f.session.responses, 1)
	resp := f.session.responses[0]
	require.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	require.Equal(t, "Bot Usage Instructions", resp.Data.Embeds[0].Title)
}

func TestRejoinCommand(t *testing.T) {
	cases := []struct {
		name   string
		result usecase.RejoinResult
		err    error
		reply  string
	}{
		{name: "with bot messages", result: usecase.RejoinResult{Model: "llama3", HasBotMessage: true}, reply: replyRejoined},
		{name: "user messages only", result: usecase.RejoinResult{Model: "llama3"}, reply: replyRejoinedNoBot},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "conversation_not_found"}, reply: "Unable to find the conversation for this message."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newBotFixture(t)
			f.commands.rejoinResult = tc.result
			f.commands.rejoinErr = tc.err

			f.bot.OnInteractionCreate(context.Background(), commandInteraction(discordgo.ApplicationCommandInteractionData{
				Name:        commandRejoin,
				CommandType: discordgo.MessageApplicationCommand,
				TargetID:    "b1",
			}))

			require.Equal(t, []string{"b1@c1"}, f.commands.rejoined)
			resp := f.session.responses[0]
			require.Equal(t, tc.reply, resp.Data.Content)
			require.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
		})
	}
}

func TestPageButtons(t *testing.T) {
	f := newBotFixture(t)
	f.pages.view = render.View{Description: "two", Footer: "llama3"}

	f.bot.OnInteractionCreate(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "i1",
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: "m1"},
		Data:    discordgo.MessageComponentInteractionData{CustomID: "next"},
	}})

	require.Equal(t, []render.Direction{render.Next}, f.pages.dirs)
	resp := f.session.responses[0]
	require.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	require.Equal(t, "two", resp.Data.Embeds[0].Description)

	f.pages.err = &usecase.Error{Code: usecase.ErrorNotFound, Reason: "no_page_data"}
	f.bot.OnInteractionCreate(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: "m9"},
		Data:    discordgo.MessageComponentInteractionData{CustomID: "previous"},
	}})
	require.Equal(t, discordgo.MessageFlagsEphemeral, f.session.responses[1].Data.Flags)

	f.bot.OnInteractionCreate(context.Background(), &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		Message: &discordgo.Message{ID: "m1"},
		Data:    discordgo.MessageComponentInteractionData{CustomID: "other-button"},
	}})
	require.Len(t, f.session.responses, 2, "unknown buttons are left to other handlers")
}

func TestApplicationCommands_CapsChoices(t *testing.T) {
	models := make([]string, 40)
	for i := range models {
		models[i] = "m"
	}
	cmds := applicationCommands(models)
	require.Len(t, cmds[0].Options[0].Choices, maxModelChoices)
}
