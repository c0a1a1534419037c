// Package bot connects the Discord gateway to the chat, command and page
// services.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"discord-ollama/internal/integrations/discord"
	"discord-ollama/internal/render"
	"discord-ollama/internal/usecase"
)

const (
	activityNoModel = "no active model, use /model"

	replyRejoined      = "Rejoined the conversation."
	replyRejoinedNoBot = "Rejoined the conversation, but no previous bot messages found."
)

// sessionAPI is the subset of *discordgo.Session the bot uses.
type sessionAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	UpdateGameStatus(idle int, name string) error
}

type Chat interface {
	HandleMessage(ctx context.Context, msg usecase.IncomingMessage) error
}

type Commands interface {
	SetModel(ctx context.Context, opts usecase.ModelOptions) (usecase.ModelResult, error)
	Rejoin(messageID, channelID string) (usecase.RejoinResult, error)
	Resume(ctx context.Context) string
	ActiveChannel() string
	ClearActiveChannel() error
}

type Pager interface {
	Navigate(ctx context.Context, messageID string, dir render.Direction) (render.View, bool, error)
}

type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Restorer reloads paged messages after a restart and reports how many.
type Restorer func(ctx context.Context) (int, error)

type Deps struct {
	Chat     Chat
	Commands Commands
	Pages    Pager
	Models   ModelLister
	Restore  Restorer
}

// Bot dispatches gateway events. Handlers run on discordgo's event
// goroutines.
type Bot struct {
	api      sessionAPI
	chat     Chat
	commands Commands
	pages    Pager
	models   ModelLister
	restore  Restorer

	mu     sync.RWMutex
	selfID string
}

func New(api sessionAPI, deps Deps) (*Bot, error) {
	if api == nil {
		return nil, errors.New("bot: session must not be nil")
	}
	if deps.Chat == nil || deps.Commands == nil || deps.Pages == nil {
		return nil, errors.New("bot: chat, commands and pages must not be nil")
	}
	return &Bot{
		api:      api,
		chat:     deps.Chat,
		commands: deps.Commands,
		pages:    deps.Pages,
		models:   deps.Models,
		restore:  deps.Restore,
	}, nil
}

// Attach registers the bot's handlers on s. ctx bounds every handler.
func (b *Bot) Attach(ctx context.Context, s *discordgo.Session) {
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) { b.OnReady(ctx, r) })
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { b.OnMessageCreate(ctx, m) })
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) { b.OnInteractionCreate(ctx, i) })
}

// OnReady registers commands, resumes the last model, drops an active
// channel that no longer exists, restores paged messages and sets the
// activity.
func (b *Bot) OnReady(ctx context.Context, r *discordgo.Ready) {
	if r.User != nil {
		b.mu.Lock()
		b.selfID = r.User.ID
		b.mu.Unlock()
		slog.Info("logged in", "user", r.User.Username)
	}

	if err := b.registerCommands(ctx, r); err != nil {
		slog.Error("failed to register commands", "err", err)
	}

	model := b.commands.Resume(ctx)

	if ch := b.commands.ActiveChannel(); ch != "" {
		if _, err := b.api.Channel(ch, discordgo.WithContext(ctx)); err != nil {
			slog.Warn("active channel is gone, clearing it", "channel", ch, "err", err)
			if err := b.commands.ClearActiveChannel(); err != nil {
				slog.Error("failed to clear active channel", "err", err)
			}
		}
	}

	if b.restore != nil {
		n, err := b.restore(ctx)
		if err != nil {
			slog.Error("failed to restore message data", "err", err)
		}
		slog.Info("restored message data", "messages", n)
	}

	b.setActivity(model)
}

func (b *Bot) registerCommands(ctx context.Context, r *discordgo.Ready) error {
	appID := ""
	if r.Application != nil {
		appID = r.Application.ID
	}
	if appID == "" && r.User != nil {
		appID = r.User.ID
	}
	if appID == "" {
		return errors.New("bot: no application id")
	}

	var models []string
	if b.models != nil {
		var err error
		models, err = b.models.ListModels(ctx)
		if err != nil {
			slog.Warn("failed to list models for command choices", "err", err)
		}
	}
	if _, err := b.api.ApplicationCommandBulkOverwrite(appID, "", applicationCommands(models), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("bot: register commands: %w", err)
	}
	return nil
}

func (b *Bot) OnMessageCreate(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if err := b.chat.HandleMessage(ctx, b.incoming(m.Message)); err != nil {
		slog.Warn("message handling failed", "message", m.ID, "code", usecase.CodeOf(err), "err", err)
	}
}

func (b *Bot) incoming(m *discordgo.Message) usecase.IncomingMessage {
	b.mu.RLock()
	self := b.selfID
	b.mu.RUnlock()

	msg := usecase.IncomingMessage{
		ID:            m.ID,
		ChannelID:     m.ChannelID,
		Content:       m.Content,
		AuthorIsBot:   m.Author.Bot,
		ThreadCreated: m.Type == discordgo.MessageTypeThreadCreated,
	}
	for _, u := range m.Mentions {
		if u != nil && self != "" && u.ID == self {
			msg.MentionsBot = true
			break
		}
	}
	if m.MessageReference != nil {
		msg.ReferenceID = m.MessageReference.MessageID
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, usecase.Attachment{Name: a.Filename, ContentType: a.ContentType, URL: a.URL})
	}
	return msg
}

func (b *Bot) OnInteractionCreate(ctx context.Context, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		switch {
		case data.CommandType == discordgo.MessageApplicationCommand && data.Name == commandRejoin:
			b.handleRejoin(i.Interaction, data)
		case data.Name == commandModel:
			b.handleModel(ctx, i.Interaction, data)
		case data.Name == commandHelp:
			b.respond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{helpEmbed()}},
			})
		default:
			slog.Debug("unknown command", "name", data.Name)
		}
	case discordgo.InteractionMessageComponent:
		b.handlePage(ctx, i.Interaction)
	}
}

func (b *Bot) handleModel(ctx context.Context, i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	// Listing and warming the model can outlast the interaction deadline.
	if err := b.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Error("model command ack failed", "err", err)
		return
	}

	opts := usecase.ModelOptions{ChannelID: i.ChannelID}
	for _, o := range data.Options {
		switch o.Name {
		case optionModel:
			opts.Model = o.StringValue()
		case optionNumCtx:
			v := int(o.IntValue())
			opts.NumCtx = &v
		case optionSystemPrompt:
			opts.SystemPrompt = o.StringValue()
		case optionTemperature:
			v := o.FloatValue()
			opts.Temperature = &v
		}
	}

	res, err := b.commands.SetModel(ctx, opts)
	if err != nil {
		slog.Warn("model command failed", "model", opts.Model, "code", usecase.CodeOf(err), "err", err)
		b.editResponse(i, discord.ErrorText(err))
		return
	}
	b.setActivity(res.Settings.Model)

	if res.LoadErr != nil {
		b.editResponse(i, fmt.Sprintf("There was an issue loading the model %s.", res.Settings.Model))
		return
	}
	b.editResponse(i, modelSummary(res))
}

func modelSummary(res usecase.ModelResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Model **%s** loaded. Context window %d, temperature %.2f.", res.Settings.Model, res.Settings.NumCtx, res.Settings.Temperature)
	if res.Settings.System != "" {
		sb.WriteString("\nSystem prompt: ")
		sb.WriteString(res.Settings.System)
	}
	return sb.String()
}

func (b *Bot) handleRejoin(i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) {
	res, err := b.commands.Rejoin(data.TargetID, i.ChannelID)
	if err != nil {
		b.respond(i, discord.Ephemeral(discord.ErrorText(err)))
		return
	}
	b.setActivity(res.Model)
	if res.HasBotMessage {
		b.respond(i, discord.Ephemeral(replyRejoined))
		return
	}
	b.respond(i, discord.Ephemeral(replyRejoinedNoBot))
}

func (b *Bot) handlePage(ctx context.Context, i *discordgo.Interaction) {
	dir, ok := render.ParseDirection(i.MessageComponentData().CustomID)
	if !ok || i.Message == nil {
		return
	}
	view, _, err := b.pages.Navigate(ctx, i.Message.ID, dir)
	if err != nil {
		b.respond(i, discord.Ephemeral(discord.ErrorText(err)))
		return
	}
	b.respond(i, discord.PageUpdate(view))
}

func (b *Bot) respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := b.api.InteractionRespond(i, resp); err != nil {
		slog.Warn("interaction response failed", "interaction", i.ID, "err", err)
	}
}

func (b *Bot) editResponse(i *discordgo.Interaction, text string) {
	if _, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &text}); err != nil {
		slog.Warn("interaction edit failed", "interaction", i.ID, "err", err)
	}
}

func (b *Bot) setActivity(model string) {
	name := model
	if name == "" {
		name = activityNoModel
	}
	if err := b.api.UpdateGameStatus(0, name); err != nil {
		slog.Warn("failed to set activity", "err", err)
	}
}
