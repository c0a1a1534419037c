// Package discord delivers rendered pages to Discord over the REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

// codeInvalidFormBody is what Discord answers when an embed is over its limits.
const codeInvalidFormBody = 50035

// Button custom ids. They double as render.Direction values.
const (
	ButtonPrevious = string(render.Previous)
	ButtonNext     = string(render.Next)
)

// discordAPI is the subset of *discordgo.Session the sink uses.
type discordAPI interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

type Sink struct {
	api discordAPI
}

func NewSink(api discordAPI) (*Sink, error) {
	if api == nil {
		return nil, errors.New("discord: api client must not be nil")
	}
	return &Sink{api: api}, nil
}

// Create posts a new page message in channelID, replying to replyToID when it
// is not empty.
func (s *Sink) Create(ctx context.Context, channelID, replyToID string, view render.View) (domain.MessageRef, error) {
	send := &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{Embed(view)},
		Components: Components(view),
	}
	if replyToID != "" {
		send.Reference = &discordgo.MessageReference{MessageID: replyToID, ChannelID: channelID}
	}
	msg, err := s.api.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("discord: create message: %w", classify(err))
	}
	return domain.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// Edit replaces the embed and buttons of ref with view.
func (s *Sink) Edit(ctx context.Context, ref domain.MessageRef, view render.View) error {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetEmbeds([]*discordgo.MessageEmbed{Embed(view)})
	components := Components(view)
	edit.Components = &components
	if _, err := s.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit message: %w", classify(err))
	}
	return nil
}

// Notify sends a plain text message.
func (s *Sink) Notify(ctx context.Context, channelID, text string) error {
	if _, err := s.api.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send notice: %w", err)
	}
	return nil
}

func (s *Sink) Typing(ctx context.Context, channelID string) error {
	if err := s.api.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: typing: %w", err)
	}
	return nil
}

func (s *Sink) Delete(ctx context.Context, ref domain.MessageRef) error {
	if err := s.api.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// Exists reports whether ref can still be fetched. Lookup failures other than
// Discord's "unknown" answers are returned as errors.
func (s *Sink) Exists(ctx context.Context, ref domain.MessageRef) (bool, error) {
	_, err := s.api.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err == nil {
		return true, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 404 {
		return false, nil
	}
	return false, fmt.Errorf("discord: fetch message: %w", err)
}

// ReferencedText returns the text of ref for use as reply context: the
// description of its first embed when it has one, its content otherwise.
func (s *Sink) ReferencedText(ctx context.Context, ref domain.MessageRef) (string, error) {
	msg, err := s.api.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: fetch referenced message: %w", err)
	}
	if len(msg.Embeds) > 0 && msg.Embeds[0] != nil {
		return msg.Embeds[0].Description, nil
	}
	return msg.Content, nil
}

// classify maps Discord's form-body rejection to domain.ErrContentTooLarge
// while keeping the original error in the chain.
func classify(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil && restErr.Message.Code == codeInvalidFormBody {
		return errors.Join(domain.ErrContentTooLarge, err)
	}
	return err
}

// Embed renders the page text and footer of view.
func Embed(view render.View) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Description: view.Description}
	if footer := strings.TrimSpace(view.Footer); footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	return embed
}

// Components renders the previous/next button row of view.
func Components(view render.View) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					CustomID: ButtonPrevious,
					Label:    "Previous",
					Style:    discordgo.SecondaryButton,
					Disabled: view.PrevDisabled,
				},
				discordgo.Button{
					CustomID: ButtonNext,
					Label:    "Next",
					Style:    discordgo.SecondaryButton,
					Disabled: view.NextDisabled,
				},
			},
		},
	}
}
