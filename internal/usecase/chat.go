package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"discord-ollama/internal/domain"
)

const (
	commandStop  = "stop"
	commandReset = "reset"

	replyNoActiveModel = "No active model. Please set a model using the /model command."
)

// Store is the persisted cache the services read and write.
type Store interface {
	MessageWriter
	State() domain.BotState
	UpdateState(fn func(*domain.BotState)) error
	CreateConversation() (string, error)
	Message(messageID string) (domain.CachedMessage, bool)
	Conversations() []domain.Conversation
	FindConversation(messageID, channelID string) (domain.Conversation, int, bool)
}

// Channel covers the chat-side actions around a generation.
type Channel interface {
	Typing(ctx context.Context, channelID string) error
	Delete(ctx context.Context, ref domain.MessageRef) error
	Notify(ctx context.Context, channelID, text string) error
	// ReferencedText returns the text of a replied-to message, preferring
	// the description of its first embed.
	ReferencedText(ctx context.Context, ref domain.MessageRef) (string, error)
}

type AttachmentFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// IncomingMessage is a chat message as seen by the bot.
type IncomingMessage struct {
	ID            string
	ChannelID     string
	Content       string
	AuthorIsBot   bool
	ThreadCreated bool
	MentionsBot   bool
	ReferenceID   string
	Attachments   []Attachment
}

// ChatDefaults are the model parameters restored by "reset".
type ChatDefaults struct {
	NumCtx         int
	Temperature    float64
	RequireMention bool
}

// ChatService turns chat messages in the active channel into generations.
type ChatService struct {
	store       Store
	channel     Channel
	attachments AttachmentFetcher
	responder   *Responder
	session     *Session
	defaults    ChatDefaults
}

func NewChatService(store Store, channel Channel, attachments AttachmentFetcher, responder *Responder, session *Session, defaults ChatDefaults) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if channel == nil {
		return nil, errors.New("usecase: channel must not be nil")
	}
	if responder == nil || session == nil {
		return nil, errors.New("usecase: responder and session must not be nil")
	}
	return &ChatService{
		store:       store,
		channel:     channel,
		attachments: attachments,
		responder:   responder,
		session:     session,
		defaults:    defaults,
	}, nil
}

// HandleMessage reacts to one chat message. Messages from bots, thread
// notices, messages outside the active channel and, when mentions are
// required, messages that do not mention the bot are ignored.
func (s *ChatService) HandleMessage(ctx context.Context, msg IncomingMessage) error {
	if msg.AuthorIsBot || msg.ThreadCreated {
		return nil
	}
	if s.defaults.RequireMention && !msg.MentionsBot {
		return nil
	}
	state := s.store.State()
	if state.ActiveChannel == "" || msg.ChannelID != state.ActiveChannel {
		return nil
	}

	ref := domain.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ID}
	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case commandStop:
		if s.session.Cancel() {
			slog.Info("generation stopped by user", "channel", msg.ChannelID)
		}
		s.deleteCommand(ctx, ref)
		return nil
	case commandReset:
		err := s.reset()
		s.deleteCommand(ctx, ref)
		return err
	}

	if err := s.store.PutMessage(domain.CachedMessage{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Data:      domain.MessageData{Content: msg.Content, IsUserMessage: true},
	}); err != nil {
		slog.Warn("failed to cache user message", "message", msg.ID, "err", err)
	}

	settings := s.session.Settings()
	if settings.Model == "" {
		if err := s.channel.Notify(ctx, msg.ChannelID, replyNoActiveModel); err != nil {
			slog.Warn("failed to send notice", "channel", msg.ChannelID, "err", err)
		}
		return newError(ErrorNoActiveModel, "no_active_model", nil)
	}

	prompt := withRestoredConversation(state, buildUserInput(s.promptParts(ctx, msg)))
	if state.RestoredConversation != "" {
		if err := s.store.UpdateState(func(st *domain.BotState) {
			st.RestoredConversation = ""
			st.RestoredInstructions = ""
		}); err != nil {
			slog.Warn("failed to clear restored conversation", "err", err)
		}
	}

	if err := s.channel.Typing(ctx, msg.ChannelID); err != nil {
		slog.Debug("typing indicator failed", "channel", msg.ChannelID, "err", err)
	}

	_, err := s.responder.Respond(ctx, StreamRequest{
		ChannelID: msg.ChannelID,
		ReplyToID: msg.ID,
		Request: domain.GenerateRequest{
			Model:       settings.Model,
			Prompt:      prompt,
			System:      settings.System,
			Context:     s.session.ContextTokens(),
			Temperature: settings.Temperature,
			NumCtx:      settings.NumCtx,
			KeepAlive:   settings.KeepAlive,
		},
	})
	return err
}

func (s *ChatService) promptParts(ctx context.Context, msg IncomingMessage) promptParts {
	parts := promptParts{content: msg.Content}
	for _, a := range msg.Attachments {
		if !a.isText() || s.attachments == nil {
			continue
		}
		body, err := s.attachments.FetchText(ctx, a.URL)
		if err != nil {
			slog.Warn("failed to fetch attachment", "name", a.Name, "err", err)
			parts.attachments = append(parts.attachments, attachmentError(a.Name))
			continue
		}
		parts.attachments = append(parts.attachments, attachmentText(a.Name, body))
	}
	if msg.ReferenceID != "" {
		text, err := s.channel.ReferencedText(ctx, domain.MessageRef{ChannelID: msg.ChannelID, MessageID: msg.ReferenceID})
		if err != nil {
			slog.Warn("failed to fetch replied message", "message", msg.ReferenceID, "err", err)
		} else {
			parts.replied = &text
		}
	}
	return parts
}

// reset clears the continuation and system prompt, restores the default
// parameters and starts a new conversation.
func (s *ChatService) reset() error {
	s.session.ResetContext()
	s.session.UpdateSettings(func(cs *domain.ChatSettings) {
		cs.System = ""
		cs.NumCtx = s.defaults.NumCtx
		cs.Temperature = s.defaults.Temperature
	})
	if _, err := s.store.CreateConversation(); err != nil {
		return newError(ErrorInternal, "cache_write_error", err)
	}
	numCtx, temperature := s.defaults.NumCtx, s.defaults.Temperature
	if err := s.store.UpdateState(func(st *domain.BotState) {
		st.LastSystemPrompt = ""
		st.LastNumCtx = &numCtx
		st.LastTemperature = &temperature
	}); err != nil {
		return newError(ErrorInternal, "cache_write_error", err)
	}
	return nil
}

func (s *ChatService) deleteCommand(ctx context.Context, ref domain.MessageRef) {
	if err := s.channel.Delete(ctx, ref); err != nil {
		slog.Warn("failed to delete command message", "message", ref.MessageID, "err", err)
	}
}
