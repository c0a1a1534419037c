package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"discord-ollama/internal/domain"
)

const latestTag = ":latest"

type ModelCatalog interface {
	ListModels(ctx context.Context) ([]string, error)
	LoadModel(ctx context.Context, settings domain.ChatSettings) error
}

// ModelOptions are the arguments of the /model command. Nil pointers fall
// back to the configured defaults.
type ModelOptions struct {
	Model        string
	NumCtx       *int
	SystemPrompt string
	Temperature  *float64
	ChannelID    string
}

// ModelResult reports the applied settings. LoadErr is set when the model
// was selected but warming it up failed.
type ModelResult struct {
	Settings       domain.ChatSettings
	ConversationID string
	LoadErr        error
}

type RejoinResult struct {
	ConversationID string
	Model          string
	HasBotMessage  bool
}

// CommandService implements the slash and context-menu commands.
type CommandService struct {
	store    Store
	catalog  ModelCatalog
	session  *Session
	defaults ChatDefaults
}

func NewCommandService(store Store, catalog ModelCatalog, session *Session, defaults ChatDefaults) (*CommandService, error) {
	if store == nil {
		return nil, errors.New("usecase: store must not be nil")
	}
	if catalog == nil {
		return nil, errors.New("usecase: model catalog must not be nil")
	}
	if session == nil {
		return nil, errors.New("usecase: session must not be nil")
	}
	return &CommandService{store: store, catalog: catalog, session: session, defaults: defaults}, nil
}

// SetModel validates opts.Model against the installed models, stops any
// running generation, starts a new conversation with fresh settings, makes
// opts.ChannelID the active channel and warms the model.
func (s *CommandService) SetModel(ctx context.Context, opts ModelOptions) (ModelResult, error) {
	if err := s.store.UpdateState(func(st *domain.BotState) {
		st.RestoredConversation = ""
		st.RestoredInstructions = ""
	}); err != nil {
		return ModelResult{}, newError(ErrorInternal, "cache_write_error", err)
	}

	name := strings.TrimSpace(opts.Model)
	if name == "" {
		return ModelResult{}, newError(ErrorUnknownModel, "empty_model", nil)
	}
	model, err := s.resolveModel(ctx, name)
	if err != nil {
		return ModelResult{}, err
	}

	numCtx := s.defaults.NumCtx
	if opts.NumCtx != nil && *opts.NumCtx > 0 {
		numCtx = *opts.NumCtx
	}
	temperature := s.defaults.Temperature
	if opts.Temperature != nil && *opts.Temperature >= 0 {
		temperature = *opts.Temperature
	}

	s.session.Cancel()
	convID, err := s.store.CreateConversation()
	if err != nil {
		return ModelResult{}, newError(ErrorInternal, "cache_write_error", err)
	}
	s.session.ResetContext()
	s.session.UpdateSettings(func(cs *domain.ChatSettings) {
		cs.Model = model
		cs.System = opts.SystemPrompt
		cs.NumCtx = numCtx
		cs.Temperature = temperature
	})
	settings := s.session.Settings()

	if err := s.store.UpdateState(func(st *domain.BotState) {
		st.LastUsedModel = model
		st.LastSystemPrompt = opts.SystemPrompt
		st.LastNumCtx = &numCtx
		st.LastTemperature = &temperature
		st.LastKeepAlive = settings.KeepAlive
		st.CurrentConversationID = convID
		if opts.ChannelID != "" {
			st.ActiveChannel = opts.ChannelID
		}
	}); err != nil {
		return ModelResult{}, newError(ErrorInternal, "cache_write_error", err)
	}

	result := ModelResult{Settings: settings, ConversationID: convID}
	if err := s.catalog.LoadModel(ctx, settings); err != nil {
		slog.Warn("failed to load model", "model", model, "err", err)
		result.LoadErr = newError(ErrorUpstream, "model_load_error", err)
	}
	return result, nil
}

// resolveModel matches name against the installed models, accepting a bare
// name for its ":latest" tag.
func (s *CommandService) resolveModel(ctx context.Context, name string) (string, error) {
	models, err := s.catalog.ListModels(ctx)
	if err != nil {
		return "", newError(ErrorUpstream, "list_models_error", err)
	}
	for _, m := range models {
		if m == name {
			return m, nil
		}
	}
	for _, m := range models {
		if m == name+latestTag {
			return m, nil
		}
	}
	return "", newError(ErrorUnknownModel, "model_not_installed", nil)
}

// Rejoin restores the conversation holding messageID up to and including
// that message. The next prompt carries the transcript, and the channel
// becomes active.
func (s *CommandService) Rejoin(messageID, channelID string) (RejoinResult, error) {
	conv, idx, ok := s.store.FindConversation(messageID, channelID)
	if !ok {
		return RejoinResult{}, newError(ErrorNotFound, "conversation_not_found", nil)
	}
	history := conv.Messages[:idx+1]

	model := ""
	hasBot := false
	for _, m := range history {
		if m.Data.IsUserMessage {
			continue
		}
		hasBot = true
		if m.Data.ModelName != "" {
			model = m.Data.ModelName
		}
	}

	if err := s.store.UpdateState(func(st *domain.BotState) {
		st.CurrentConversationID = conv.ID
		st.ActiveChannel = channelID
		st.RestoredConversation = formatConversation(history)
		st.RestoredInstructions = rejoinInstructions
		if model != "" {
			st.LastUsedModel = model
		}
	}); err != nil {
		return RejoinResult{}, newError(ErrorInternal, "cache_write_error", err)
	}

	s.session.ResetContext()
	if model != "" {
		s.session.UpdateSettings(func(cs *domain.ChatSettings) { cs.Model = model })
	}
	return RejoinResult{ConversationID: conv.ID, Model: s.session.Settings().Model, HasBotMessage: hasBot}, nil
}

// Resume applies the persisted model settings when the model is still
// installed. It reports the active model, or "" when none was resumed.
func (s *CommandService) Resume(ctx context.Context) string {
	st := s.store.State()
	if st.LastUsedModel == "" {
		return ""
	}
	model, err := s.resolveModel(ctx, st.LastUsedModel)
	if err != nil {
		slog.Warn("last used model is not available", "model", st.LastUsedModel, "err", err)
		return ""
	}

	s.session.ResetContext()
	s.session.UpdateSettings(func(cs *domain.ChatSettings) {
		cs.Model = model
		cs.System = st.LastSystemPrompt
		cs.Temperature = s.defaults.Temperature
		if st.LastTemperature != nil {
			cs.Temperature = *st.LastTemperature
		}
		cs.NumCtx = s.defaults.NumCtx
		if st.LastNumCtx != nil && *st.LastNumCtx > 0 {
			cs.NumCtx = *st.LastNumCtx
		}
	})
	slog.Info("resumed last used model", "model", model)
	return model
}

// ClearActiveChannel forgets an active channel that no longer exists.
func (s *CommandService) ClearActiveChannel() error {
	return s.store.UpdateState(func(st *domain.BotState) { st.ActiveChannel = "" })
}

func (s *CommandService) ActiveChannel() string {
	return s.store.State().ActiveChannel
}
