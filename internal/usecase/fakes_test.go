package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

type mockGenerator struct {
	mu        sync.Mutex
	fragments []domain.Fragment
	err       error
	run       func(ctx context.Context, req domain.GenerateRequest, fn func(domain.Fragment) error) error
	requests  []domain.GenerateRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req domain.GenerateRequest, fn func(domain.Fragment) error) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	run := m.run
	m.mu.Unlock()
	if run != nil {
		return run(ctx, req, fn)
	}
	for _, f := range m.fragments {
		if err := fn(f); err != nil {
			return err
		}
	}
	return m.err
}

func (m *mockGenerator) lastRequest() domain.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

func textFragments(done []int, texts ...string) []domain.Fragment {
	out := make([]domain.Fragment, 0, len(texts)+1)
	for _, t := range texts {
		out = append(out, domain.Fragment{Text: t})
	}
	return append(out, domain.Fragment{Done: true, Context: done})
}

// ---------------------------------------------------------------------------
// Sink / Channel
// ---------------------------------------------------------------------------

type createCall struct {
	channelID string
	replyToID string
	view      render.View
	ref       domain.MessageRef
}

type editCall struct {
	ref  domain.MessageRef
	view render.View
}

type mockSink struct {
	mu       sync.Mutex
	nextID   int
	creates  []createCall
	edits    []editCall
	notices  []string
	typing   []string
	deleted  []domain.MessageRef
	editErrs []error
	createFn func(call createCall) error

	referenced    map[string]string
	referencedErr error
}

func (m *mockSink) Create(_ context.Context, channelID, replyToID string, view render.View) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := createCall{channelID: channelID, replyToID: replyToID, view: view}
	if m.createFn != nil {
		if err := m.createFn(call); err != nil {
			return domain.MessageRef{}, err
		}
	}
	m.nextID++
	call.ref = domain.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", m.nextID)}
	m.creates = append(m.creates, call)
	return call.ref, nil
}

func (m *mockSink) Edit(_ context.Context, ref domain.MessageRef, view render.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, editCall{ref: ref, view: view})
	if len(m.editErrs) > 0 {
		err := m.editErrs[0]
		m.editErrs = m.editErrs[1:]
		return err
	}
	return nil
}

func (m *mockSink) Notify(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, text)
	return nil
}

func (m *mockSink) Typing(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, channelID)
	return nil
}

func (m *mockSink) Delete(_ context.Context, ref domain.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *mockSink) ReferencedText(_ context.Context, ref domain.MessageRef) (string, error) {
	if m.referencedErr != nil {
		return "", m.referencedErr
	}
	text, ok := m.referenced[ref.MessageID]
	if !ok {
		return "", errors.New("unknown message")
	}
	return text, nil
}

func (m *mockSink) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates)
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	state    domain.BotState
	convs    map[string]*domain.Conversation
	putErr   error
	stateErr error
}

func newMemStore() *memStore {
	return &memStore{convs: map[string]*domain.Conversation{}}
}

func (m *memStore) State() domain.BotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *memStore) UpdateState(fn func(*domain.BotState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return m.stateErr
	}
	fn(&m.state)
	return nil
}

func (m *memStore) CreateConversation() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ConversationCounter++
	id := fmt.Sprintf("conv-%04d", m.state.ConversationCounter)
	m.convs[id] = &domain.Conversation{ID: id}
	m.state.CurrentConversationID = id
	return id, nil
}

func (m *memStore) PutMessage(msg domain.CachedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	for _, c := range m.convs {
		for i := range c.Messages {
			if c.Messages[i].MessageID == msg.MessageID {
				c.Messages[i] = msg
				return nil
			}
		}
	}
	conv := m.convs[m.state.CurrentConversationID]
	if conv == nil {
		m.state.ConversationCounter++
		id := fmt.Sprintf("conv-%04d", m.state.ConversationCounter)
		conv = &domain.Conversation{ID: id}
		m.convs[id] = conv
		m.state.CurrentConversationID = id
	}
	conv.Messages = append(conv.Messages, msg)
	m.state.MessageCount++
	return nil
}

func (m *memStore) Message(messageID string) (domain.CachedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		for _, msg := range c.Messages {
			if msg.MessageID == messageID {
				return msg, true
			}
		}
	}
	return domain.CachedMessage{}, false
}

func (m *memStore) Conversations() []domain.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Conversation, 0, len(m.convs))
	for _, c := range m.convs {
		cp := *c
		cp.Messages = append([]domain.CachedMessage(nil), c.Messages...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) FindConversation(messageID, channelID string) (domain.Conversation, int, bool) {
	for _, c := range m.Conversations() {
		for i, msg := range c.Messages {
			if msg.MessageID == messageID && msg.ChannelID == channelID {
				return c, i, true
			}
		}
	}
	return domain.Conversation{}, 0, false
}

// ---------------------------------------------------------------------------
// Mirror / catalog / attachments / checker
// ---------------------------------------------------------------------------

type mockMirror struct {
	mu   sync.Mutex
	puts []domain.CachedMessage
	err  error
}

func (m *mockMirror) PutRenderState(_ context.Context, msg domain.CachedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, msg)
	return m.err
}

type mockCatalog struct {
	models  []string
	listErr error
	loadErr error
	loaded  []domain.ChatSettings
}

func (m *mockCatalog) ListModels(context.Context) ([]string, error) {
	return m.models, m.listErr
}

func (m *mockCatalog) LoadModel(_ context.Context, settings domain.ChatSettings) error {
	m.loaded = append(m.loaded, settings)
	return m.loadErr
}

type mockAttachments struct {
	bodies map[string]string
}

func (m *mockAttachments) FetchText(_ context.Context, url string) (string, error) {
	body, ok := m.bodies[url]
	if !ok {
		return "", errors.New("404")
	}
	return body, nil
}

type mockChecker struct {
	missing map[string]bool
	failing map[string]bool
}

func (m *mockChecker) Exists(_ context.Context, ref domain.MessageRef) (bool, error) {
	if m.failing[ref.MessageID] {
		return false, errors.New("discord unavailable")
	}
	return !m.missing[ref.MessageID], nil
}

// statusErr mimics the Ollama client's HTTPStatusError.
type statusErr struct{ code int }

func (e *statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) HTTPStatusCode() int { return e.code }
