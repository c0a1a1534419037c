package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"discord-ollama/internal/domain"
)

// FileStore keeps the bot cache in a single JSON document. Every mutation
// rewrites the whole file.
type FileStore struct {
	mu    sync.Mutex
	path  string
	cache *domain.Cache
	now   func() time.Time
}

// Open loads the cache at path. A missing, empty or unparsable file yields an
// empty cache; only an unreadable path is an error.
func Open(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: cache path must not be empty")
	}
	s := &FileStore{path: path, cache: domain.NewCache(), now: time.Now}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("repository: read cache %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	cache, err := decodeCache(data)
	if err != nil {
		slog.Warn("cache file is unreadable, starting empty", "path", path, "err", err)
		return s, nil
	}
	s.cache = cache
	return s, nil
}

// decodeCache accepts both the map form of conversations and the older array
// form, which is keyed by conversation id on load.
func decodeCache(data []byte) (*domain.Cache, error) {
	var raw struct {
		Conversations json.RawMessage `json:"conversations"`
		State         domain.BotState `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("repository: decode cache: %w", err)
	}

	cache := domain.NewCache()
	cache.State = raw.State

	trimmed := bytes.TrimSpace(raw.Conversations)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var list []*domain.Conversation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("repository: decode conversation list: %w", err)
		}
		for _, conv := range list {
			if conv != nil && conv.ID != "" {
				cache.Conversations[conv.ID] = conv
			}
		}
	default:
		if err := json.Unmarshal(trimmed, &cache.Conversations); err != nil {
			return nil, fmt.Errorf("repository: decode conversations: %w", err)
		}
		for id, conv := range cache.Conversations {
			if conv == nil {
				delete(cache.Conversations, id)
			}
		}
	}

	if cache.State.ConversationCounter == 0 {
		cache.State.ConversationCounter = len(cache.Conversations)
	}
	return cache, nil
}

// Close flushes the cache one last time.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// State returns a copy of the persisted bot state.
func (s *FileStore) State() domain.BotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.cache.State)
}

// UpdateState applies fn to the bot state and persists the result.
func (s *FileStore) UpdateState(fn func(*domain.BotState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cache.State)
	return s.flushLocked()
}

// CreateConversation starts a new conversation, makes it current and returns
// its id (conv-0001, conv-0002, ...).
func (s *FileStore) CreateConversation() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.createConversationLocked()
	if err := s.flushLocked(); err != nil {
		return id, err
	}
	return id, nil
}

func (s *FileStore) createConversationLocked() string {
	s.cache.State.ConversationCounter++
	id := fmt.Sprintf("conv-%04d", s.cache.State.ConversationCounter)
	s.cache.Conversations[id] = &domain.Conversation{
		ID:             id,
		StartTimestamp: s.now().UnixMilli(),
		Messages:       []domain.CachedMessage{},
	}
	s.cache.State.CurrentConversationID = id
	return id
}

// PutMessage updates msg in whichever conversation already holds it, or
// appends it to the current conversation, starting one when none is current.
// A new message bumps the message count.
func (s *FileStore) PutMessage(msg domain.CachedMessage) error {
	if msg.MessageID == "" {
		return errors.New("repository: PutMessage: message id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.Data = cloneMessageData(msg.Data)
	for _, conv := range s.cache.Conversations {
		for i := range conv.Messages {
			if conv.Messages[i].MessageID == msg.MessageID {
				conv.Messages[i] = msg
				return s.flushLocked()
			}
		}
	}

	conv := s.cache.Conversations[s.cache.State.CurrentConversationID]
	if conv == nil {
		conv = s.cache.Conversations[s.createConversationLocked()]
	}
	conv.Messages = append(conv.Messages, msg)
	s.cache.State.MessageCount++
	return s.flushLocked()
}

// Message returns the cached data of messageID from any conversation.
func (s *FileStore) Message(messageID string) (domain.CachedMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.cache.Conversations {
		for _, m := range conv.Messages {
			if m.MessageID == messageID {
				m.Data = cloneMessageData(m.Data)
				return m, true
			}
		}
	}
	return domain.CachedMessage{}, false
}

// Conversations returns copies of all conversations ordered by id.
func (s *FileStore) Conversations() []domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, 0, len(s.cache.Conversations))
	for _, conv := range s.cache.Conversations {
		out = append(out, cloneConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindConversation returns the conversation holding messageID in channelID
// and the position of the message within it.
func (s *FileStore) FindConversation(messageID, channelID string) (domain.Conversation, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.cache.Conversations {
		for i, m := range conv.Messages {
			if m.MessageID == messageID && m.ChannelID == channelID {
				return cloneConversation(conv), i, true
			}
		}
	}
	return domain.Conversation{}, 0, false
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: encode cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("repository: write cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("repository: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("repository: write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("repository: replace cache: %w", err)
	}
	return nil
}

func cloneMessageData(md domain.MessageData) domain.MessageData {
	if md.Pages != nil {
		md.Pages = append([]string(nil), md.Pages...)
	}
	return md
}

func cloneConversation(conv *domain.Conversation) domain.Conversation {
	out := *conv
	out.Messages = make([]domain.CachedMessage, len(conv.Messages))
	for i, m := range conv.Messages {
		m.Data = cloneMessageData(m.Data)
		out.Messages[i] = m
	}
	return out
}

func cloneState(st domain.BotState) domain.BotState {
	if st.LastTemperature != nil {
		v := *st.LastTemperature
		st.LastTemperature = &v
	}
	if st.LastNumCtx != nil {
		v := *st.LastNumCtx
		st.LastNumCtx = &v
	}
	return st
}
