package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"discord-ollama/internal/domain"
)

// generation is the single in-flight request a Session tracks.
type generation struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// Session owns the current generation slot, the chat settings and the
// continuation token. Only one generation is current at a time; starting a
// new one cancels the previous one.
type Session struct {
	mu       sync.Mutex
	current  *generation
	settings domain.ChatSettings
	tokens   []int
}

func NewSession(settings domain.ChatSettings) *Session {
	return &Session{settings: settings}
}

// Start cancels any current generation and makes a new one current. The
// returned context is cancelled when the generation is superseded, stopped
// or finished.
func (s *Session) Start(parent context.Context) (context.Context, uuid.UUID) {
	ctx, cancel := context.WithCancel(parent)
	id := newEpoch()

	s.mu.Lock()
	prev := s.current
	s.current = &generation{id: id, cancel: cancel}
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	return ctx, id
}

// IsCurrent reports whether id is still the current generation.
func (s *Session) IsCurrent(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.id == id
}

// Cancel stops the current generation, if any, and reports whether there was one.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()

	if prev == nil {
		return false
	}
	prev.cancel()
	return true
}

// Finish clears the slot when id is still current, storing tokens as the
// continuation for the next prompt when it is not nil. It reports whether id
// was current.
func (s *Session) Finish(id uuid.UUID, tokens []int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.id != id {
		return false
	}
	if tokens != nil {
		s.tokens = append([]int(nil), tokens...)
	}
	s.current.cancel()
	s.current = nil
	return true
}

// Settings returns the chat settings applied to new prompts.
func (s *Session) Settings() domain.ChatSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Session) UpdateSettings(fn func(*domain.ChatSettings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
}

// ContextTokens returns a copy of the continuation token.
func (s *Session) ContextTokens() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil
	}
	return append([]int(nil), s.tokens...)
}

func (s *Session) ResetContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = nil
}

var newEpoch = func() uuid.UUID {
	return uuid.New()
}
