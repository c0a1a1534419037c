package usecase

import (
	"sync"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

type libraryEntry struct {
	channelID string
	data      *domain.MessageData
}

// Library holds the live render state of every paged message. The stream
// goroutine of a generation and button navigation share its lock.
type Library struct {
	mu    sync.Mutex
	items map[string]libraryEntry
}

func NewLibrary() *Library {
	return &Library{items: map[string]libraryEntry{}}
}

// Do runs fn under the library lock.
func (l *Library) Do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

// Track registers md as the render state of ref, replacing any earlier one.
func (l *Library) Track(ref domain.MessageRef, md *domain.MessageData) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[ref.MessageID] = libraryEntry{channelID: ref.ChannelID, data: md}
}

// Forget drops the render state of messageID.
func (l *Library) Forget(messageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.items, messageID)
}

// Get returns a copy of the render state of messageID.
func (l *Library) Get(messageID string) (domain.CachedMessage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.items[messageID]
	if !ok {
		return domain.CachedMessage{}, false
	}
	return snapshot(messageID, e), true
}

// Navigate moves the page of messageID and returns the updated state. ok is
// false when the message is unknown or has no pages; moved is false when the
// index was already at the bound.
func (l *Library) Navigate(messageID string, dir render.Direction) (msg domain.CachedMessage, moved, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, found := l.items[messageID]
	if !found || e.data == nil || len(e.data.Pages) == 0 {
		return domain.CachedMessage{}, false, false
	}
	moved = render.Navigate(e.data, dir)
	return snapshot(messageID, e), moved, true
}

func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func snapshot(messageID string, e libraryEntry) domain.CachedMessage {
	md := *e.data
	md.Pages = append([]string(nil), e.data.Pages...)
	return domain.CachedMessage{MessageID: messageID, ChannelID: e.channelID, Data: md}
}
