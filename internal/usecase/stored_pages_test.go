package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

type fakeRenderStates struct {
	items  map[string]domain.CachedMessage
	getErr error
	setErr error
	sets   []int
}

func (f *fakeRenderStates) GetRenderState(_ context.Context, messageID string) (domain.CachedMessage, error) {
	if f.getErr != nil {
		return domain.CachedMessage{}, f.getErr
	}
	msg, ok := f.items[messageID]
	if !ok {
		return domain.CachedMessage{}, fmt.Errorf("render state: %w", domain.ErrNotFound)
	}
	return msg, nil
}

func (f *fakeRenderStates) SetPageIndex(_ context.Context, messageID string, index int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets = append(f.sets, index)
	msg := f.items[messageID]
	msg.Data.CurrentPageIndex = index
	f.items[messageID] = msg
	return nil
}

func newStoredFixture(t *testing.T) (*StoredPageService, *fakeRenderStates) {
	t.Helper()
	store := &fakeRenderStates{items: map[string]domain.CachedMessage{
		"m1": {MessageID: "m1", ChannelID: "c1", Data: domain.MessageData{Pages: []string{"one", "two"}, ModelName: "llama3"}},
		"m2": {MessageID: "m2", ChannelID: "c1"},
	}}
	svc, err := NewStoredPageService(store)
	require.NoError(t, err)
	return svc, store
}

func TestStoredNavigate(t *testing.T) {
	svc, store := newStoredFixture(t)

	view, moved, err := svc.Navigate(context.Background(), "m1", render.Next)
	require.NoError(t, err)
	require.True(t, moved)
	require.Equal(t, render.View{Description: "two", Footer: "llama3", NextDisabled: true}, view)
	require.Equal(t, []int{1}, store.sets)

	view, moved, err = svc.Navigate(context.Background(), "m1", render.Next)
	require.NoError(t, err)
	require.False(t, moved)
	require.Equal(t, "two", view.Description)
	require.Len(t, store.sets, 1)
}

func TestStoredNavigate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		id     string
		getErr error
		setErr error
		code   ErrorCode
	}{
		{name: "unknown message", id: "missing", code: ErrorNotFound},
		{name: "no pages", id: "m2", code: ErrorNotFound},
		{name: "read failure", id: "m1", getErr: errors.New("throttled"), code: ErrorInternal},
		{name: "write failure", id: "m1", setErr: errors.New("throttled"), code: ErrorInternal},
		{name: "deleted between read and write", id: "m1", setErr: domain.ErrNotFound, code: ErrorNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newStoredFixture(t)
			store.getErr = tc.getErr
			store.setErr = tc.setErr

			_, _, err := svc.Navigate(context.Background(), tc.id, render.Next)
			require.Error(t, err)
			require.Equal(t, tc.code, CodeOf(err))
		})
	}
}

func TestNewStoredPageService_NilStore(t *testing.T) {
	_, err := NewStoredPageService(nil)
	require.Error(t, err)
}
