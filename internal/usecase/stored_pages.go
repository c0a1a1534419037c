package usecase

import (
	"context"
	"errors"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

// RenderStateStore is the durable render state used when no bot process
// holds the message in memory.
type RenderStateStore interface {
	GetRenderState(ctx context.Context, messageID string) (domain.CachedMessage, error)
	SetPageIndex(ctx context.Context, messageID string, index int) error
}

// StoredPageService serves page buttons from a RenderStateStore.
type StoredPageService struct {
	store RenderStateStore
}

func NewStoredPageService(store RenderStateStore) (*StoredPageService, error) {
	if store == nil {
		return nil, errors.New("usecase: render state store must not be nil")
	}
	return &StoredPageService{store: store}, nil
}

// Navigate behaves like PageService.Navigate against the stored state.
func (s *StoredPageService) Navigate(ctx context.Context, messageID string, dir render.Direction) (render.View, bool, error) {
	msg, err := s.store.GetRenderState(ctx, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		return render.View{}, false, newError(ErrorNotFound, "no_page_data", err)
	}
	if err != nil {
		return render.View{}, false, newError(ErrorInternal, "render_state_read_error", err)
	}
	if len(msg.Data.Pages) == 0 {
		return render.View{}, false, newError(ErrorNotFound, "no_page_data", nil)
	}

	if !render.Navigate(&msg.Data, dir) {
		return render.PageView(&msg.Data), false, nil
	}
	if err := s.store.SetPageIndex(ctx, messageID, msg.Data.CurrentPageIndex); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return render.View{}, false, newError(ErrorNotFound, "no_page_data", err)
		}
		return render.View{}, false, newError(ErrorInternal, "render_state_write_error", err)
	}
	return render.PageView(&msg.Data), true, nil
}
