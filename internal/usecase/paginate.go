package usecase

import (
	"context"
	"errors"
	"log/slog"

	"discord-ollama/internal/render"
)

// PageService serves previous/next button presses on paged messages.
type PageService struct {
	store   MessageWriter
	mirror  RenderStateMirror
	library *Library
}

func NewPageService(store MessageWriter, library *Library, mirror RenderStateMirror) (*PageService, error) {
	if store == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	if library == nil {
		return nil, errors.New("usecase: library must not be nil")
	}
	return &PageService{store: store, mirror: mirror, library: library}, nil
}

// Navigate moves the page of messageID in dir and returns the view to show.
// moved is false when the page was already at the bound; the returned view
// is then the unchanged current page. An unknown message yields NOT_FOUND.
func (s *PageService) Navigate(ctx context.Context, messageID string, dir render.Direction) (view render.View, moved bool, err error) {
	msg, moved, ok := s.library.Navigate(messageID, dir)
	if !ok {
		return render.View{}, false, newError(ErrorNotFound, "no_page_data", nil)
	}
	view = render.PageView(&msg.Data)
	if !moved {
		return view, false, nil
	}

	if err := s.store.PutMessage(msg); err != nil {
		slog.Warn("failed to cache page index", "message", messageID, "err", err)
	}
	if s.mirror != nil {
		if err := s.mirror.PutRenderState(ctx, msg); err != nil {
			slog.Warn("failed to mirror page index", "message", messageID, "err", err)
		}
	}
	return view, true, nil
}
