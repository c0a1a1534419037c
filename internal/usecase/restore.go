package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"discord-ollama/internal/domain"
)

const restoreConcurrency = 8

type MessageChecker interface {
	Exists(ctx context.Context, ref domain.MessageRef) (bool, error)
}

// Restore loads the paged messages of every cached conversation that still
// exist on the platform back into library, checking them concurrently. Lookup
// failures skip the message. It returns the number of restored messages.
func Restore(ctx context.Context, store Store, checker MessageChecker, library *Library) (int, error) {
	if store == nil || checker == nil || library == nil {
		return 0, errors.New("usecase: restore needs a store, a checker and a library")
	}

	var restored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)

	for _, conv := range store.Conversations() {
		for _, m := range conv.Messages {
			if m.Data.IsUserMessage || len(m.Data.Pages) == 0 {
				continue
			}
			g.Go(func() error {
				ref := domain.MessageRef{ChannelID: m.ChannelID, MessageID: m.MessageID}
				ok, err := checker.Exists(gctx, ref)
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					slog.Debug("skipping cached message", "message", m.MessageID, "err", err)
					return nil
				}
				if !ok {
					return nil
				}
				data := m.Data
				library.Track(ref, &data)
				restored.Add(1)
				return nil
			})
		}
	}

	err := g.Wait()
	return int(restored.Load()), err
}
