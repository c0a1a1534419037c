package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"discord-ollama/internal/domain"
	"discord-ollama/internal/render"
)

const (
	defaultUpdateFrequency = 10

	noticeGenerateFailed = "An error occurred while generating the response. Please try again or contact an administrator."
	noticeRenderFailed   = "An error occurred while updating the response message."
)

// errSuperseded stops a stream whose generation is no longer current.
var errSuperseded = errors.New("usecase: generation superseded")

type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest, fn func(domain.Fragment) error) error
}

// Sink delivers rendered pages to the chat platform. Edit returns an error
// wrapping domain.ErrContentTooLarge when the platform rejects the size.
type Sink interface {
	Create(ctx context.Context, channelID, replyToID string, view render.View) (domain.MessageRef, error)
	Edit(ctx context.Context, ref domain.MessageRef, view render.View) error
	Notify(ctx context.Context, channelID, text string) error
}

type MessageWriter interface {
	PutMessage(msg domain.CachedMessage) error
}

// RenderStateMirror receives a copy of every persisted render state.
type RenderStateMirror interface {
	PutRenderState(ctx context.Context, msg domain.CachedMessage) error
}

type ResponderConfig struct {
	CharacterLimit  int
	UpdateFrequency int
	MinEditInterval time.Duration
}

// Responder streams one generation into a paged chat message.
type Responder struct {
	gen       Generator
	sink      Sink
	store     MessageWriter
	mirror    RenderStateMirror
	session   *Session
	library   *Library
	paginator render.Paginator
	frequency int
	interval  time.Duration
	now       func() time.Time
}

func NewResponder(gen Generator, sink Sink, store MessageWriter, session *Session, library *Library, cfg ResponderConfig) (*Responder, error) {
	if gen == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if sink == nil {
		return nil, errors.New("usecase: sink must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	if session == nil || library == nil {
		return nil, errors.New("usecase: session and library must not be nil")
	}
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = defaultUpdateFrequency
	}
	return &Responder{
		gen:       gen,
		sink:      sink,
		store:     store,
		session:   session,
		library:   library,
		paginator: render.NewPaginator(cfg.CharacterLimit),
		frequency: cfg.UpdateFrequency,
		interval:  cfg.MinEditInterval,
		now:       time.Now,
	}, nil
}

// WithMirror sets an optional mirror for persisted render state.
func (r *Responder) WithMirror(m RenderStateMirror) *Responder {
	r.mirror = m
	return r
}

type StreamRequest struct {
	ChannelID string
	ReplyToID string
	Request   domain.GenerateRequest
}

// streamRun is the render cycle of one generation.
type streamRun struct {
	r       *Responder
	req     StreamRequest
	md      *domain.MessageData
	ref     domain.MessageRef
	limiter *rate.Limiter
}

// Respond makes req the current generation and streams it into the channel.
// It returns the live message once the stream completes. A generation that
// is cancelled or superseded ends silently with a zero ref and nil error.
func (r *Responder) Respond(ctx context.Context, req StreamRequest) (domain.MessageRef, error) {
	genCtx, id := r.session.Start(ctx)

	run := &streamRun{r: r, req: req, md: render.NewState(req.Request.Model)}
	if r.interval > 0 {
		run.limiter = rate.NewLimiter(rate.Every(r.interval), 1)
	}

	var tokens []int
	received := 0
	err := r.gen.Generate(genCtx, req.Request, func(f domain.Fragment) error {
		if !r.session.IsCurrent(id) {
			return errSuperseded
		}
		if f.Context != nil {
			tokens = f.Context
		}
		if f.Text == "" {
			return nil
		}
		r.library.Do(func() { r.paginator.Append(run.md, f.Text) })
		received++
		if received == r.frequency {
			received = 0
			if err := run.render(genCtx, false); err != nil {
				slog.Warn("page render failed", "channel", req.ChannelID, "err", err)
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errSuperseded), !r.session.IsCurrent(id):
		return domain.MessageRef{}, nil
	case genCtx.Err() != nil:
		r.session.Finish(id, nil)
		return domain.MessageRef{}, nil
	case err != nil:
		r.session.Finish(id, nil)
		slog.Error("generation failed", "channel", req.ChannelID, "model", req.Request.Model, "err", err)
		if nerr := r.sink.Notify(ctx, req.ChannelID, noticeGenerateFailed); nerr != nil {
			slog.Warn("failed to send notice", "channel", req.ChannelID, "err", nerr)
		}
		if status, ok := upstreamStatusCode(err); ok {
			return domain.MessageRef{}, newError(ErrorUpstream, fmt.Sprintf("ollama_status_%d", status), err)
		}
		return domain.MessageRef{}, newError(ErrorUpstream, "generate_error", err)
	}

	r.library.Do(func() { render.Finalize(run.md) })
	renderErr := run.render(genCtx, true)
	r.session.Finish(id, tokens)

	if renderErr != nil || run.ref.IsZero() {
		slog.Error("final render failed", "channel", req.ChannelID, "err", renderErr)
		if nerr := r.sink.Notify(ctx, req.ChannelID, noticeRenderFailed); nerr != nil {
			slog.Warn("failed to send notice", "channel", req.ChannelID, "err", nerr)
		}
		if run.ref.IsZero() {
			return domain.MessageRef{}, newError(ErrorInternal, "render_failed", renderErr)
		}
	}

	r.persist(ctx, run.ref)
	return run.ref, nil
}

// render pushes the current page to the sink: create on the first call, edit
// afterwards. Intermediate renders may be dropped by the edit limiter.
func (run *streamRun) render(ctx context.Context, final bool) error {
	if !final && run.limiter != nil && !run.limiter.Allow() {
		return nil
	}

	var view render.View
	run.r.library.Do(func() { view = render.NewView(run.md, run.r.now()) })

	if run.ref.IsZero() {
		ref, err := run.r.sink.Create(ctx, run.req.ChannelID, run.req.ReplyToID, view)
		if err != nil {
			return err
		}
		run.ref = ref
		run.r.library.Track(ref, run.md)
		return nil
	}

	err := run.r.sink.Edit(ctx, run.ref, view)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrContentTooLarge) {
		return err
	}
	ref, cerr := run.r.sink.Create(ctx, run.req.ChannelID, "", view)
	if cerr != nil {
		return fmt.Errorf("usecase: size-limit fallback: %w", cerr)
	}
	slog.Info("message over size limit, continuing in a new message", "old", run.ref.MessageID, "new", ref.MessageID)
	run.ref = ref
	run.r.library.Track(ref, run.md)
	return nil
}

func (r *Responder) persist(ctx context.Context, ref domain.MessageRef) {
	msg, ok := r.library.Get(ref.MessageID)
	if !ok {
		return
	}
	if err := r.store.PutMessage(msg); err != nil {
		slog.Error("failed to cache message", "message", ref.MessageID, "err", err)
	}
	if r.mirror != nil {
		if err := r.mirror.PutRenderState(ctx, msg); err != nil {
			slog.Warn("failed to mirror render state", "message", ref.MessageID, "err", err)
		}
	}
}
