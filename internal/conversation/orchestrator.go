// Package conversation runs prompt turns against the active model session,
// keeping the store and the app projection in step with the reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/promptdeck/promptdeck/internal/app"
	"github.com/promptdeck/promptdeck/internal/csync"
	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/proto"
)

// CancelledMarker is appended to a reply that was stopped by the user.
const CancelledMarker = "\n\n[Response cancelled]"

var (
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrNoActiveSession   = errors.New("no active session")
	ErrNoModelSession    = errors.New("active session has no model handle")
	ErrSessionBusy       = errors.New("session is busy with another prompt")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidParameters = errors.New("invalid session parameters")
)

// Store is the persistence the orchestrator writes through.
type Store interface {
	GetSession(ctx context.Context, id string) (proto.Session, bool, error)
	CreateSession(ctx context.Context, params proto.CreateSessionParams) (proto.Session, error)
	UpdateSession(ctx context.Context, id string, params proto.UpdateSessionParams) (proto.Session, bool, error)
	DeleteSession(ctx context.Context, id string) error
	GetMessagesForSession(ctx context.Context, sessionID string) ([]proto.Message, error)
	CreateMessage(ctx context.Context, params proto.CreateMessageParams) (proto.Message, error)
	UpdateMessage(ctx context.Context, id string, params proto.UpdateMessageParams) (proto.Message, bool, error)
}

// Outcome is how a turn ended.
type Outcome string

const (
	Finalized Outcome = "finalized"
	Cancelled Outcome = "cancelled"
	Errored   Outcome = "errored"
)

// Result is the assistant message a turn produced and how it ended. Err is
// set only for Errored turns.
type Result struct {
	Message proto.Message
	Outcome Outcome
	Err     error
}

type SubmitOptions struct {
	Streaming bool
	// Retries, when positive, retries a failed single-shot prompt with
	// exponential backoff. Streaming prompts are never retried.
	Retries int
}

type Option func(*Orchestrator)

func WithCheckpointPolicy(p CheckpointPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

type Orchestrator struct {
	store   Store
	gateway *gateway.Gateway
	app     *app.App
	policy  CheckpointPolicy
	now     func() time.Time

	// inflight maps a session id to its running turn.
	inflight *csync.Map[string, *turn]
}

type turn struct {
	cancel context.CancelFunc
	// done is closed once the turn has persisted its outcome.
	done chan struct{}
}

func New(store Store, gw *gateway.Gateway, a *app.App, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		gateway:  gw,
		app:      a,
		policy:   DefaultCheckpointPolicy(),
		now:      time.Now,
		inflight: csync.NewMap[string, *turn](),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// IsBusy reports whether a turn is running for the session.
func (o *Orchestrator) IsBusy(sessionID string) bool {
	_, ok := o.inflight.Get(sessionID)
	return ok
}

// Cancel aborts the running turn of the session, if any.
func (o *Orchestrator) Cancel(sessionID string) bool {
	t, ok := o.inflight.Get(sessionID)
	if !ok {
		return false
	}
	slog.Info("Cancelling prompt", "session", sessionID)
	t.cancel()
	return true
}

// stop cancels the running turn of the session and waits until it has
// persisted its outcome.
func (o *Orchestrator) stop(ctx context.Context, sessionID string) {
	t, ok := o.inflight.Get(sessionID)
	if !ok {
		return
	}
	slog.Info("Cancelling prompt", "session", sessionID)
	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
	}
}

// Submit runs one prompt turn against the active session. The user message
// is persisted first, then an empty streaming assistant placeholder, and
// only then is the model called. The returned error covers rejected
// preconditions and storage failures before the model runs; model failures
// are reported through Result.
func (o *Orchestrator) Submit(ctx context.Context, input string, opts SubmitOptions) (Result, error) {
	if strings.TrimSpace(input) == "" {
		return Result{}, ErrEmptyPrompt
	}
	state := o.app.State()
	if state.ActiveSession == nil {
		return Result{}, ErrNoActiveSession
	}
	if state.Handle == nil {
		return Result{}, ErrNoModelSession
	}
	sessionID := state.ActiveSession.ID
	h := state.Handle

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t := &turn{cancel: cancel, done: make(chan struct{})}
	if !o.inflight.SetIfAbsent(sessionID, t) {
		return Result{}, ErrSessionBusy
	}
	defer func() {
		o.inflight.Del(sessionID)
		close(t.done)
	}()

	if _, found, err := o.store.GetSession(ctx, sessionID); err != nil {
		o.app.SetError(err)
		return Result{}, err
	} else if !found {
		return Result{}, ErrSessionNotFound
	}

	o.app.ClearError()

	userMsg, err := o.store.CreateMessage(ctx, proto.CreateMessageParams{
		SessionID: sessionID,
		Role:      proto.User,
		Content:   input,
	})
	if err != nil {
		o.app.SetError(err)
		return Result{}, fmt.Errorf("failed to record prompt: %w", err)
	}
	o.app.AddMessage(userMsg)

	placeholder, err := o.store.CreateMessage(ctx, proto.CreateMessageParams{
		SessionID:   sessionID,
		Role:        proto.Assistant,
		IsStreaming: true,
	})
	if err != nil {
		o.app.SetError(err)
		return Result{}, fmt.Errorf("failed to create reply: %w", err)
	}
	o.app.AddMessage(placeholder)

	slog.Debug("Prompt submitted", "session", sessionID, "streaming", opts.Streaming)

	var content string
	var runErr error
	switch {
	case opts.Streaming:
		content, runErr = o.stream(turnCtx, h, placeholder, input)
	case opts.Retries > 0:
		content, runErr = o.gateway.PromptWithRetry(turnCtx, h, input, opts.Retries)
	default:
		content, runErr = o.gateway.ExecutePrompt(turnCtx, h, input)
	}

	// The turn context may already be cancelled; terminal writes must still
	// land.
	persistCtx := context.WithoutCancel(ctx)
	result := o.finish(persistCtx, placeholder, content, runErr, turnCtx.Err())
	o.refreshUsage(persistCtx, sessionID, h)
	return result, nil
}

func (o *Orchestrator) stream(ctx context.Context, h gateway.Handle, msg proto.Message, input string) (string, error) {
	stream, err := o.gateway.ExecuteStreamingPrompt(ctx, h, input)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var acc strings.Builder
	cp := newCheckpointer(o.policy, o.now)
	for stream.Next() {
		acc.WriteString(stream.Chunk())
		msg.Content = acc.String()
		o.app.UpdateMessage(msg)
		if cp.observe() {
			o.checkpoint(ctx, msg)
		}
	}
	return acc.String(), stream.Err()
}

// checkpoint persists partial content. A failed checkpoint is not fatal; the
// final write carries the full text.
func (o *Orchestrator) checkpoint(ctx context.Context, msg proto.Message) {
	content := msg.Content
	if _, _, err := o.store.UpdateMessage(ctx, msg.ID, proto.UpdateMessageParams{Content: &content}); err != nil {
		slog.Warn("Failed to checkpoint reply", "message", msg.ID, "error", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, msg proto.Message, content string, runErr, turnErr error) Result {
	outcome := Finalized
	switch {
	case gateway.IsAbort(runErr) || (runErr != nil && errors.Is(turnErr, context.Canceled)):
		outcome = Cancelled
		content += CancelledMarker
		runErr = nil
	case runErr != nil:
		outcome = Errored
	}

	streaming := false
	isError := outcome == Errored
	updated, found, err := o.store.UpdateMessage(ctx, msg.ID, proto.UpdateMessageParams{
		Content:     &content,
		IsStreaming: &streaming,
		IsError:     &isError,
	})
	if err != nil || !found {
		if err == nil {
			err = fmt.Errorf("reply %s disappeared", msg.ID)
		}
		slog.Error("Failed to finalize reply", "message", msg.ID, "error", err)
		o.app.SetError(err)
		updated = msg
		updated.Content = content
		updated.IsStreaming = false
		updated.IsError = isError
	}
	o.app.UpdateMessage(updated)

	switch outcome {
	case Errored:
		slog.Error("Prompt failed", "session", msg.SessionID, "error", runErr)
		o.app.SetError(runErr)
	case Cancelled:
		slog.Info("Prompt cancelled", "session", msg.SessionID)
	}
	return Result{Message: updated, Outcome: outcome, Err: runErr}
}

func (o *Orchestrator) refreshUsage(ctx context.Context, sessionID string, h gateway.Handle) {
	u := o.gateway.SessionUsage(h)
	updated, found, err := o.store.UpdateSession(ctx, sessionID, proto.UpdateSessionParams{
		InputUsage: &u.Usage,
		InputQuota: &u.Quota,
	})
	if err != nil {
		slog.Warn("Failed to record session usage", "session", sessionID, "error", err)
		o.app.SetError(err)
		return
	}
	if found {
		o.app.UpdateSession(updated)
	}
}
