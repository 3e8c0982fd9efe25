package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/proto"
)

// NewSessionParams configures a new session. Nil sampling values fall back
// to the model defaults.
type NewSessionParams struct {
	Name           string
	TopK           *int
	Temperature    *float64
	InitialPrompts []proto.SeedTurn
	// OnProgress receives download progress while the model is fetched.
	OnProgress func(loaded int64, total *int64)
}

func (o *Orchestrator) validate(ctx context.Context, topK *int, temperature *float64) error {
	if topK == nil && temperature == nil {
		return nil
	}
	v := o.gateway.ValidateParameters(ctx, topK, temperature)
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(v.Errors, "; "))
}

// NewSession creates a model handle, persists the session with the usage
// the handle reports and makes it the active one.
func (o *Orchestrator) NewSession(ctx context.Context, params NewSessionParams) (proto.Session, error) {
	if err := o.validate(ctx, params.TopK, params.Temperature); err != nil {
		return proto.Session{}, err
	}
	for _, turn := range params.InitialPrompts {
		if !turn.Role.Valid() {
			return proto.Session{}, fmt.Errorf("%w: unknown seed role %q", ErrInvalidParameters, turn.Role)
		}
	}

	o.app.SetLoading(true)
	defer o.app.SetLoading(false)

	h, err := o.gateway.CreateSessionWithProgress(ctx, gateway.CreateOptions{
		TopK:           params.TopK,
		Temperature:    params.Temperature,
		InitialPrompts: params.InitialPrompts,
	}, params.OnProgress)
	if err != nil {
		o.app.SetError(err)
		return proto.Session{}, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = "Session " + o.now().Format(time.DateTime)
	}
	u := o.gateway.SessionUsage(h)
	session, err := o.store.CreateSession(ctx, proto.CreateSessionParams{
		Name:           name,
		TopK:           params.TopK,
		Temperature:    params.Temperature,
		InitialPrompts: params.InitialPrompts,
		InputUsage:     u.Usage,
		InputQuota:     u.Quota,
	})
	if err != nil {
		o.gateway.DisposeSession(h)
		o.app.SetError(err)
		return proto.Session{}, err
	}

	o.app.AddSession(session)
	o.releaseActive(ctx, session.ID)
	if err := o.app.SetActiveSession(ctx, session.ID, h); err != nil {
		o.gateway.DisposeSession(h)
		return proto.Session{}, err
	}
	slog.Info("Session created", "session", session.ID, "name", session.Name)
	return session, nil
}

// OpenSession activates an existing session with a fresh handle built from
// its stored configuration. The usage reported by the new handle replaces
// the stored figures.
func (o *Orchestrator) OpenSession(ctx context.Context, id string) (proto.Session, error) {
	session, found, err := o.store.GetSession(ctx, id)
	if err != nil {
		o.app.SetError(err)
		return proto.Session{}, err
	}
	if !found {
		return proto.Session{}, ErrSessionNotFound
	}

	if active := o.app.State(); active.ActiveSession != nil && active.ActiveSession.ID == id && active.Handle != nil {
		return *active.ActiveSession, nil
	}

	o.app.SetLoading(true)
	defer o.app.SetLoading(false)

	h, err := o.gateway.CreateSession(ctx, gateway.CreateOptions{
		TopK:           session.TopK,
		Temperature:    session.Temperature,
		InitialPrompts: session.InitialPrompts,
	})
	if err != nil {
		o.app.SetError(err)
		return proto.Session{}, err
	}

	o.releaseActive(ctx, id)
	if err := o.app.SetActiveSession(ctx, id, h); err != nil {
		o.gateway.DisposeSession(h)
		return proto.Session{}, err
	}
	o.refreshUsage(ctx, id, h)
	if st := o.app.State(); st.ActiveSession != nil {
		session = *st.ActiveSession
	}
	return session, nil
}

// CloneSession duplicates the active session. The clone gets a copy of the
// live handle, so the model keeps the conversation context, and a copy of
// the finished transcript. The clone becomes the active session.
func (o *Orchestrator) CloneSession(ctx context.Context) (proto.Session, error) {
	state := o.app.State()
	if state.ActiveSession == nil {
		return proto.Session{}, ErrNoActiveSession
	}
	if state.Handle == nil {
		return proto.Session{}, ErrNoModelSession
	}
	source := *state.ActiveSession
	if o.IsBusy(source.ID) {
		return proto.Session{}, ErrSessionBusy
	}

	h, err := o.gateway.CloneSession(ctx, state.Handle)
	if err != nil {
		o.app.SetError(err)
		return proto.Session{}, err
	}

	u := o.gateway.SessionUsage(h)
	clone, err := o.store.CreateSession(ctx, proto.CreateSessionParams{
		Name:           source.Name + " (copy)",
		TopK:           source.TopK,
		Temperature:    source.Temperature,
		InitialPrompts: source.InitialPrompts,
		InputUsage:     u.Usage,
		InputQuota:     u.Quota,
	})
	if err != nil {
		o.gateway.DisposeSession(h)
		o.app.SetError(err)
		return proto.Session{}, err
	}

	messages, err := o.store.GetMessagesForSession(ctx, source.ID)
	if err != nil {
		slog.Warn("Failed to read transcript for clone", "session", source.ID, "error", err)
	}
	for _, msg := range messages {
		if msg.IsStreaming {
			continue
		}
		if _, err := o.store.CreateMessage(ctx, proto.CreateMessageParams{
			SessionID: clone.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			IsError:   msg.IsError,
		}); err != nil {
			slog.Warn("Failed to copy message into clone", "session", clone.ID, "error", err)
			break
		}
	}

	o.app.AddSession(clone)
	o.releaseActive(ctx, clone.ID)
	if err := o.app.SetActiveSession(ctx, clone.ID, h); err != nil {
		o.gateway.DisposeSession(h)
		return proto.Session{}, err
	}
	slog.Info("Session cloned", "from", source.ID, "to", clone.ID)
	return clone, nil
}

// releaseActive stops the turn of the active session before its handle is
// replaced by the one for next.
func (o *Orchestrator) releaseActive(ctx context.Context, next string) {
	if st := o.app.State(); st.ActiveSession != nil && st.ActiveSession.ID != next {
		o.stop(ctx, st.ActiveSession.ID)
	}
}

// CloseSession stops any running turn of the active session, then releases
// its handle and deactivates it.
func (o *Orchestrator) CloseSession() {
	o.releaseActive(context.Background(), "")
	o.app.ClearActiveSession()
}

// UpdateSession renames or reconfigures a session. New sampling values are
// validated against the model bounds and apply to the next handle built for
// the session.
func (o *Orchestrator) UpdateSession(ctx context.Context, id string, params proto.UpdateSessionParams) (proto.Session, error) {
	if err := o.validate(ctx, params.TopK, params.Temperature); err != nil {
		return proto.Session{}, err
	}
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return proto.Session{}, fmt.Errorf("%w: name is empty", ErrInvalidParameters)
		}
		params.Name = &name
	}
	session, found, err := o.store.UpdateSession(ctx, id, params)
	if err != nil {
		o.app.SetError(err)
		return proto.Session{}, err
	}
	if !found {
		return proto.Session{}, ErrSessionNotFound
	}
	o.app.UpdateSession(session)
	return session, nil
}

// DeleteSession cancels a running turn, removes the session and its messages
// and drops it from the projection.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	o.stop(ctx, id)
	if err := o.store.DeleteSession(ctx, id); err != nil {
		o.app.SetError(err)
		return err
	}
	o.app.DeleteSession(id)
	slog.Info("Session deleted", "session", id)
	return nil
}
