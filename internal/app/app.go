package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
)

// ErrSessionNotFound is returned when activating an id the store does not
// know.
var ErrSessionNotFound = errors.New("session not found")

// Store is the read side of persistence the projection reloads from.
type Store interface {
	ListSessions(ctx context.Context) ([]proto.Session, error)
	GetSession(ctx context.Context, id string) (proto.Session, bool, error)
	GetMessagesForSession(ctx context.Context, sessionID string) ([]proto.Message, error)
}

// Gateway is the part of the model gateway the projection needs.
type Gateway interface {
	CheckAvailability(ctx context.Context) gateway.Availability
	ModelParameters(ctx context.Context) (gateway.Params, error)
	DisposeSession(h gateway.Handle)
}

// App owns the current State and publishes every transition.
type App struct {
	store   Store
	gateway Gateway

	mu    sync.RWMutex
	state State

	broker *pubsub.Broker[State]
}

func New(store Store, gw Gateway) *App {
	return &App{
		store:   store,
		gateway: gw,
		broker:  pubsub.NewBroker[State](),
	}
}

// State returns the current snapshot.
func (a *App) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Subscribe returns a channel receiving the state after each transition.
func (a *App) Subscribe(ctx context.Context) <-chan pubsub.Event[State] {
	return a.broker.Subscribe(ctx)
}

func (a *App) apply(fn func(State) State) State {
	a.mu.Lock()
	next := fn(a.state)
	a.state = next
	a.mu.Unlock()
	a.broker.Publish(pubsub.UpdatedEvent, next)
	return next
}

// Load reads the capability status and the session list. Failures degrade
// to an empty list and a surfaced error, never a returned one.
func (a *App) Load(ctx context.Context) {
	a.apply(func(s State) State { return s.SetLoading(true) })
	defer a.apply(func(s State) State { return s.SetLoading(false) })

	status := a.gateway.CheckAvailability(ctx)
	var params *gateway.Params
	if p, err := a.gateway.ModelParameters(ctx); err == nil {
		params = &p
	} else {
		slog.Debug("Model parameters not available", "error", err)
	}
	a.apply(func(s State) State { return s.SetCapability(status, params) })

	sessions, err := a.store.ListSessions(ctx)
	if err != nil {
		slog.Error("Failed to load sessions", "error", err)
		a.apply(func(s State) State {
			return s.SetSessions(nil).SetError(fmt.Sprintf("failed to load sessions: %v", err))
		})
		return
	}
	a.apply(func(s State) State { return s.SetSessions(sessions) })
}

func (a *App) AddSession(session proto.Session) {
	a.apply(func(s State) State { return s.AddSession(session) })
}

func (a *App) UpdateSession(session proto.Session) {
	a.apply(func(s State) State { return s.UpdateSession(session) })
}

// DeleteSession removes a session from the projection, disposing its handle
// when it was the active one.
func (a *App) DeleteSession(id string) {
	var stale gateway.Handle
	a.apply(func(s State) State {
		if s.ActiveSession != nil && s.ActiveSession.ID == id {
			stale = s.Handle
		}
		return s.DeleteSession(id)
	})
	if stale != nil {
		a.gateway.DisposeSession(stale)
	}
}

func (a *App) AddMessage(msg proto.Message) {
	a.apply(func(s State) State { return s.AddMessage(msg) })
}

func (a *App) UpdateMessage(msg proto.Message) {
	a.apply(func(s State) State { return s.UpdateMessage(msg) })
}

func (a *App) DeleteMessage(id string) {
	a.apply(func(s State) State { return s.DeleteMessage(id) })
}

// SetError surfaces err in the error slot. Aborts are not errors and are
// dropped.
func (a *App) SetError(err error) {
	if err == nil || gateway.IsAbort(err) {
		return
	}
	a.apply(func(s State) State { return s.SetError(err.Error()) })
}

func (a *App) ClearError() {
	a.apply(func(s State) State { return s.ClearError() })
}

func (a *App) SetLoading(loading bool) {
	a.apply(func(s State) State { return s.SetLoading(loading) })
}

// SetActiveSession makes id the active session with h as its live handle
// and reloads the transcript from the store. A previous handle other than h
// is disposed exactly once. When the transcript cannot be read the session
// is still activated with an empty list and the error is surfaced.
func (a *App) SetActiveSession(ctx context.Context, id string, h gateway.Handle) error {
	session, found, err := a.store.GetSession(ctx, id)
	if err != nil {
		a.SetError(err)
		return err
	}
	if !found {
		return ErrSessionNotFound
	}

	messages, loadErr := a.store.GetMessagesForSession(ctx, id)
	if loadErr != nil {
		slog.Error("Failed to load messages", "session", id, "error", loadErr)
		messages = nil
	}

	var stale gateway.Handle
	a.apply(func(s State) State {
		if s.Handle != nil && s.Handle != h {
			stale = s.Handle
		}
		next := s.activate(&session, messages, h)
		if loadErr != nil {
			next = next.SetError(fmt.Sprintf("failed to load messages: %v", loadErr))
		}
		return next
	})
	if stale != nil {
		a.gateway.DisposeSession(stale)
	}
	return nil
}

// ClearActiveSession deactivates the current session and disposes its
// handle.
func (a *App) ClearActiveSession() {
	var stale gateway.Handle
	a.apply(func(s State) State {
		stale = s.Handle
		return s.activate(nil, nil, nil)
	})
	if stale != nil {
		a.gateway.DisposeSession(stale)
	}
}

// Shutdown releases the live handle and closes subscriber channels.
func (a *App) Shutdown() {
	a.ClearActiveSession()
	a.broker.Shutdown()
}
