package app

import (
	"context"
	"errors"
	"testing"

	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/gateway/fake"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/store"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) (*App, *store.Store, *fake.Capability) {
	t.Helper()
	st := store.New(db.SetupTestDB(t))
	t.Cleanup(st.Close)
	capability := fake.New()
	a := New(st, gateway.New(capability))
	t.Cleanup(a.Shutdown)
	return a, st, capability
}

func newHandle(t *testing.T, capability *fake.Capability) *fake.Handle {
	t.Helper()
	h, err := capability.Create(context.Background(), gateway.CreateOptions{})
	require.NoError(t, err)
	return h.(*fake.Handle)
}

func TestState_TransitionsDoNotMutate(t *testing.T) {
	t.Parallel()

	base := State{}.
		SetSessions([]proto.Session{{ID: "a", Name: "A"}}).
		activate(&proto.Session{ID: "a"}, []proto.Message{{ID: "m1", SessionID: "a"}}, nil)

	added := base.AddSession(proto.Session{ID: "b"})
	require.Len(t, base.Sessions, 1)
	require.Equal(t, "b", added.Sessions[0].ID)

	renamed := base.UpdateSession(proto.Session{ID: "a", Name: "Renamed"})
	require.Equal(t, "A", base.Sessions[0].Name)
	require.Equal(t, "Renamed", renamed.Sessions[0].Name)
	require.Equal(t, "Renamed", renamed.ActiveSession.Name)

	appended := base.AddMessage(proto.Message{ID: "m2", SessionID: "a"})
	require.Len(t, base.Messages, 1)
	require.Len(t, appended.Messages, 2)

	edited := appended.UpdateMessage(proto.Message{ID: "m1", SessionID: "a", Content: "hi"})
	require.Empty(t, appended.Messages[0].Content)
	require.Equal(t, "hi", edited.Messages[0].Content)

	removed := edited.DeleteMessage("m1")
	require.Len(t, edited.Messages, 2)
	require.Len(t, removed.Messages, 1)
}

func TestState_UpdateSessionMovesToHead(t *testing.T) {
	t.Parallel()

	base := State{}.SetSessions([]proto.Session{{ID: "c"}, {ID: "b"}, {ID: "a", Name: "A"}})

	updated := base.UpdateSession(proto.Session{ID: "a", Name: "Renamed"})
	require.Equal(t, []string{"a", "c", "b"}, sessionIDs(updated.Sessions))
	require.Equal(t, "Renamed", updated.Sessions[0].Name)
	require.Equal(t, []string{"c", "b", "a"}, sessionIDs(base.Sessions))

	unknown := base.UpdateSession(proto.Session{ID: "z"})
	require.Equal(t, []string{"c", "b", "a"}, sessionIDs(unknown.Sessions))
}

func sessionIDs(sessions []proto.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestState_AddMessageIgnoresOtherSessions(t *testing.T) {
	t.Parallel()

	s := State{}.activate(&proto.Session{ID: "a"}, nil, nil)
	s = s.AddMessage(proto.Message{ID: "x", SessionID: "b"})
	require.Empty(t, s.Messages)

	s = State{}.AddMessage(proto.Message{ID: "x", SessionID: "a"})
	require.Empty(t, s.Messages)
}

func TestState_DeleteActiveSessionClearsTranscript(t *testing.T) {
	t.Parallel()

	s := State{}.
		SetSessions([]proto.Session{{ID: "a"}, {ID: "b"}}).
		activate(&proto.Session{ID: "a"}, []proto.Message{{ID: "m", SessionID: "a"}}, nil)

	other := s.DeleteSession("b")
	require.NotNil(t, other.ActiveSession)
	require.Len(t, other.Messages, 1)

	gone := s.DeleteSession("a")
	require.Nil(t, gone.ActiveSession)
	require.Empty(t, gone.Messages)
	require.Len(t, gone.Sessions, 1)
}

func TestState_ErrorAndLoading(t *testing.T) {
	t.Parallel()

	s := State{}.SetError("boom").SetLoading(true)
	require.Equal(t, "boom", s.Error)
	require.True(t, s.Loading)

	s = s.ClearError().SetLoading(false)
	require.Empty(t, s.Error)
	require.False(t, s.Loading)
}

func TestApp_Load(t *testing.T) {
	t.Parallel()

	a, st, _ := setupApp(t)
	ctx := context.Background()

	_, err := st.CreateSession(ctx, proto.CreateSessionParams{Name: "first"})
	require.NoError(t, err)
	_, err = st.CreateSession(ctx, proto.CreateSessionParams{Name: "second"})
	require.NoError(t, err)

	a.Load(ctx)

	state := a.State()
	require.Equal(t, gateway.Available, state.Capability)
	require.NotNil(t, state.Params)
	require.Equal(t, 8, state.Params.MaxTopK)
	require.Len(t, state.Sessions, 2)
	require.False(t, state.Loading)
	require.Empty(t, state.Error)
}

func TestApp_LoadDegradesOnReadFailure(t *testing.T) {
	t.Parallel()

	conn := db.SetupTestDB(t)
	st := store.New(conn)
	a := New(st, gateway.New(nil))
	t.Cleanup(a.Shutdown)
	require.NoError(t, conn.Close())

	a.Load(context.Background())

	state := a.State()
	require.Equal(t, gateway.Unavailable, state.Capability)
	require.Nil(t, state.Params)
	require.Empty(t, state.Sessions)
	require.Contains(t, state.Error, "failed to load sessions")
}

func TestApp_SetActiveSessionReloadsMessages(t *testing.T) {
	t.Parallel()

	a, st, capability := setupApp(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, proto.CreateSessionParams{Name: "chat"})
	require.NoError(t, err)
	for _, content := range []string{"hi", "hello"} {
		_, err = st.CreateMessage(ctx, proto.CreateMessageParams{SessionID: session.ID, Role: proto.User, Content: content})
		require.NoError(t, err)
	}

	h := newHandle(t, capability)
	require.NoError(t, a.SetActiveSession(ctx, session.ID, h))

	state := a.State()
	require.Equal(t, session.ID, state.ActiveSession.ID)
	require.Equal(t, h, state.Handle)
	require.Len(t, state.Messages, 2)
	require.Equal(t, "hi", state.Messages[0].Content)

	require.ErrorIs(t, a.SetActiveSession(ctx, "missing", h), ErrSessionNotFound)
	require.Equal(t, session.ID, a.State().ActiveSession.ID)
}

func TestApp_SwitchingDisposesPreviousHandleOnce(t *testing.T) {
	t.Parallel()

	a, st, capability := setupApp(t)
	ctx := context.Background()

	first, err := st.CreateSession(ctx, proto.CreateSessionParams{Name: "one"})
	require.NoError(t, err)
	second, err := st.CreateSession(ctx, proto.CreateSessionParams{Name: "two"})
	require.NoError(t, err)

	h1 := newHandle(t, capability)
	h2 := newHandle(t, capability)

	require.NoError(t, a.SetActiveSession(ctx, first.ID, h1))
	require.NoError(t, a.SetActiveSession(ctx, first.ID, h1))
	require.Zero(t, h1.DestroyCalls())

	require.NoError(t, a.SetActiveSession(ctx, second.ID, h2))
	require.Equal(t, 1, h1.DestroyCalls())
	require.Zero(t, h2.DestroyCalls())

	a.ClearActiveSession()
	require.Equal(t, 1, h1.DestroyCalls())
	require.Equal(t, 1, h2.DestroyCalls())
	require.Nil(t, a.State().ActiveSession)

	a.Shutdown()
	require.Equal(t, 1, h2.DestroyCalls())
}

func TestApp_DeleteActiveSessionDisposesHandle(t *testing.T) {
	t.Parallel()

	a, st, capability := setupApp(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, proto.CreateSessionParams{Name: "doomed"})
	require.NoError(t, err)
	a.Load(ctx)

	h := newHandle(t, capability)
	require.NoError(t, a.SetActiveSession(ctx, session.ID, h))

	a.DeleteSession(session.ID)
	require.Equal(t, 1, h.DestroyCalls())
	require.Nil(t, a.State().ActiveSession)
	require.Empty(t, a.State().Sessions)
}

func TestApp_SetErrorIgnoresAborts(t *testing.T) {
	t.Parallel()

	a, _, _ := setupApp(t)

	a.SetError(context.Canceled)
	require.Empty(t, a.State().Error)

	a.SetError(errors.New("model crashed"))
	require.Equal(t, "model crashed", a.State().Error)

	a.ClearError()
	require.Empty(t, a.State().Error)
}

func TestApp_PublishesTransitions(t *testing.T) {
	t.Parallel()

	a, _, _ := setupApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := a.Subscribe(ctx)
	a.SetLoading(true)

	ev := <-events
	require.True(t, ev.Payload.Loading)
}
