package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/gateway/fake"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/stretchr/testify/require"
)

func TestNewSession_ValidatesParameters(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	ctx := context.Background()

	_, err := h.orch.NewSession(ctx, NewSessionParams{TopK: ptr(99)})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = h.orch.NewSession(ctx, NewSessionParams{Temperature: ptr(5.0)})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = h.orch.NewSession(ctx, NewSessionParams{
		InitialPrompts: []proto.SeedTurn{{Role: "narrator", Content: "x"}},
	})
	require.ErrorIs(t, err, ErrInvalidParameters)

	require.Empty(t, h.capability.Handles())
	sessions, err := h.store.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestNewSession_ActivatesSession(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	ctx := context.Background()

	session, err := h.orch.NewSession(ctx, NewSessionParams{
		TopK:        ptr(4),
		Temperature: ptr(0.5),
	})
	require.NoError(t, err)
	require.NotEmpty(t, session.Name)
	require.Equal(t, 4, *session.TopK)

	state := h.app.State()
	require.Equal(t, session.ID, state.ActiveSession.ID)
	require.NotNil(t, state.Handle)
	require.Len(t, state.Sessions, 1)
	require.False(t, state.Loading)

	handles := h.capability.Handles()
	require.Len(t, handles, 1)
	require.Equal(t, 4, *handles[0].Options.TopK)
}

func TestNewSession_ModelUnavailable(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	h.capability.SetStatus(gateway.Unavailable)

	_, err := h.orch.NewSession(context.Background(), NewSessionParams{Name: "x"})
	require.ErrorIs(t, err, gateway.ErrModelUnavailable)
	require.NotEmpty(t, h.app.State().Error)
	require.Nil(t, h.app.State().ActiveSession)
}

func TestOpenSession_SwitchDisposesPreviousHandleOnce(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	ctx := context.Background()

	first := h.newSession(t)
	second := h.newSession(t)

	handles := h.capability.Handles()
	require.Len(t, handles, 2)
	require.Equal(t, 1, handles[0].DestroyCalls())
	require.Zero(t, handles[1].DestroyCalls())

	opened, err := h.orch.OpenSession(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, opened.ID)

	handles = h.capability.Handles()
	require.Len(t, handles, 3)
	require.Equal(t, 1, handles[0].DestroyCalls())
	require.Equal(t, 1, handles[1].DestroyCalls())
	require.Zero(t, handles[2].DestroyCalls())

	// Opening the already active session keeps its handle.
	_, err = h.orch.OpenSession(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, h.capability.Handles(), 3)

	_, err = h.orch.OpenSession(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Equal(t, first.ID, h.app.State().ActiveSession.ID)
	require.NotEqual(t, second.ID, h.app.State().ActiveSession.ID)
}

func TestSwitchingSessionCancelsRunningTurn(t *testing.T) {
	t.Parallel()

	hold := func(string) fake.Script {
		return fake.Script{Chunks: []string{"Hel", "lo"}, Hold: true}
	}
	switches := map[string]func(h *harness) (proto.Session, error){
		"open": func(h *harness) (proto.Session, error) {
			other, err := h.store.CreateSession(context.Background(), proto.CreateSessionParams{Name: "other"})
			if err != nil {
				return proto.Session{}, err
			}
			return h.orch.OpenSession(context.Background(), other.ID)
		},
		"new": func(h *harness) (proto.Session, error) {
			return h.orch.NewSession(context.Background(), NewSessionParams{Name: "other"})
		},
	}
	for name, switchTo := range switches {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := setup(t, hold)
			first := h.newSession(t)

			done := h.submitAsync("greet me", SubmitOptions{Streaming: true})
			require.Eventually(t, func() bool {
				return h.assistantContent() == "Hello"
			}, 5*time.Second, 5*time.Millisecond)

			next, err := switchTo(h)
			require.NoError(t, err)
			require.Equal(t, next.ID, h.app.State().ActiveSession.ID)
			require.False(t, h.orch.IsBusy(first.ID))

			res := <-done
			require.Equal(t, Cancelled, res.Outcome)
			require.Equal(t, "Hello"+CancelledMarker, res.Message.Content)

			stored, _, err := h.store.GetMessage(context.Background(), res.Message.ID)
			require.NoError(t, err)
			require.Equal(t, "Hello"+CancelledMarker, stored.Content)
			require.False(t, stored.IsStreaming)

			require.True(t, h.capability.Streams()[0].Closed())
			require.Equal(t, 1, h.capability.Handles()[0].DestroyCalls())
		})
	}
}

func TestOpenSession_LoadsTranscript(t *testing.T) {
	t.Parallel()

	h := setup(t, func(string) fake.Script { return fake.Script{Reply: "ok"} })
	ctx := context.Background()

	first := h.newSession(t)
	_, err := h.orch.Submit(ctx, "remember", SubmitOptions{})
	require.NoError(t, err)
	h.newSession(t)
	require.Empty(t, h.app.State().Messages)

	_, err = h.orch.OpenSession(ctx, first.ID)
	require.NoError(t, err)
	messages := h.app.State().Messages
	require.Len(t, messages, 2)
	require.Equal(t, "remember", messages[0].Content)
	require.Equal(t, "ok", messages[1].Content)
}

func TestCloneSession(t *testing.T) {
	t.Parallel()

	h := setup(t, func(string) fake.Script { return fake.Script{Reply: "sure"} })
	ctx := context.Background()

	source := h.newSession(t)
	_, err := h.orch.Submit(ctx, "hello", SubmitOptions{})
	require.NoError(t, err)

	clone, err := h.orch.CloneSession(ctx)
	require.NoError(t, err)
	require.NotEqual(t, source.ID, clone.ID)
	require.Equal(t, source.Name+" (copy)", clone.Name)

	state := h.app.State()
	require.Equal(t, clone.ID, state.ActiveSession.ID)
	require.Len(t, state.Messages, 2)
	require.Equal(t, clone.ID, state.Messages[0].SessionID)

	original, err := h.store.GetMessagesForSession(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, original, 2)

	handles := h.capability.Handles()
	require.Len(t, handles, 2)
	require.Equal(t, 1, handles[0].DestroyCalls())
	require.Equal(t, handles[0].InputUsage(), handles[1].InputUsage())
}

func TestCloseSession(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	h.newSession(t)

	h.orch.CloseSession()
	require.Nil(t, h.app.State().ActiveSession)
	require.Equal(t, 1, h.capability.Handles()[0].DestroyCalls())

	h.orch.CloseSession()
	require.Equal(t, 1, h.capability.Handles()[0].DestroyCalls())
}

func TestUpdateSession(t *testing.T) {
	t.Parallel()

	h := setup(t, nil)
	ctx := context.Background()
	session := h.newSession(t)

	updated, err := h.orch.UpdateSession(ctx, session.ID, proto.UpdateSessionParams{Name: ptr("  renamed ")})
	require.NoError(t, err)
	require.Equal(t, "renamed", updated.Name)
	require.Equal(t, "renamed", h.app.State().ActiveSession.Name)

	_, err = h.orch.UpdateSession(ctx, session.ID, proto.UpdateSessionParams{TopK: ptr(0)})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = h.orch.UpdateSession(ctx, session.ID, proto.UpdateSessionParams{Name: ptr(" ")})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = h.orch.UpdateSession(ctx, "missing", proto.UpdateSessionParams{Name: ptr("x")})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	h := setup(t, func(string) fake.Script { return fake.Script{Reply: "bye"} })
	ctx := context.Background()
	session := h.newSession(t)
	_, err := h.orch.Submit(ctx, "hi", SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, h.orch.DeleteSession(ctx, session.ID))

	state := h.app.State()
	require.Nil(t, state.ActiveSession)
	require.Empty(t, state.Sessions)
	require.Equal(t, 1, h.capability.Handles()[0].DestroyCalls())

	stored, err := h.store.GetMessagesForSession(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestCheckpointer(t *testing.T) {
	t.Parallel()

	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	cp := newCheckpointer(CheckpointPolicy{EveryChunks: 3, Every: time.Second}, clock)
	require.False(t, cp.observe())
	require.False(t, cp.observe())
	require.True(t, cp.observe())

	now = now.Add(2 * time.Second)
	require.True(t, cp.observe())
	require.False(t, cp.observe())

	never := newCheckpointer(CheckpointPolicy{}, clock)
	for range 20 {
		require.False(t, never.observe())
	}
}
