package store

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one millisecond on every read.
func tickingClock() func() time.Time {
	var n atomic.Int64
	base := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New(db.SetupTestDB(t), WithClock(tickingClock()))
	t.Cleanup(s.Close)
	return s
}

func ptr[T any](v T) *T { return &v }

func TestStore_CreateAndGetSession(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, proto.CreateSessionParams{
		Name:        "Chat",
		TopK:        ptr(3),
		Temperature: ptr(0.7),
		InitialPrompts: []proto.SeedTurn{
			{Role: proto.SeedSystem, Content: "be brief"},
		},
		InputUsage: 12,
		InputQuota: 4096,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, found, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, created, got)

	_, found, err = s.GetSession(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_ListSessionsByUpdateTimeDescending(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "first"})
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "second"})
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, []string{sessions[0].ID, sessions[1].ID})

	_, _, err = s.UpdateSession(ctx, first.ID, proto.UpdateSessionParams{Name: ptr("renamed")})
	require.NoError(t, err)

	sessions, err = s.ListSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, sessions[0].ID)
	require.Equal(t, "renamed", sessions[0].Name)
}

func TestStore_UpdateSessionMergesFields(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "Chat", TopK: ptr(4), InputQuota: 100})
	require.NoError(t, err)

	updated, found, err := s.UpdateSession(ctx, created.ID, proto.UpdateSessionParams{InputUsage: ptr(int64(42))})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "Chat", updated.Name)
	require.Equal(t, 4, *updated.TopK)
	require.EqualValues(t, 42, updated.InputUsage)
	require.EqualValues(t, 100, updated.InputQuota)
	require.Greater(t, updated.UpdatedAt, created.UpdatedAt)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, found, err = s.UpdateSession(ctx, "missing", proto.UpdateSessionParams{Name: ptr("x")})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_DeleteSessionRemovesItsMessages(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	doomed, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "doomed"})
	require.NoError(t, err)
	kept, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "kept"})
	require.NoError(t, err)

	for _, sessionID := range []string{doomed.ID, doomed.ID, kept.ID} {
		_, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: sessionID, Role: proto.User, Content: "hi"})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteSession(ctx, doomed.ID))

	_, found, err := s.GetSession(ctx, doomed.ID)
	require.NoError(t, err)
	require.False(t, found)

	msgs, err := s.GetMessagesForSession(ctx, doomed.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = s.GetMessagesForSession(ctx, kept.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, s.DeleteSession(ctx, "missing"))
}

func TestStore_MessagesOrderedByTimestamp(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	var want []string
	for _, content := range []string{"one", "two", "three"} {
		m, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: "s1", Role: proto.User, Content: content})
		require.NoError(t, err)
		want = append(want, m.ID)
	}

	msgs, err := s.GetMessagesForSession(ctx, "s1")
	require.NoError(t, err)
	var got []string
	for i, m := range msgs {
		got = append(got, m.ID)
		if i > 0 {
			require.GreaterOrEqual(t, m.Timestamp, msgs[i-1].Timestamp)
		}
	}
	require.Equal(t, want, got)
}

func TestStore_UpdateMessageStreamingLifecycle(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	placeholder, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: "s1", Role: proto.Assistant, IsStreaming: true})
	require.NoError(t, err)
	require.True(t, placeholder.IsStreaming)

	content := ""
	for _, chunk := range []string{"Hel", "lo", " world"} {
		content += chunk
		m, found, err := s.UpdateMessage(ctx, placeholder.ID, proto.UpdateMessageParams{Content: ptr(content)})
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, m.IsStreaming)
		require.Equal(t, content, m.Content)
	}

	final, _, err := s.UpdateMessage(ctx, placeholder.ID, proto.UpdateMessageParams{IsStreaming: ptr(false)})
	require.NoError(t, err)
	require.False(t, final.IsStreaming)
	require.Equal(t, "Hello world", final.Content)

	_, _, err = s.UpdateMessage(ctx, placeholder.ID, proto.UpdateMessageParams{IsStreaming: ptr(true)})
	require.ErrorIs(t, err, ErrFinalized)

	got, _, err := s.GetMessage(ctx, placeholder.ID)
	require.NoError(t, err)
	require.False(t, got.IsStreaming)

	_, found, err := s.UpdateMessage(ctx, "missing", proto.UpdateMessageParams{Content: ptr("x")})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_DeleteMessagesForSessionCount(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: "s1", Role: proto.User, Content: "x"})
		require.NoError(t, err)
	}

	n, err := s.DeleteMessagesForSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = s.DeleteMessagesForSession(ctx, "s1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	a, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "a", Temperature: ptr(1.5)})
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "b", InitialPrompts: []proto.SeedTurn{{Role: proto.SeedUser, Content: "hi"}}})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: a.ID, Role: proto.User, Content: "q"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: a.ID, Role: proto.Assistant, Content: "oops", IsError: true})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: b.ID, Role: proto.User, Content: "r"})
	require.NoError(t, err)

	before, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, before.Sessions, 2)
	require.Len(t, before.Messages, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, before))

	require.NoError(t, s.ClearAll(ctx))
	empty, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Empty(t, empty.Sessions)
	require.Empty(t, empty.Messages)

	snap, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.NoError(t, s.ImportAll(ctx, snap))

	after, err := s.ExportAll(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestStore_ImportOverwritesExisting(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "original"})
	require.NoError(t, err)

	replacement := created
	replacement.Name = "imported"
	require.NoError(t, s.ImportAll(ctx, proto.Snapshot{Sessions: []proto.Session{replacement}}))

	got, found, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "imported", got.Name)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestStore_StorageStats(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx := context.Background()

	stats, err := s.StorageStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.SessionCount)
	require.Zero(t, stats.MessageCount)
	require.Positive(t, stats.ApproxBytes)

	session, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "a"})
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: session.ID, Role: proto.User, Content: "hello"})
	require.NoError(t, err)

	grown, err := s.StorageStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, grown.SessionCount)
	require.Equal(t, 1, grown.MessageCount)
	require.Greater(t, grown.ApproxBytes, stats.ApproxBytes)
	require.Len(t, grown.Checksum, 16)
	require.NotEqual(t, stats.Checksum, grown.Checksum)

	snap, err := s.ExportAll(ctx)
	require.NoError(t, err)
	replica := setupStore(t)
	require.NoError(t, replica.ImportAll(ctx, snap))
	copied, err := replica.StorageStats(ctx)
	require.NoError(t, err)
	require.Equal(t, grown.Checksum, copied.Checksum)
}

func TestStore_PublishesEvents(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := s.SubscribeSessions(ctx)
	session, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(ctx, session.ID))

	for _, want := range []pubsub.EventType{pubsub.CreatedEvent, pubsub.DeletedEvent} {
		select {
		case ev := <-events:
			require.Equal(t, want, ev.Type)
			require.Equal(t, session.ID, ev.Payload.ID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestStore_ClearAllPublishesDeletions(t *testing.T) {
	t.Parallel()

	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := s.CreateSession(ctx, proto.CreateSessionParams{Name: "a"})
	require.NoError(t, err)
	first, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: session.ID, Role: proto.User, Content: "hi"})
	require.NoError(t, err)
	second, err := s.CreateMessage(ctx, proto.CreateMessageParams{SessionID: session.ID, Role: proto.Assistant, Content: "hello"})
	require.NoError(t, err)

	sessionEvents := s.SubscribeSessions(ctx)
	messageEvents := s.SubscribeMessages(ctx)
	require.NoError(t, s.ClearAll(ctx))

	var removed []string
	for range 2 {
		select {
		case ev := <-messageEvents:
			require.Equal(t, pubsub.DeletedEvent, ev.Type)
			removed = append(removed, ev.Payload.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message deletion")
		}
	}
	require.ElementsMatch(t, []string{first.ID, second.ID}, removed)

	select {
	case ev := <-sessionEvents:
		require.Equal(t, pubsub.DeletedEvent, ev.Type)
		require.Equal(t, session.ID, ev.Payload.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session deletion")
	}
}

func TestStore_ClosedConnectionIsStorageError(t *testing.T) {
	t.Parallel()

	conn := db.SetupTestDB(t)
	s := New(conn)
	require.NoError(t, conn.Close())

	_, err := s.CreateSession(context.Background(), proto.CreateSessionParams{Name: "a"})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "create session", se.Op)
}

func TestReadSnapshot_RejectsInvalidRecords(t *testing.T) {
	t.Parallel()

	_, err := ReadSnapshot(bytes.NewBufferString(`{"sessions":[{"name":"x"}],"messages":[]}`))
	require.Error(t, err)

	_, err = ReadSnapshot(bytes.NewBufferString(`{"sessions":[],"messages":[{"id":"m","sessionId":"s","role":"tool"}]}`))
	require.Error(t, err)

	_, err = ReadSnapshot(bytes.NewBufferString(`not json`))
	require.Error(t, err)
}
