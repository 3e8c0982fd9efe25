// Package store persists sessions and messages in the local database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
)

// StorageError reports a failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrFinalized is returned when an update would mark a finished message as
// streaming again.
var ErrFinalized = errors.New("message already finalized")

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrFinalized) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Store is the durable home of sessions and messages. Each operation runs in
// its own transaction; operations touching both entity kinds share one.
type Store struct {
	conn *sql.DB
	q    *db.Queries
	now  func() time.Time

	sessions *pubsub.Broker[proto.Session]
	messages *pubsub.Broker[proto.Message]
}

// Option configures a [Store].
type Option func(*Store)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a store over an already migrated connection, see [db.Connect].
func New(conn *sql.DB, opts ...Option) *Store {
	s := &Store{
		conn:     conn,
		q:        db.New(conn),
		now:      time.Now,
		sessions: pubsub.NewBroker[proto.Session](),
		messages: pubsub.NewBroker[proto.Message](),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubscribeSessions streams session lifecycle events.
func (s *Store) SubscribeSessions(ctx context.Context) <-chan pubsub.Event[proto.Session] {
	return s.sessions.Subscribe(ctx)
}

// SubscribeMessages streams message lifecycle events.
func (s *Store) SubscribeMessages(ctx context.Context) <-chan pubsub.Event[proto.Message] {
	return s.messages.Subscribe(ctx)
}

// Close stops event delivery. The connection is owned by the caller.
func (s *Store) Close() {
	s.sessions.Shutdown()
	s.messages.Shutdown()
}

func (s *Store) millis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) withTx(ctx context.Context, op string, fn func(q *db.Queries) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(s.q.WithTx(tx)); err != nil {
		return storageErr(op, err)
	}
	return storageErr(op, tx.Commit())
}
