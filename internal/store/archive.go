package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
	"github.com/zeebo/xxh3"
)

// ExportAll returns a consistent snapshot of every session and message.
func (s *Store) ExportAll(ctx context.Context) (proto.Snapshot, error) {
	snap := proto.Snapshot{
		Sessions: []proto.Session{},
		Messages: []proto.Message{},
	}
	err := s.withTx(ctx, "export", func(q *db.Queries) error {
		dbSessions, err := q.ListAllSessions(ctx)
		if err != nil {
			return err
		}
		if snap.Sessions, err = fromDBSessions(dbSessions); err != nil {
			return err
		}
		dbMessages, err := q.ListAllMessages(ctx)
		if err != nil {
			return err
		}
		snap.Messages = fromDBMessages(dbMessages)
		return nil
	})
	if err != nil {
		return proto.Snapshot{}, err
	}
	return snap, nil
}

// ImportAll upserts every record of snap in a single transaction. Records
// that already exist are overwritten.
func (s *Store) ImportAll(ctx context.Context, snap proto.Snapshot) error {
	err := s.withTx(ctx, "import", func(q *db.Queries) error {
		for _, session := range snap.Sessions {
			prompts, err := marshalSeedTurns(session.InitialPrompts)
			if err != nil {
				return err
			}
			if err := q.UpsertSession(ctx, db.UpsertSessionParams{
				ID:             session.ID,
				Name:           session.Name,
				TopK:           nullInt(session.TopK),
				Temperature:    nullFloat(session.Temperature),
				InitialPrompts: prompts,
				CreatedAt:      session.CreatedAt,
				UpdatedAt:      session.UpdatedAt,
				InputUsage:     session.InputUsage,
				InputQuota:     session.InputQuota,
			}); err != nil {
				return fmt.Errorf("session %s: %w", session.ID, err)
			}
		}
		for _, message := range snap.Messages {
			if err := q.UpsertMessage(ctx, db.UpsertMessageParams{
				ID:          message.ID,
				SessionID:   message.SessionID,
				Role:        string(message.Role),
				Content:     message.Content,
				Timestamp:   message.Timestamp,
				IsStreaming: message.IsStreaming,
				IsError:     message.IsError,
			}); err != nil {
				return fmt.Errorf("message %s: %w", message.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, session := range snap.Sessions {
		s.sessions.Publish(pubsub.CreatedEvent, session)
	}
	for _, message := range snap.Messages {
		s.messages.Publish(pubsub.CreatedEvent, message)
	}
	return nil
}

// ClearAll removes every session and message.
func (s *Store) ClearAll(ctx context.Context) error {
	var (
		sessions []db.Session
		messages []db.Message
	)
	err := s.withTx(ctx, "clear", func(q *db.Queries) error {
		var err error
		if sessions, err = q.ListAllSessions(ctx); err != nil {
			return err
		}
		if messages, err = q.ListAllMessages(ctx); err != nil {
			return err
		}
		if err := q.DeleteAllMessages(ctx); err != nil {
			return err
		}
		return q.DeleteAllSessions(ctx)
	})
	if err != nil {
		return err
	}
	for _, m := range messages {
		s.messages.Publish(pubsub.DeletedEvent, fromDBMessage(m))
	}
	for _, item := range sessions {
		if session, err := fromDBSession(item); err == nil {
			s.sessions.Publish(pubsub.DeletedEvent, session)
		}
	}
	return nil
}

// StorageStats counts records and estimates the size of the store as the
// length of its serialized export. Checksum fingerprints that export, so two
// stores holding the same records report the same value.
func (s *Store) StorageStats(ctx context.Context) (proto.Stats, error) {
	snap, err := s.ExportAll(ctx)
	if err != nil {
		return proto.Stats{}, err
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return proto.Stats{}, storageErr("stats", err)
	}
	return proto.Stats{
		SessionCount: len(snap.Sessions),
		MessageCount: len(snap.Messages),
		ApproxBytes:  int64(len(b)),
		Checksum:     fmt.Sprintf("%016x", xxh3.Hash(b)),
	}, nil
}

// WriteSnapshot writes snap in the export file format.
func WriteSnapshot(w io.Writer, snap proto.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// ReadSnapshot parses an export file.
func ReadSnapshot(r io.Reader) (proto.Snapshot, error) {
	var snap proto.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return proto.Snapshot{}, fmt.Errorf("invalid export file: %w", err)
	}
	for i, session := range snap.Sessions {
		if session.ID == "" {
			return proto.Snapshot{}, fmt.Errorf("invalid export file: session %d has no id", i)
		}
	}
	for i, message := range snap.Messages {
		if message.ID == "" || message.SessionID == "" {
			return proto.Snapshot{}, fmt.Errorf("invalid export file: message %d has no id or session id", i)
		}
		switch message.Role {
		case proto.User, proto.Assistant:
		default:
			return proto.Snapshot{}, fmt.Errorf("invalid export file: message %s has unknown role %q", message.ID, message.Role)
		}
	}
	return snap, nil
}
