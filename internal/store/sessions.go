package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
)

func (s *Store) CreateSession(ctx context.Context, params proto.CreateSessionParams) (proto.Session, error) {
	prompts, err := marshalSeedTurns(params.InitialPrompts)
	if err != nil {
		return proto.Session{}, storageErr("create session", err)
	}
	now := s.millis()
	dbSession, err := s.q.CreateSession(ctx, db.CreateSessionParams{
		ID:             uuid.New().String(),
		Name:           params.Name,
		TopK:           nullInt(params.TopK),
		Temperature:    nullFloat(params.Temperature),
		InitialPrompts: prompts,
		CreatedAt:      now,
		UpdatedAt:      now,
		InputUsage:     params.InputUsage,
		InputQuota:     params.InputQuota,
	})
	if err != nil {
		return proto.Session{}, storageErr("create session", err)
	}
	session, err := fromDBSession(dbSession)
	if err != nil {
		return proto.Session{}, storageErr("create session", err)
	}
	s.sessions.Publish(pubsub.CreatedEvent, session)
	return session, nil
}

// GetSession returns the session with the given id. found is false when no
// such session exists.
func (s *Store) GetSession(ctx context.Context, id string) (session proto.Session, found bool, err error) {
	dbSession, err := s.q.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return proto.Session{}, false, nil
	}
	if err != nil {
		return proto.Session{}, false, storageErr("get session", err)
	}
	session, err = fromDBSession(dbSession)
	if err != nil {
		return proto.Session{}, false, storageErr("get session", err)
	}
	return session, true, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]proto.Session, error) {
	dbSessions, err := s.q.ListSessions(ctx)
	if err != nil {
		return nil, storageErr("list sessions", err)
	}
	return fromDBSessions(dbSessions)
}

// UpdateSession merges the non-nil fields of params into the session and
// bumps its update time. found is false when no such session exists.
func (s *Store) UpdateSession(ctx context.Context, id string, params proto.UpdateSessionParams) (session proto.Session, found bool, err error) {
	err = s.withTx(ctx, "update session", func(q *db.Queries) error {
		current, err := q.GetSession(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		arg := db.UpdateSessionParams{
			ID:             id,
			Name:           current.Name,
			TopK:           current.TopK,
			Temperature:    current.Temperature,
			InitialPrompts: current.InitialPrompts,
			UpdatedAt:      max(s.millis(), current.UpdatedAt, current.CreatedAt),
			InputUsage:     current.InputUsage,
			InputQuota:     current.InputQuota,
		}
		if params.Name != nil {
			arg.Name = *params.Name
		}
		if params.TopK != nil {
			arg.TopK = nullInt(params.TopK)
		}
		if params.Temperature != nil {
			arg.Temperature = nullFloat(params.Temperature)
		}
		if params.InitialPrompts != nil {
			if arg.InitialPrompts, err = marshalSeedTurns(params.InitialPrompts); err != nil {
				return err
			}
		}
		if params.InputUsage != nil {
			arg.InputUsage = *params.InputUsage
		}
		if params.InputQuota != nil {
			arg.InputQuota = *params.InputQuota
		}

		updated, err := q.UpdateSession(ctx, arg)
		if err != nil {
			return err
		}
		session, err = fromDBSession(updated)
		return err
	})
	if err != nil || !found {
		return proto.Session{}, false, err
	}
	s.sessions.Publish(pubsub.UpdatedEvent, session)
	return session, true, nil
}

// DeleteSession removes the session and all of its messages atomically.
// Deleting an unknown session is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	var (
		session proto.Session
		found   bool
		removed []db.Message
	)
	err := s.withTx(ctx, "delete session", func(q *db.Queries) error {
		current, err := q.GetSession(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			found = true
			if session, err = fromDBSession(current); err != nil {
				return err
			}
		}
		if removed, err = q.ListMessagesBySession(ctx, id); err != nil {
			return err
		}
		if _, err := q.DeleteSessionMessages(ctx, id); err != nil {
			return err
		}
		_, err = q.DeleteSession(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	for _, m := range removed {
		s.messages.Publish(pubsub.DeletedEvent, fromDBMessage(m))
	}
	if found {
		s.sessions.Publish(pubsub.DeletedEvent, session)
	}
	return nil
}

func fromDBSession(item db.Session) (proto.Session, error) {
	session := proto.Session{
		ID:         item.ID,
		Name:       item.Name,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
		InputUsage: item.InputUsage,
		InputQuota: item.InputQuota,
	}
	if item.TopK.Valid {
		topK := int(item.TopK.Int64)
		session.TopK = &topK
	}
	if item.Temperature.Valid {
		temperature := item.Temperature.Float64
		session.Temperature = &temperature
	}
	if item.InitialPrompts.Valid && item.InitialPrompts.String != "" {
		if err := json.Unmarshal([]byte(item.InitialPrompts.String), &session.InitialPrompts); err != nil {
			return proto.Session{}, err
		}
	}
	return session, nil
}

func fromDBSessions(items []db.Session) ([]proto.Session, error) {
	sessions := make([]proto.Session, len(items))
	for i, item := range items {
		var err error
		if sessions[i], err = fromDBSession(item); err != nil {
			return nil, storageErr("decode session", err)
		}
	}
	return sessions, nil
}

func marshalSeedTurns(turns []proto.SeedTurn) (sql.NullString, error) {
	if len(turns) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
