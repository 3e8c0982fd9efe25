package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/proto"
	"github.com/promptdeck/promptdeck/internal/pubsub"
)

// CreateMessage persists a new message. The session id is trusted; callers
// are expected to have checked that the session exists.
func (s *Store) CreateMessage(ctx context.Context, params proto.CreateMessageParams) (proto.Message, error) {
	dbMessage, err := s.q.CreateMessage(ctx, db.CreateMessageParams{
		ID:          uuid.New().String(),
		SessionID:   params.SessionID,
		Role:        string(params.Role),
		Content:     params.Content,
		Timestamp:   s.millis(),
		IsStreaming: params.IsStreaming,
		IsError:     params.IsError,
	})
	if err != nil {
		return proto.Message{}, storageErr("create message", err)
	}
	message := fromDBMessage(dbMessage)
	s.messages.Publish(pubsub.CreatedEvent, message)
	return message, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (message proto.Message, found bool, err error) {
	dbMessage, err := s.q.GetMessage(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return proto.Message{}, false, nil
	}
	if err != nil {
		return proto.Message{}, false, storageErr("get message", err)
	}
	return fromDBMessage(dbMessage), true, nil
}

// GetMessagesForSession returns the transcript of a session, oldest first.
func (s *Store) GetMessagesForSession(ctx context.Context, sessionID string) ([]proto.Message, error) {
	dbMessages, err := s.q.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	return fromDBMessages(dbMessages), nil
}

// UpdateMessage merges the non-nil fields of params into the message. found
// is false when no such message exists. A finalized message cannot be made
// streaming again.
func (s *Store) UpdateMessage(ctx context.Context, id string, params proto.UpdateMessageParams) (message proto.Message, found bool, err error) {
	err = s.withTx(ctx, "update message", func(q *db.Queries) error {
		current, err := q.GetMessage(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		arg := db.UpdateMessageParams{
			ID:          id,
			Content:     current.Content,
			IsStreaming: current.IsStreaming,
			IsError:     current.IsError,
		}
		if params.Content != nil {
			arg.Content = *params.Content
		}
		if params.IsStreaming != nil {
			if *params.IsStreaming && !current.IsStreaming {
				return ErrFinalized
			}
			arg.IsStreaming = *params.IsStreaming
		}
		if params.IsError != nil {
			arg.IsError = *params.IsError
		}

		updated, err := q.UpdateMessage(ctx, arg)
		if err != nil {
			return err
		}
		message = fromDBMessage(updated)
		return nil
	})
	if err != nil || !found {
		return proto.Message{}, false, err
	}
	s.messages.Publish(pubsub.UpdatedEvent, message)
	return message, true, nil
}

// DeleteMessagesForSession removes every message of a session and reports
// how many were removed.
func (s *Store) DeleteMessagesForSession(ctx context.Context, sessionID string) (int, error) {
	var removed []db.Message
	err := s.withTx(ctx, "delete messages", func(q *db.Queries) error {
		var err error
		if removed, err = q.ListMessagesBySession(ctx, sessionID); err != nil {
			return err
		}
		_, err = q.DeleteSessionMessages(ctx, sessionID)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, m := range removed {
		s.messages.Publish(pubsub.DeletedEvent, fromDBMessage(m))
	}
	return len(removed), nil
}

func fromDBMessage(item db.Message) proto.Message {
	return proto.Message{
		ID:          item.ID,
		SessionID:   item.SessionID,
		Role:        proto.MessageRole(item.Role),
		Content:     item.Content,
		Timestamp:   item.Timestamp,
		IsStreaming: item.IsStreaming,
		IsError:     item.IsError,
	}
}

func fromDBMessages(items []db.Message) []proto.Message {
	messages := make([]proto.Message, len(items))
	for i, item := range items {
		messages[i] = fromDBMessage(item)
	}
	return messages
}
