package db

import (
	"context"
)

type Querier interface {
	CountMessages(ctx context.Context) (int64, error)
	CountSessions(ctx context.Context) (int64, error)
	CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error)
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	DeleteAllMessages(ctx context.Context) error
	DeleteAllSessions(ctx context.Context) error
	DeleteSession(ctx context.Context, id string) (int64, error)
	DeleteSessionMessages(ctx context.Context, sessionID string) (int64, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListAllMessages(ctx context.Context) ([]Message, error)
	ListAllSessions(ctx context.Context) ([]Session, error)
	ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateMessage(ctx context.Context, arg UpdateMessageParams) (Message, error)
	UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error)
	UpsertMessage(ctx context.Context, arg UpsertMessageParams) error
	UpsertSession(ctx context.Context, arg UpsertSessionParams) error
}

var _ Querier = (*Queries)(nil)
