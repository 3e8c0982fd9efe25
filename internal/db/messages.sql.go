package db

import (
	"context"
)

const countMessages = `-- name: CountMessages :one
SELECT COUNT(*) FROM messages
`

func (q *Queries) CountMessages(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countMessages)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createMessage = `-- name: CreateMessage :one
INSERT INTO messages (
    id,
    session_id,
    role,
    content,
    timestamp,
    is_streaming,
    is_error
) VALUES (
    ?, ?, ?, ?, ?, ?, ?
)
RETURNING id, session_id, role, content, timestamp, is_streaming, is_error
`

type CreateMessageParams struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	IsStreaming bool   `json:"is_streaming"`
	IsError     bool   `json:"is_error"`
}

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, createMessage,
		arg.ID,
		arg.SessionID,
		arg.Role,
		arg.Content,
		arg.Timestamp,
		arg.IsStreaming,
		arg.IsError,
	)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Role,
		&i.Content,
		&i.Timestamp,
		&i.IsStreaming,
		&i.IsError,
	)
	return i, err
}

const deleteAllMessages = `-- name: DeleteAllMessages :exec
DELETE FROM messages
`

func (q *Queries) DeleteAllMessages(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllMessages)
	return err
}

const deleteSessionMessages = `-- name: DeleteSessionMessages :execrows
DELETE FROM messages
WHERE session_id = ?
`

func (q *Queries) DeleteSessionMessages(ctx context.Context, sessionID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSessionMessages, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getMessage = `-- name: GetMessage :one
SELECT id, session_id, role, content, timestamp, is_streaming, is_error
FROM messages
WHERE id = ? LIMIT 1
`

func (q *Queries) GetMessage(ctx context.Context, id string) (Message, error) {
	row := q.db.QueryRowContext(ctx, getMessage, id)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Role,
		&i.Content,
		&i.Timestamp,
		&i.IsStreaming,
		&i.IsError,
	)
	return i, err
}

const listAllMessages = `-- name: ListAllMessages :many
SELECT id, session_id, role, content, timestamp, is_streaming, is_error
FROM messages
ORDER BY timestamp ASC, rowid ASC
`

func (q *Queries) ListAllMessages(ctx context.Context) ([]Message, error) {
	return q.listMessages(ctx, listAllMessages)
}

const listMessagesBySession = `-- name: ListMessagesBySession :many
SELECT id, session_id, role, content, timestamp, is_streaming, is_error
FROM messages
WHERE session_id = ?
ORDER BY timestamp ASC, rowid ASC
`

func (q *Queries) ListMessagesBySession(ctx context.Context, sessionID string) ([]Message, error) {
	return q.listMessages(ctx, listMessagesBySession, sessionID)
}

func (q *Queries) listMessages(ctx context.Context, query string, args ...interface{}) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Message{}
	for rows.Next() {
		var i Message
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Role,
			&i.Content,
			&i.Timestamp,
			&i.IsStreaming,
			&i.IsError,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateMessage = `-- name: UpdateMessage :one
UPDATE messages
SET
    content = ?,
    is_streaming = ?,
    is_error = ?
WHERE id = ?
RETURNING id, session_id, role, content, timestamp, is_streaming, is_error
`

type UpdateMessageParams struct {
	Content     string `json:"content"`
	IsStreaming bool   `json:"is_streaming"`
	IsError     bool   `json:"is_error"`
	ID          string `json:"id"`
}

func (q *Queries) UpdateMessage(ctx context.Context, arg UpdateMessageParams) (Message, error) {
	row := q.db.QueryRowContext(ctx, updateMessage,
		arg.Content,
		arg.IsStreaming,
		arg.IsError,
		arg.ID,
	)
	var i Message
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Role,
		&i.Content,
		&i.Timestamp,
		&i.IsStreaming,
		&i.IsError,
	)
	return i, err
}

const upsertMessage = `-- name: UpsertMessage :exec
INSERT INTO messages (
    id,
    session_id,
    role,
    content,
    timestamp,
    is_streaming,
    is_error
) VALUES (
    ?, ?, ?, ?, ?, ?, ?
)
ON CONFLICT (id) DO UPDATE SET
    session_id = excluded.session_id,
    role = excluded.role,
    content = excluded.content,
    timestamp = excluded.timestamp,
    is_streaming = excluded.is_streaming,
    is_error = excluded.is_error
`

type UpsertMessageParams struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	IsStreaming bool   `json:"is_streaming"`
	IsError     bool   `json:"is_error"`
}

func (q *Queries) UpsertMessage(ctx context.Context, arg UpsertMessageParams) error {
	_, err := q.db.ExecContext(ctx, upsertMessage,
		arg.ID,
		arg.SessionID,
		arg.Role,
		arg.Content,
		arg.Timestamp,
		arg.IsStreaming,
		arg.IsError,
	)
	return err
}
