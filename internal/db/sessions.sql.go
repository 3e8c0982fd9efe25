package db

import (
	"context"
	"database/sql"
)

const countSessions = `-- name: CountSessions :one
SELECT COUNT(*) FROM sessions
`

func (q *Queries) CountSessions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSessions)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (
    id,
    name,
    top_k,
    temperature,
    initial_prompts,
    created_at,
    updated_at,
    input_usage,
    input_quota
) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?
)
RETURNING id, name, top_k, temperature, initial_prompts, created_at, updated_at, input_usage, input_quota
`

type CreateSessionParams struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TopK           sql.NullInt64   `json:"top_k"`
	Temperature    sql.NullFloat64 `json:"temperature"`
	InitialPrompts sql.NullString  `json:"initial_prompts"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	InputUsage     int64           `json:"input_usage"`
	InputQuota     int64           `json:"input_quota"`
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.ID,
		arg.Name,
		arg.TopK,
		arg.Temperature,
		arg.InitialPrompts,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.InputUsage,
		arg.InputQuota,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.TopK,
		&i.Temperature,
		&i.InitialPrompts,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.InputUsage,
		&i.InputQuota,
	)
	return i, err
}

const deleteAllSessions = `-- name: DeleteAllSessions :exec
DELETE FROM sessions
`

func (q *Queries) DeleteAllSessions(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllSessions)
	return err
}

const deleteSession = `-- name: DeleteSession :execrows
DELETE FROM sessions
WHERE id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSession, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSession = `-- name: GetSession :one
SELECT id, name, top_k, temperature, initial_prompts, created_at, updated_at, input_usage, input_quota
FROM sessions
WHERE id = ? LIMIT 1
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.TopK,
		&i.Temperature,
		&i.InitialPrompts,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.InputUsage,
		&i.InputQuota,
	)
	return i, err
}

const listAllSessions = `-- name: ListAllSessions :many
SELECT id, name, top_k, temperature, initial_prompts, created_at, updated_at, input_usage, input_quota
FROM sessions
ORDER BY created_at ASC, rowid ASC
`

func (q *Queries) ListAllSessions(ctx context.Context) ([]Session, error) {
	return q.listSessions(ctx, listAllSessions)
}

const listSessions = `-- name: ListSessions :many
SELECT id, name, top_k, temperature, initial_prompts, created_at, updated_at, input_usage, input_quota
FROM sessions
ORDER BY updated_at DESC, rowid DESC
`

func (q *Queries) ListSessions(ctx context.Context) ([]Session, error) {
	return q.listSessions(ctx, listSessions)
}

func (q *Queries) listSessions(ctx context.Context, query string) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Session{}
	for rows.Next() {
		var i Session
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.TopK,
			&i.Temperature,
			&i.InitialPrompts,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.InputUsage,
			&i.InputQuota,
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

const updateSession = `-- name: UpdateSession :one
UPDATE sessions
SET
    name = ?,
    top_k = ?,
    temperature = ?,
    initial_prompts = ?,
    updated_at = ?,
    input_usage = ?,
    input_quota = ?
WHERE id = ?
RETURNING id, name, top_k, temperature, initial_prompts, created_at, updated_at, input_usage, input_quota
`

type UpdateSessionParams struct {
	Name           string          `json:"name"`
	TopK           sql.NullInt64   `json:"top_k"`
	Temperature    sql.NullFloat64 `json:"temperature"`
	InitialPrompts sql.NullString  `json:"initial_prompts"`
	UpdatedAt      int64           `json:"updated_at"`
	InputUsage     int64           `json:"input_usage"`
	InputQuota     int64           `json:"input_quota"`
	ID             string          `json:"id"`
}

func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, updateSession,
		arg.Name,
		arg.TopK,
		arg.Temperature,
		arg.InitialPrompts,
		arg.UpdatedAt,
		arg.InputUsage,
		arg.InputQuota,
		arg.ID,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.TopK,
		&i.Temperature,
		&i.InitialPrompts,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.InputUsage,
		&i.InputQuota,
	)
	return i, err
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO sessions (
    id,
    name,
    top_k,
    temperature,
    initial_prompts,
    created_at,
    updated_at,
    input_usage,
    input_quota
) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?
)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    top_k = excluded.top_k,
    temperature = excluded.temperature,
    initial_prompts = excluded.initial_prompts,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at,
    input_usage = excluded.input_usage,
    input_quota = excluded.input_quota
`

type UpsertSessionParams struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TopK           sql.NullInt64   `json:"top_k"`
	Temperature    sql.NullFloat64 `json:"temperature"`
	InitialPrompts sql.NullString  `json:"initial_prompts"`
	CreatedAt      int64           `json:"created_at"`
	UpdatedAt      int64           `json:"updated_at"`
	InputUsage     int64           `json:"input_usage"`
	InputQuota     int64           `json:"input_quota"`
}

func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID,
		arg.Name,
		arg.TopK,
		arg.Temperature,
		arg.InitialPrompts,
		arg.CreatedAt,
		arg.UpdatedAt,
		arg.InputUsage,
		arg.InputQuota,
	)
	return err
}
