package db

import (
	"database/sql"
)

type Message struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Role        string `json:"role"`
	Content     string `json:"content"`
	Timestamp   int64  `json:"timestamp"`
	IsStreaming bool   `json:"is_streaming"`
	IsError     bool   `json:"is_error"`
}

type Session struct {
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
