package proto

type MessageRole string

const (
	Assistant MessageRole = "assistant"
	User      MessageRole = "user"
)

func (r MessageRole) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *MessageRole) UnmarshalText(data []byte) error {
	*r = MessageRole(data)
	return nil
}

// Message is one turn of a session transcript.
type Message struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Role        MessageRole `json:"role"`
	Content     string      `json:"content"`
	Timestamp   int64       `json:"timestamp"`
	IsStreaming bool        `json:"isStreaming,omitempty"`
	IsError     bool        `json:"isError,omitempty"`
}

type CreateMessageParams struct {
	SessionID   string
	Role        MessageRole
	Content     string
	IsStreaming bool
	IsError     bool
}

// UpdateMessageParams is a partial update; nil fields are left untouched.
type UpdateMessageParams struct {
	Content     *string
	IsStreaming *bool
	IsError     *bool
}
