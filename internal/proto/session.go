package proto

// SeedRole is the role of a turn used to prime a new model session.
type SeedRole string

const (
	SeedSystem    SeedRole = "system"
	SeedUser      SeedRole = "user"
	SeedAssistant SeedRole = "assistant"
)

func (r SeedRole) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *SeedRole) UnmarshalText(data []byte) error {
	*r = SeedRole(data)
	return nil
}

// Valid reports whether r is one of the known seed roles.
func (r SeedRole) Valid() bool {
	switch r {
	case SeedSystem, SeedUser, SeedAssistant:
		return true
	}
	return false
}

// SeedTurn is one initial prompt handed to the model when a session is
// created.
type SeedTurn struct {
	Role    SeedRole `json:"role"`
	Content string   `json:"content"`
}

// Session is a named configuration for a model conversation.
type Session struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	TopK           *int       `json:"topK,omitempty"`
	Temperature    *float64   `json:"temperature,omitempty"`
	InitialPrompts []SeedTurn `json:"initialPrompts,omitempty"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
	InputUsage     int64      `json:"inputUsage"`
	InputQuota     int64      `json:"inputQuota"`
}

// CreateSessionParams holds the caller supplied fields of a new session.
type CreateSessionParams struct {
	Name           string
	TopK           *int
	Temperature    *float64
	InitialPrompts []SeedTurn
	InputUsage     int64
	InputQuota     int64
}

// UpdateSessionParams is a partial update; nil fields are left untouched.
type UpdateSessionParams struct {
	Name           *string
	TopK           *int
	Temperature    *float64
	InitialPrompts []SeedTurn
	InputUsage     *int64
	InputQuota     *int64
}
