package gateway

import (
	"context"

	"github.com/promptdeck/promptdeck/internal/proto"
)

// Availability is the readiness of the on-device model.
type Availability string

const (
	Unavailable  Availability = "unavailable"
	Downloadable Availability = "downloadable"
	Downloading  Availability = "downloading"
	Available    Availability = "available"
)

// Terminal reports whether polling for a better status is pointless.
func (a Availability) Terminal() bool {
	return a == Available || a == Unavailable
}

// Params are the sampling bounds reported by the model.
type Params struct {
	DefaultTopK        int     `json:"defaultTopK"`
	MaxTopK            int     `json:"maxTopK"`
	DefaultTemperature float64 `json:"defaultTemperature"`
	MaxTemperature     float64 `json:"maxTemperature"`
}

// DownloadProgress is a low level download event. Total is zero when the
// size is not known.
type DownloadProgress struct {
	Loaded int64
	Total  int64
}

type CreateOptions struct {
	TopK           *int
	Temperature    *float64
	InitialPrompts []proto.SeedTurn
	// Monitor, when set, receives download events while the model is being
	// fetched.
	Monitor func(DownloadProgress)
}

// Capability is the external model service. It may be missing entirely, in
// which case the gateway is built with a nil capability.
type Capability interface {
	Availability(ctx context.Context) (Availability, error)
	Params(ctx context.Context) (Params, error)
	Create(ctx context.Context, opts CreateOptions) (Handle, error)
}

// Handle is a live model conversation. It must be destroyed when no longer
// needed.
type Handle interface {
	Prompt(ctx context.Context, input string) (string, error)
	PromptStreaming(ctx context.Context, input string) (ChunkStream, error)
	Clone(ctx context.Context) (Handle, error)
	Destroy() error
	InputUsage() int64
	InputQuota() int64
}

// ChunkStream yields the text deltas of a streamed reply.
type ChunkStream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}
