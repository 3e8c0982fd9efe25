package conversation

import "time"

const (
	DefaultCheckpointChunks   = 8
	DefaultCheckpointInterval = 750 * time.Millisecond
)

// CheckpointPolicy decides how often a streaming reply is written to the
// store before it finishes. A checkpoint happens after EveryChunks chunks or
// once Every has elapsed since the last one, whichever comes first. Zero
// disables that trigger.
type CheckpointPolicy struct {
	EveryChunks int           `json:"every_chunks,omitempty"`
	Every       time.Duration `json:"every,omitempty"`
}

func DefaultCheckpointPolicy() CheckpointPolicy {
	return CheckpointPolicy{
		EveryChunks: DefaultCheckpointChunks,
		Every:       DefaultCheckpointInterval,
	}
}

type checkpointer struct {
	policy CheckpointPolicy
	now    func() time.Time
	chunks int
	last   time.Time
}

func newCheckpointer(policy CheckpointPolicy, now func() time.Time) *checkpointer {
	return &checkpointer{policy: policy, now: now, last: now()}
}

// observe records one chunk and reports whether a checkpoint is due.
func (c *checkpointer) observe() bool {
	c.chunks++
	due := c.policy.EveryChunks > 0 && c.chunks >= c.policy.EveryChunks
	if !due && c.policy.Every > 0 {
		due = c.now().Sub(c.last) >= c.policy.Every
	}
	if due {
		c.chunks = 0
		c.last = c.now()
	}
	return due
}
