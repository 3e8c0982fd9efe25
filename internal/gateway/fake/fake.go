// Package fake provides a scripted in-memory model capability.
package fake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/promptdeck/promptdeck/internal/gateway"
)

var ErrDestroyed = errors.New("session has been destroyed")

// Script describes how the capability answers one prompt.
type Script struct {
	// Reply is returned by single-shot prompts.
	Reply string
	// Chunks are yielded, in order, by streaming prompts.
	Chunks []string
	// Err is returned instead of Reply, or after the last chunk.
	Err error
	// Hold makes the prompt wait for cancellation after producing its
	// chunks instead of finishing.
	Hold bool
	// IgnoreCancel keeps yielding chunks after the prompt context is done.
	IgnoreCancel bool
	// OnChunk runs after chunk i has been handed out.
	OnChunk func(i int)
}

type Capability struct {
	mu sync.Mutex

	Status          gateway.Availability
	AvailabilityErr error
	Parameters      gateway.Params
	ParamsErr       error
	CreateErr       error
	CloneErr        error
	DestroyErr      error
	Quota           int64
	Progress        []gateway.DownloadProgress
	// Respond scripts the answer to each prompt. The default echoes the
	// input.
	Respond func(input string) Script

	availabilityCalls atomic.Int64
	promptCalls       atomic.Int64
	handles           []*Handle
	streams           []*Stream
}

// New returns an available capability with typical on-device bounds.
func New() *Capability {
	return &Capability{
		Status: gateway.Available,
		Parameters: gateway.Params{
			DefaultTopK:        3,
			MaxTopK:            8,
			DefaultTemperature: 1,
			MaxTemperature:     2,
		},
		Quota: 6144,
	}
}

func (c *Capability) Availability(ctx context.Context) (gateway.Availability, error) {
	c.availabilityCalls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Status, c.AvailabilityErr
}

// SetStatus changes the reported availability.
func (c *Capability) SetStatus(status gateway.Availability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = status
}

func (c *Capability) AvailabilityCalls() int {
	return int(c.availabilityCalls.Load())
}

func (c *Capability) PromptCalls() int {
	return int(c.promptCalls.Load())
}

func (c *Capability) Params(ctx context.Context) (gateway.Params, error) {
	return c.Parameters, c.ParamsErr
}

func (c *Capability) Create(ctx context.Context, opts gateway.CreateOptions) (gateway.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	if opts.Monitor != nil {
		for _, p := range c.Progress {
			opts.Monitor(p)
		}
	}
	var usage int64
	for _, turn := range opts.InitialPrompts {
		usage += int64(len(turn.Content))
	}
	return c.newHandle(opts, usage), nil
}

func (c *Capability) newHandle(opts gateway.CreateOptions, usage int64) *Handle {
	h := &Handle{capability: c, Options: opts, quota: c.Quota}
	h.usage.Store(usage)
	c.mu.Lock()
	c.handles = append(c.handles, h)
	c.mu.Unlock()
	return h
}

// Handles returns every handle created so far, clones included.
func (c *Capability) Handles() []*Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Handle(nil), c.handles...)
}

// Streams returns every stream handed out so far.
func (c *Capability) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Stream(nil), c.streams...)
}

func (c *Capability) script(input string) Script {
	c.promptCalls.Add(1)
	if c.Respond == nil {
		return Script{Reply: input, Chunks: []string{input}}
	}
	return c.Respond(input)
}

type Handle struct {
	capability *Capability
	Options    gateway.CreateOptions

	usage     atomic.Int64
	quota     int64
	destroyed atomic.Int64
}

func (h *Handle) Prompt(ctx context.Context, input string) (string, error) {
	if h.destroyed.Load() > 0 {
		return "", ErrDestroyed
	}
	s := h.capability.script(input)
	if s.Hold {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	h.usage.Add(int64(len(input)))
	return s.Reply, nil
}

func (h *Handle) PromptStreaming(ctx context.Context, input string) (gateway.ChunkStream, error) {
	if h.destroyed.Load() > 0 {
		return nil, ErrDestroyed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := &Stream{ctx: ctx, handle: h, input: input, script: h.capability.script(input)}
	h.capability.mu.Lock()
	h.capability.streams = append(h.capability.streams, st)
	h.capability.mu.Unlock()
	return st, nil
}

func (h *Handle) Clone(ctx context.Context) (gateway.Handle, error) {
	if h.capability.CloneErr != nil {
		return nil, h.capability.CloneErr
	}
	if h.destroyed.Load() > 0 {
		return nil, ErrDestroyed
	}
	return h.capability.newHandle(h.Options, h.usage.Load()), nil
}

func (h *Handle) Destroy() error {
	h.destroyed.Add(1)
	return h.capability.DestroyErr
}

// DestroyCalls reports how many times Destroy was called.
func (h *Handle) DestroyCalls() int {
	return int(h.destroyed.Load())
}

func (h *Handle) InputUsage() int64 {
	return h.usage.Load()
}

func (h *Handle) InputQuota() int64 {
	return h.quota
}

// SetUsage overrides the usage counter.
func (h *Handle) SetUsage(n int64) {
	h.usage.Store(n)
}

type Stream struct {
	ctx    context.Context
	handle *Handle
	input  string
	script Script

	next   int
	text   string
	err    error
	closed atomic.Bool
}

func (s *Stream) Next() bool {
	if s.closed.Load() || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil && !s.script.IgnoreCancel {
		s.err = err
		return false
	}
	if s.next < len(s.script.Chunks) {
		s.text = s.script.Chunks[s.next]
		s.next++
		if s.script.OnChunk != nil {
			s.script.OnChunk(s.next - 1)
		}
		return true
	}
	switch {
	case s.script.Hold:
		<-s.ctx.Done()
		s.err = s.ctx.Err()
	case s.script.Err != nil:
		s.err = s.script.Err
	default:
		if s.next == len(s.script.Chunks) {
			s.handle.usage.Add(int64(len(s.input)))
			s.next++
		}
	}
	return false
}

func (s *Stream) Text() string {
	return s.text
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether the consumer released the stream.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

var (
	_ gateway.Capability  = (*Capability)(nil)
	_ gateway.Handle      = (*Handle)(nil)
	_ gateway.ChunkStream = (*Stream)(nil)
)
