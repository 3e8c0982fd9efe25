// Package gateway normalizes access to the on-device model capability.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultQuotaThreshold = 0.9
	DefaultMaxRetries     = 3
	DefaultWaitTimeout    = 30 * time.Second
	defaultPollInterval   = time.Second
	retryBase             = time.Second
)

type Gateway struct {
	capability   Capability
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	pollInterval time.Duration
}

type Option func(*Gateway)

// WithClock replaces the time source and the sleep function used between
// retries and availability polls.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) {
		g.now = now
		g.sleep = sleep
	}
}

// WithPollInterval changes how often WaitForAvailability checks the model.
func WithPollInterval(d time.Duration) Option {
	return func(g *Gateway) {
		g.pollInterval = d
	}
}

// New wraps capability, which may be nil when the model service is absent.
func New(capability Capability, opts ...Option) *Gateway {
	g := &Gateway{
		capability:   capability,
		now:          time.Now,
		sleep:        sleepContext,
		pollInterval: defaultPollInterval,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) IsCapabilityPresent() bool {
	return g.capability != nil
}

// CheckAvailability never fails: an absent capability or a failed check both
// report Unavailable.
func (g *Gateway) CheckAvailability(ctx context.Context) Availability {
	if g.capability == nil {
		return Unavailable
	}
	status, err := g.capability.Availability(ctx)
	if err != nil {
		slog.Debug("Availability check failed", "error", err)
		return Unavailable
	}
	switch status {
	case Unavailable, Downloadable, Downloading, Available:
		return status
	}
	slog.Warn("Unknown availability status", "status", status)
	return Unavailable
}

func (g *Gateway) ModelParameters(ctx context.Context) (Params, error) {
	if g.capability == nil {
		return Params{}, newError(CodeModelUnavailable, "model capability is not present", nil)
	}
	params, err := g.capability.Params(ctx)
	if err != nil {
		return Params{}, newError(CodeGatewayError, "failed to get model parameters", err)
	}
	return params, nil
}

func (g *Gateway) CreateSession(ctx context.Context, opts CreateOptions) (Handle, error) {
	if g.capability == nil {
		return nil, newError(CodeModelUnavailable, "model capability is not present", nil)
	}
	if status := g.CheckAvailability(ctx); status == Unavailable {
		return nil, newError(CodeModelUnavailable, "model is unavailable", nil)
	}
	h, err := g.capability.Create(ctx, opts)
	if err != nil {
		return nil, newError(CodeSessionCreationFailed, "failed to create session", err)
	}
	return h, nil
}

// CreateSessionWithProgress creates a session and reports download progress
// as (loaded, total). total is nil when the size is not known.
func (g *Gateway) CreateSessionWithProgress(ctx context.Context, opts CreateOptions, onProgress func(loaded int64, total *int64)) (Handle, error) {
	if onProgress != nil {
		opts.Monitor = func(p DownloadProgress) {
			if p.Total > 0 {
				total := p.Total
				onProgress(p.Loaded, &total)
				return
			}
			onProgress(p.Loaded, nil)
		}
	}
	return g.CreateSession(ctx, opts)
}

func (g *Gateway) ExecutePrompt(ctx context.Context, h Handle, input string) (string, error) {
	if h == nil {
		return "", newError(CodePromptExecutionFailed, "no active session", nil)
	}
	out, err := h.Prompt(ctx, input)
	if err != nil {
		return "", newError(CodePromptExecutionFailed, "prompt failed", err)
	}
	return out, nil
}

func (g *Gateway) ExecuteStreamingPrompt(ctx context.Context, h Handle, input string) (*Stream, error) {
	if h == nil {
		return nil, newError(CodePromptExecutionFailed, "no active session", nil)
	}
	cs, err := h.PromptStreaming(ctx, input)
	if err != nil {
		return nil, newError(CodePromptExecutionFailed, "failed to start streaming prompt", err)
	}
	return &Stream{ctx: ctx, src: cs}, nil
}

func (g *Gateway) CloneSession(ctx context.Context, h Handle) (Handle, error) {
	if h == nil {
		return nil, newError(CodeSessionCreationFailed, "no session to clone", nil)
	}
	clone, err := h.Clone(ctx)
	if err != nil {
		return nil, newError(CodeSessionCreationFailed, "failed to clone session", err)
	}
	return clone, nil
}

// DisposeSession releases h. Failures are logged and otherwise ignored.
func (g *Gateway) DisposeSession(h Handle) {
	if h == nil {
		return
	}
	if err := h.Destroy(); err != nil {
		slog.Warn("Failed to dispose model session", "error", err)
	}
}

type Usage struct {
	Usage int64 `json:"usage"`
	Quota int64 `json:"quota"`
}

func (g *Gateway) SessionUsage(h Handle) Usage {
	if h == nil {
		return Usage{}
	}
	return Usage{Usage: h.InputUsage(), Quota: h.InputQuota()}
}

// IsNearQuota reports whether h has used at least threshold of its quota. A
// non-positive threshold means DefaultQuotaThreshold.
func (g *Gateway) IsNearQuota(h Handle, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultQuotaThreshold
	}
	u := g.SessionUsage(h)
	if u.Quota <= 0 {
		return false
	}
	return float64(u.Usage) >= float64(u.Quota)*threshold
}

type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateParameters checks candidate sampling values against the bounds the
// model reports. Nil values are not checked.
func (g *Gateway) ValidateParameters(ctx context.Context, topK *int, temperature *float64) Validation {
	params, err := g.ModelParameters(ctx)
	if err != nil {
		return Validation{Errors: []string{fmt.Sprintf("could not load model parameters: %v", err)}}
	}

	var problems []string
	if topK != nil {
		switch {
		case *topK < 1:
			problems = append(problems, "topK must be at least 1")
		case params.MaxTopK > 0 && *topK > params.MaxTopK:
			problems = append(problems, fmt.Sprintf("topK must be at most %d", params.MaxTopK))
		}
	}
	if temperature != nil {
		switch {
		case *temperature < 0:
			problems = append(problems, "temperature must not be negative")
		case *temperature > params.MaxTemperature:
			problems = append(problems, fmt.Sprintf("temperature must be at most %g", params.MaxTemperature))
		}
	}
	return Validation{Valid: len(problems) == 0, Errors: problems}
}

// PromptWithRetry runs a single-shot prompt, retrying failures up to
// maxRetries more times with exponential backoff starting at one second.
// Cancellation is returned immediately and never retried.
func (g *Gateway) PromptWithRetry(ctx context.Context, h Handle, input string, maxRetries int) (string, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	backoff := retry.WithMaxRetries(uint64(maxRetries), retry.NewExponential(retryBase))

	var (
		lastErr  error
		attempts int
	)
	for {
		attempts++
		out, err := g.ExecutePrompt(ctx, h, input)
		if err == nil {
			return out, nil
		}
		if IsAbort(err) || ctx.Err() != nil {
			return "", err
		}
		lastErr = err

		delay, stop := backoff.Next()
		if stop {
			break
		}
		slog.Warn("Retrying prompt", "attempt", attempts, "max_retries", maxRetries, "delay", delay, "error", err)
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	cause := lastErr
	if inner := errors.Unwrap(lastErr); inner != nil {
		cause = inner
	}
	return "", newError(CodePromptExecutionFailed, fmt.Sprintf("prompt failed after %d attempts: %v", attempts, cause), lastErr)
}

// WaitForAvailability polls the model until it is available or definitely
// unavailable. Downloadable and downloading keep polling until timeout.
func (g *Gateway) WaitForAvailability(ctx context.Context, timeout time.Duration) (Availability, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	start := g.now()
	for {
		status := g.CheckAvailability(ctx)
		if status.Terminal() {
			return status, nil
		}
		if g.now().Sub(start) >= timeout {
			return status, newError(CodeAvailabilityTimeout, fmt.Sprintf("model not ready after %s (last status %s)", timeout, status), nil)
		}
		if err := g.sleep(ctx, g.pollInterval); err != nil {
			return status, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
