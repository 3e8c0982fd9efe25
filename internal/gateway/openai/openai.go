// Package openai implements the model capability on top of a local
// OpenAI-compatible server such as Ollama or llama.cpp.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/proto"
)

var errDestroyed = errors.New("session has been destroyed")

type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	Params        gateway.Params
	ContextWindow int64
	HTTPClient    *http.Client
}

type capability struct {
	opts   Options
	client openai.Client
}

// New returns a capability talking to the endpoint described by opts.
func New(opts Options) gateway.Capability {
	return &capability{
		opts:   opts,
		client: createClient(opts),
	}
}

func createClient(opts Options) openai.Client {
	clientOptions := []option.RequestOption{}
	if opts.APIKey != "" {
		clientOptions = append(clientOptions, option.WithAPIKey(opts.APIKey))
	} else {
		// Local servers ignore the key but the client insists on one.
		clientOptions = append(clientOptions, option.WithAPIKey("local"))
	}
	if opts.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTPClient != nil {
		clientOptions = append(clientOptions, option.WithHTTPClient(opts.HTTPClient))
	}
	clientOptions = append(clientOptions, option.WithMaxRetries(0))
	return openai.NewClient(clientOptions...)
}

func (c *capability) Availability(ctx context.Context) (gateway.Availability, error) {
	if c.opts.Model == "" {
		return gateway.Unavailable, fmt.Errorf("no model configured")
	}
	_, err := c.client.Models.Get(ctx, c.opts.Model)
	if err == nil {
		return gateway.Available, nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// The server is up but does not have the model yet.
		return gateway.Downloadable, nil
	}
	return gateway.Unavailable, err
}

func (c *capability) Params(ctx context.Context) (gateway.Params, error) {
	return c.opts.Params, nil
}

func (c *capability) Create(ctx context.Context, opts gateway.CreateOptions) (gateway.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	history := make([]openai.ChatCompletionMessageParamUnion, 0, len(opts.InitialPrompts))
	for _, turn := range opts.InitialPrompts {
		msg, err := seedMessage(turn)
		if err != nil {
			return nil, err
		}
		history = append(history, msg)
	}
	if opts.Monitor != nil {
		// Models are served already downloaded; report a finished download
		// so progress displays settle.
		opts.Monitor(gateway.DownloadProgress{Loaded: 1, Total: 1})
	}
	return &handle{
		capability:  c,
		topK:        opts.TopK,
		temperature: opts.Temperature,
		history:     history,
	}, nil
}

func seedMessage(turn proto.SeedTurn) (openai.ChatCompletionMessageParamUnion, error) {
	switch turn.Role {
	case proto.SeedSystem:
		return openai.SystemMessage(turn.Content), nil
	case proto.SeedUser:
		return openai.UserMessage(turn.Content), nil
	case proto.SeedAssistant:
		return openai.AssistantMessage(turn.Content), nil
	}
	return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown seed role %q", turn.Role)
}

type handle struct {
	capability  *capability
	topK        *int
	temperature *float64

	mu        sync.Mutex
	history   []openai.ChatCompletionMessageParamUnion
	usage     int64
	destroyed bool
}

func (h *handle) params(input string) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return openai.ChatCompletionNewParams{}, nil, errDestroyed
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(h.history)+1)
	messages = append(messages, h.history...)
	messages = append(messages, openai.UserMessage(input))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(h.capability.opts.Model),
		Messages: messages,
	}
	if h.temperature != nil {
		params.Temperature = openai.Float(*h.temperature)
	}
	var reqOpts []option.RequestOption
	if h.topK != nil {
		reqOpts = append(reqOpts, option.WithJSONSet("top_k", *h.topK))
	}
	return params, reqOpts, nil
}

// record appends a completed exchange to the transcript.
func (h *handle) record(input, reply string, usage openai.CompletionUsage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, openai.UserMessage(input), openai.AssistantMessage(reply))
	if total := usage.PromptTokens + usage.CompletionTokens; total > h.usage {
		h.usage = total
	}
}

func (h *handle) Prompt(ctx context.Context, input string) (string, error) {
	params, reqOpts, err := h.params(input)
	if err != nil {
		return "", err
	}
	resp, err := h.capability.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("received empty response from model - check endpoint configuration")
	}
	reply := resp.Choices[0].Message.Content
	h.record(input, reply, resp.Usage)
	return reply, nil
}

func (h *handle) PromptStreaming(ctx context.Context, input string) (gateway.ChunkStream, error) {
	params, reqOpts, err := h.params(input)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}
	s := h.capability.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	if err := s.Err(); err != nil {
		s.Close()
		return nil, err
	}
	return &chunkStream{handle: h, input: input, src: s}, nil
}

func (h *handle) Clone(ctx context.Context) (gateway.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return nil, errDestroyed
	}
	return &handle{
		capability:  h.capability,
		topK:        h.topK,
		temperature: h.temperature,
		history:     append([]openai.ChatCompletionMessageParamUnion(nil), h.history...),
		usage:       h.usage,
	}, nil
}

func (h *handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		slog.Debug("Model session destroyed twice")
	}
	h.destroyed = true
	h.history = nil
	return nil
}

func (h *handle) InputUsage() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usage
}

func (h *handle) InputQuota() int64 {
	return h.capability.opts.ContextWindow
}

type chunkStream struct {
	handle *handle
	input  string
	src    *ssestream.Stream[openai.ChatCompletionChunk]

	text  string
	reply strings.Builder
	usage openai.CompletionUsage
	done  bool
}

func (s *chunkStream) Next() bool {
	if s.done {
		return false
	}
	for s.src.Next() {
		chunk := s.src.Current()
		if chunk.Usage.PromptTokens > 0 {
			s.usage = chunk.Usage
		}
		var delta string
		for _, choice := range chunk.Choices {
			delta += choice.Delta.Content
		}
		if delta == "" {
			continue
		}
		s.text = delta
		s.reply.WriteString(delta)
		return true
	}
	s.done = true
	s.text = ""
	if s.src.Err() == nil {
		s.handle.record(s.input, s.reply.String(), s.usage)
	}
	return false
}

func (s *chunkStream) Text() string {
	return s.text
}

func (s *chunkStream) Err() error {
	return s.src.Err()
}

func (s *chunkStream) Close() error {
	s.done = true
	return s.src.Close()
}
