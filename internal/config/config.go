package config

import (
	"cmp"
	"time"
)

const (
	appName              = "promptdeck"
	defaultDataDirectory = ".promptdeck"

	defaultBaseURL       = "http://localhost:11434/v1"
	defaultModelID       = "gemma3:1b"
	defaultContextWindow = 6144
)

type Model struct {
	// BaseURL of the OpenAI-compatible endpoint serving the local model.
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	ID      string `json:"id,omitempty"`

	// ContextWindow is the input quota reported for every session.
	ContextWindow      int64   `json:"context_window,omitempty"`
	DefaultTopK        int     `json:"default_top_k,omitempty"`
	MaxTopK            int     `json:"max_top_k,omitempty"`
	DefaultTemperature float64 `json:"default_temperature,omitempty"`
	MaxTemperature     float64 `json:"max_temperature,omitempty"`
}

// Checkpoint bounds how much streamed text may be lost on a crash. Unset
// fields take the defaults; an explicit zero disables that trigger.
type Checkpoint struct {
	EveryChunks *int `json:"every_chunks,omitempty"`
	EveryMS     *int `json:"every_ms,omitempty"`
}

func (c Checkpoint) Chunks() int {
	if c.EveryChunks == nil {
		return 0
	}
	return *c.EveryChunks
}

func (c Checkpoint) Interval() time.Duration {
	if c.EveryMS == nil {
		return 0
	}
	return time.Duration(*c.EveryMS) * time.Millisecond
}

type Options struct {
	DataDirectory string `json:"data_directory,omitempty"`
	Debug         bool   `json:"debug,omitempty"`
}

type Config struct {
	Model      Model      `json:"model"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Options    Options    `json:"options"`

	workingDir string
}

func (c *Config) WorkingDir() string {
	return c.workingDir
}

// IsConfigured reports whether an endpoint and model are known.
func (c *Config) IsConfigured() bool {
	return c.Model.BaseURL != "" && c.Model.ID != ""
}

func (c *Config) setDefaults(workingDir, dataDir string) {
	c.workingDir = workingDir
	c.Options.DataDirectory = cmp.Or(dataDir, c.Options.DataDirectory, defaultDataDirectory)

	c.Model.BaseURL = cmp.Or(c.Model.BaseURL, defaultBaseURL)
	c.Model.ID = cmp.Or(c.Model.ID, defaultModelID)
	c.Model.ContextWindow = cmp.Or(c.Model.ContextWindow, defaultContextWindow)
	c.Model.DefaultTopK = cmp.Or(c.Model.DefaultTopK, 3)
	c.Model.MaxTopK = cmp.Or(c.Model.MaxTopK, 8)
	c.Model.DefaultTemperature = cmp.Or(c.Model.DefaultTemperature, 1)
	c.Model.MaxTemperature = cmp.Or(c.Model.MaxTemperature, 2)

	if c.Checkpoint.EveryChunks == nil {
		c.Checkpoint.EveryChunks = ptr(8)
	}
	if c.Checkpoint.EveryMS == nil {
		c.Checkpoint.EveryMS = ptr(750)
	}
}

func ptr[T any](v T) *T { return &v }
