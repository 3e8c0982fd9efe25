package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/qjebbs/go-jsons"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	EnvBaseURL = "PROMPTDECK_BASE_URL"
	EnvModel   = "PROMPTDECK_MODEL"
	EnvAPIKey  = "PROMPTDECK_API_KEY"
	// EnvGlobalConfig overrides the directory of the global config file.
	EnvGlobalConfig = "PROMPTDECK_GLOBAL_CONFIG"
)

// Load reads the global config file, then the project files in workingDir,
// merging later files over earlier ones. A .env file in workingDir is loaded
// into the environment first, and the PROMPTDECK_* variables override the
// merged result.
func Load(workingDir, dataDir string, debug bool) (*Config, error) {
	if err := loadDotEnv(workingDir); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}

	paths := append([]string{GlobalConfig()}, GetConfigPaths(workingDir)...)
	cfg, err := loadFromPaths(paths)
	if err != nil {
		return nil, err
	}

	cfg.setDefaults(workingDir, dataDir)
	if debug {
		cfg.Options.Debug = true
	}
	applyEnv(cfg)
	return cfg, nil
}

func loadFromPaths(paths []string) (*Config, error) {
	var readers []io.Reader
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		readers = append(readers, bytes.NewReader(data))
	}

	cfg := &Config{}
	if len(readers) == 0 {
		return cfg, nil
	}
	merged, err := jsons.Merge(readers)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config files: %w", err)
	}
	if err := json.Unmarshal(merged, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return nil
	}
	// Load never overrides variables that are already set.
	return godotenv.Load(path)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model.ID = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.Model.APIKey = v
	}
}

// GetConfigPaths returns the project config files in increasing precedence.
func GetConfigPaths(workingDir string) []string {
	return []string{
		filepath.Join(workingDir, appName+".json"),
		filepath.Join(workingDir, "."+appName+".json"),
	}
}

// GlobalConfig returns the path of the user wide config file.
func GlobalConfig() string {
	if dir := os.Getenv(EnvGlobalConfig); dir != "" {
		return filepath.Join(dir, appName+".json")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName, appName+".json")
	}
	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(base, appName, appName+".json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName, appName+".json")
}

// LogPath is where the rotating log file lives inside the data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", appName+".log")
}

// SetConfigField writes a single dotted key into the global config file,
// creating the file when needed. The in-memory config is not touched.
func SetConfigField(key string, value any) error {
	path := GlobalConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		data = []byte("{}")
	}

	updated, err := sjson.SetBytesOptions(data, key, value, &sjson.Options{Optimistic: true})
	if err != nil {
		return fmt.Errorf("failed to set config field %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %q: %w", path, err)
	}
	if err := os.WriteFile(path, updated, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigField reads a single dotted key from the global config file. The
// second result is false when the key is not set.
func GetConfigField(key string) (string, bool, error) {
	data, err := os.ReadFile(GlobalConfig())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read config file: %w", err)
	}
	res := gjson.GetBytes(data, key)
	if !res.Exists() {
		return "", false, nil
	}
	return res.String(), true, nil
}
