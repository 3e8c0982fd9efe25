package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log/v2"
	"github.com/charmbracelet/x/term"
	"github.com/promptdeck/promptdeck/internal/app"
	"github.com/promptdeck/promptdeck/internal/config"
	"github.com/promptdeck/promptdeck/internal/conversation"
	"github.com/promptdeck/promptdeck/internal/db"
	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/gateway/openai"
	"github.com/promptdeck/promptdeck/internal/log"
	"github.com/promptdeck/promptdeck/internal/store"
	"github.com/promptdeck/promptdeck/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Custom promptdeck data directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Bool("log-stderr", false, "Write logs to stderr instead of the log file")
	rootCmd.PersistentFlags().StringP("model", "m", "", "Override the model id for this run")

	rootCmd.AddCommand(
		statusCmd,
		paramsCmd,
		sessionCmd,
		chatCmd,
		historyCmd,
		exportCmd,
		importCmd,
		clearCmd,
		statsCmd,
		configCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "promptdeck",
	Short: "Test harness for on-device language models",
	Long: `promptdeck creates model sessions against a local language model, sends
prompts to them (streaming or single-shot) and keeps every conversation in a
local database that can be exported and imported.`,
	Example: heredoc.Doc(`
		# Check whether the model is ready
		promptdeck status

		# Start a session and chat with it
		promptdeck session new --name scratch --temperature 0.7
		promptdeck chat "Summarize the rules of chess in three sentences"

		# Pipe input and wait for the whole reply
		cat notes.txt | promptdeck chat --no-stream "Turn these notes into a list"

		# Back up everything
		promptdeck export backup.json
	`),
	SilenceUsage: true,
}

func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
	); err != nil {
		os.Exit(1)
	}
}

// deck bundles the wired services a command works with.
type deck struct {
	cfg     *config.Config
	conn    *sql.DB
	store   *store.Store
	gateway *gateway.Gateway
	app     *app.App
	orch    *conversation.Orchestrator
}

func (d *deck) Close() {
	d.orch.CloseSession()
	d.app.Shutdown()
	d.store.Close()
	if err := d.conn.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// loadConfig resolves the working directory, loads the configuration and
// sets up logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Init(cwd, dataDir, debug)
	if err != nil {
		return nil, err
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model.ID = model
	}

	if toStderr, _ := cmd.Flags().GetBool("log-stderr"); toStderr {
		logger := charmlog.New(os.Stderr)
		logger.SetReportTimestamp(true)
		if cfg.Options.Debug {
			logger.SetLevel(charmlog.DebugLevel)
		}
		slog.SetDefault(slog.New(logger))
	} else {
		log.Setup(config.LogPath(cfg.Options.DataDirectory), cfg.Options.Debug)
	}
	return cfg, nil
}

func newCapability(cfg *config.Config) gateway.Capability {
	return openai.New(openai.Options{
		BaseURL: cfg.Model.BaseURL,
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.ID,
		Params: gateway.Params{
			DefaultTopK:        cfg.Model.DefaultTopK,
			MaxTopK:            cfg.Model.MaxTopK,
			DefaultTemperature: cfg.Model.DefaultTemperature,
			MaxTemperature:     cfg.Model.MaxTemperature,
		},
		ContextWindow: cfg.Model.ContextWindow,
	})
}

// setupDeck opens the database and wires the store, gateway, projection and
// orchestrator.
func setupDeck(cmd *cobra.Command) (*deck, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	// Connect to DB; this will also run migrations.
	conn, err := db.Connect(cmd.Context(), cfg.Options.DataDirectory)
	if err != nil {
		return nil, err
	}

	st := store.New(conn)
	gw := gateway.New(newCapability(cfg))
	a := app.New(st, gw)
	orch := conversation.New(st, gw, a, conversation.WithCheckpointPolicy(conversation.CheckpointPolicy{
		EveryChunks: cfg.Checkpoint.Chunks(),
		Every:       cfg.Checkpoint.Interval(),
	}))
	a.Load(cmd.Context())

	return &deck{cfg: cfg, conn: conn, store: st, gateway: gw, app: a, orch: orch}, nil
}

// MaybePrependStdin prefixes prompt with piped stdin, if any.
func MaybePrependStdin(prompt string) (string, error) {
	if term.IsTerminal(os.Stdin.Fd()) {
		return prompt, nil
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return prompt, err
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return prompt, nil
	}
	bts, err := io.ReadAll(os.Stdin)
	if err != nil {
		return prompt, err
	}
	if prompt == "" {
		return string(bts), nil
	}
	return string(bts) + "\n\n" + prompt, nil
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
