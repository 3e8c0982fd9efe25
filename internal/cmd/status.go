package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/promptdeck/promptdeck/internal/config"
	"github.com/promptdeck/promptdeck/internal/gateway"
	"github.com/promptdeck/promptdeck/internal/log"
	"github.com/spf13/cobra"
)

func init() {
	statusCmd.Flags().Duration("wait", 0, "Poll until the model is ready or definitely unavailable, up to this long")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show model availability and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		gw := gateway.New(newCapability(cfg))

		status := gw.CheckAvailability(cmd.Context())
		if wait, _ := cmd.Flags().GetDuration("wait"); wait > 0 && !status.Terminal() {
			fmt.Fprintln(os.Stderr, subtleStyle.Render(fmt.Sprintf("Waiting up to %s for the model...", wait)))
			status, err = gw.WaitForAvailability(cmd.Context(), wait)
			if err != nil && !gateway.IsAbort(err) {
				fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
		}

		sections := []string{
			titleStyle.Render("Model"),
			field("Status", availabilityStyle(status).Render(string(status))),
			field("Endpoint", cfg.Model.BaseURL),
			field("Model", cfg.Model.ID),
			field("API Key", log.MaskAPIKey(cfg.Model.APIKey)),
			"",
			titleStyle.Render("Storage"),
			field("Data Directory", cfg.Options.DataDirectory),
			field("Log Path", config.LogPath(cfg.Options.DataDirectory)),
			field("Config File", findActiveConfigFile(cfg.WorkingDir())),
			field("Checkpoint", fmt.Sprintf("every %d chunks or %s", cfg.Checkpoint.Chunks(), cfg.Checkpoint.Interval().Round(time.Millisecond))),
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left, sections...))
		return nil
	},
}

// findActiveConfigFile determines which configuration file is actually being used
func findActiveConfigFile(workingDir string) string {
	paths := config.GetConfigPaths(workingDir)
	for i := len(paths) - 1; i >= 0; i-- {
		if _, err := os.Stat(paths[i]); err == nil {
			return paths[i]
		}
	}
	if _, err := os.Stat(config.GlobalConfig()); err == nil {
		return config.GlobalConfig()
	}
	return "No configuration file found (using defaults)"
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show the sampling bounds of the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		gw := gateway.New(newCapability(cfg))

		params, err := gw.ModelParameters(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Model Parameters"),
			field("Default Top-K", fmt.Sprint(params.DefaultTopK)),
			field("Max Top-K", fmt.Sprint(params.MaxTopK)),
			field("Default Temperature", fmt.Sprintf("%g", params.DefaultTemperature)),
			field("Max Temperature", fmt.Sprintf("%g", params.MaxTemperature)),
		))
		return nil
	},
}
