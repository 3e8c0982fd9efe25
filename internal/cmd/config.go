package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/promptdeck/promptdeck/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or change the global configuration file",
	Example: heredoc.Doc(`
		promptdeck config set model.base_url http://localhost:8080/v1
		promptdeck config set model.context_window 8192
		promptdeck config get model.id
	`),
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, found, err := config.GetConfigField(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s is not set", args[0])
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetConfigField(args[0], parseConfigValue(args[1])); err != nil {
			return err
		}
		fmt.Println(field(args[0], args[1]))
		return nil
	},
}

// parseConfigValue keeps numbers, booleans and JSON literals typed; anything
// else is stored as a string.
func parseConfigValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
