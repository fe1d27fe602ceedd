package wormhole

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wormholehq/wormhole/internal/config"
	"github.com/wormholehq/wormhole/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agent configuration (~/.wormhole/client.json)",
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save server URL and local origin for connect",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClientConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("server"); v != "" {
			cfg.ServerURL = v
		}
		if v, _ := cmd.Flags().GetString("local"); v != "" {
			cfg.LocalURL = v
		}
		if cfg.ServerURL == "" {
			return output.PrintError("--server is required")
		}
		if err := config.SaveClientConfig(cfg); err != nil {
			return output.PrintError("save config: " + err.Error())
		}
		output.PrintSuccess("Config saved to " + config.ClientConfigDir())
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved agent configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClientConfig()
		if err != nil {
			return err
		}
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	configSetCmd.Flags().String("server", "", "Server URL, e.g. http://tunnel.example.com")
	configSetCmd.Flags().String("local", "", "Local origin, e.g. http://127.0.0.1:3000")
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
