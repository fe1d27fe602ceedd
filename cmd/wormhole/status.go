package wormhole

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wormholehq/wormhole/internal/config"
	"github.com/wormholehq/wormhole/internal/server"
	"github.com/wormholehq/wormhole/pkg/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status and active tunnels",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("server", "", "Server base URL, e.g. http://tunnel.example.com (or WH_SERVER / client.json)")
	statusCmd.Flags().String("output", "table", "Output format: table or json")
}

func runStatus(cmd *cobra.Command, args []string) error {
	base, err := statusBaseURL(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + "/status")
	if err != nil {
		return output.PrintError("cannot reach server: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return output.PrintError("server returned " + resp.Status)
	}

	var st server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return output.PrintError("invalid status response: " + err.Error())
	}

	format, _ := cmd.Flags().GetString("output")
	if format == "json" {
		data, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	output.PrintStatus(&st)
	return nil
}

func statusBaseURL(cmd *cobra.Command) (string, error) {
	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		cfg, err := config.LoadClientConfig()
		if err != nil {
			return "", err
		}
		base = cfg.ServerURL
	}
	if base == "" {
		return "", output.PrintError("server is required (--server, WH_SERVER, or wormhole config set)")
	}
	// accept ws:// form saved for connect
	base = strings.Replace(base, "ws://", "http://", 1)
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/tunnel")
	return base, nil
}
