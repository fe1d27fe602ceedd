package wormhole

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wormholehq/wormhole/pkg/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleHealth(cmd)
	},
}

func init() {
	healthCmd.Flags().String("server", "", "Server base URL (or WH_SERVER / client.json)")
}

func handleHealth(cmd *cobra.Command) error {
	base, err := statusBaseURL(cmd)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(base + "/health")
	if err != nil {
		return output.PrintError("cannot reach server: " + err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		return output.PrintError("unexpected health response: " + resp.Status)
	}

	output.PrintSuccess("Server reachable and healthy")
	return nil
}
