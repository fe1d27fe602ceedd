package wormhole

import (
	"context"
	"errors"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wormholehq/wormhole/internal/agent"
	"github.com/wormholehq/wormhole/internal/config"
	"github.com/wormholehq/wormhole/internal/protocol"
	"github.com/wormholehq/wormhole/pkg/output"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a wormhole server and expose a local HTTP service",
	Long:  `Connect to a wormhole server over WebSocket. The server assigns a subdomain and forwards public requests on it to the local origin.`,
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().String("server", "", "Server URL, e.g. ws://tunnel.example.com/tunnel (or WH_SERVER / client.json)")
	connectCmd.Flags().String("local", "", "Local origin to expose, e.g. http://127.0.0.1:3000 (or WH_LOCAL / client.json)")
}

func runConnect(cmd *cobra.Command, args []string) error {
	config.LoadDotEnv(".env")
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}

	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	local, _ := cmd.Flags().GetString("local")
	if local == "" {
		local = cfg.LocalURL
	}
	if serverURL == "" || local == "" {
		return output.PrintError("server and local are required (--server/--local, WH_SERVER/WH_LOCAL, or wormhole config set)")
	}
	serverURL = normalizeServerURL(serverURL)
	if _, err := url.ParseRequestURI(serverURL); err != nil {
		return output.PrintError("invalid server URL: " + err.Error())
	}
	local = strings.TrimSuffix(local, "/")

	a := agent.New(serverURL, local)
	a.OnConnected = func(c *protocol.Connected) {
		output.PrintSuccess("Tunnel ready: " + c.PublicURL + " -> " + local)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// normalizeServerURL turns an http(s) base URL into the ws(s) /tunnel endpoint.
func normalizeServerURL(s string) string {
	s = strings.TrimSuffix(s, "/")
	switch {
	case strings.HasPrefix(s, "http://"):
		s = "ws://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "https://"):
		s = "wss://" + strings.TrimPrefix(s, "https://")
	}
	if !strings.HasSuffix(s, "/tunnel") {
		s += "/tunnel"
	}
	return s
}
