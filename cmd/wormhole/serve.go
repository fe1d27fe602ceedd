package wormhole

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/wormholehq/wormhole/internal/config"
	"github.com/wormholehq/wormhole/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wormhole tunneling server",
	Long:  `Start the wormhole tunneling server. Agents connect over WebSocket to receive a subdomain; public traffic on subdomains of the base domain is proxied through them.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML configuration file (env overrides file)")
	serveCmd.Flags().String("host", "", "Bind address (or WH_HOST)")
	serveCmd.Flags().Int("port", 0, "Bind port (or WH_PORT)")
	serveCmd.Flags().String("base-domain", "", "Host suffix for subdomain extraction (or WH_BASE_DOMAIN)")
}

func runServe(cmd *cobra.Command, args []string) error {
	config.LoadDotEnv(".env")

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("base-domain"); v != "" {
		cfg.BaseDomain = v
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	klog.Infof("wormhole server starting: http://%s (base domain %s)", cfg.Addr(), cfg.BaseDomain)
	return srv.Run(ctx)
}
