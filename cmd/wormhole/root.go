package wormhole

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// version is set at build time via -ldflags "-X github.com/wormholehq/wormhole/cmd/wormhole.version=..."
var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "wormhole",
	Short:   "Self-hosted HTTP tunneling server and agent",
	Long:    `wormhole runs a tunneling server (wormhole serve); agents connect (wormhole connect) to expose a local HTTP service on a server-assigned subdomain.`,
	Version: version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add verbosity flag from klog.
	klog.InitFlags(flag.CommandLine)
	if v := flag.CommandLine.Lookup("v"); v != nil {
		pflag.CommandLine.AddGoFlag(v)
	}
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}
