// Package cmd provides the CLI commands for chunkcast.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chunkcast",
	Short: "chunkcast - streaming publish/subscribe server",
	Long: `chunkcast holds HTTP responses and WebSocket connections open and streams
every message published to a topic into them.

Subscribers connect with streaming, long-polling or server-sent-events
transports; publishers POST message bodies. Payloads can be transformed on
the way out (gzip, brotli, padding, SSE framing, JSONP, size tracking).

Commands:
  serve       Start the server
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file (JSON or TOML); built-in defaults when empty")
}
