// Command opencode-core runs the session engine server: SQLite-backed
// sessions, the streaming turn loop, and the HTTP+SSE API consumed by
// the front-ends.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/core/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "opencode-core",
	Short: "Session engine for the opencode agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	rootCmd.PersistentFlags().StringP("directory", "d", "", "worktree directory (default: cwd)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	serveCmd.Flags().Int("port", 0, "HTTP port (default from config)")
	serveCmd.Flags().String("hostname", "", "HTTP hostname (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.Error().Err(err).Msg("fatal")
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
