package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "onebot-adapter",
	Short: "OneBot v11/v12 protocol adapter",
	Long: `onebot-adapter bridges OneBot v11 and v12 implementations to a single
process: inbound HTTP webhooks and WebSocket servers, outbound reverse-WS
clients, and a shared call dispatcher per bot.

Configuration is a single YAML file (see -f / --config), covering the
HTTP listen address plus the onebot_v11 and onebot_v12 sections.

Examples:
  onebot-adapter serve -f config.yaml
  onebot-adapter version`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
