// Package cmd contains all CLI commands for egress-gate
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"egress-gate/internal/config"
)

var (
	cfgFile string
	noColor bool
	cfg     *config.Config
	version = "dev"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "egress-gate",
	Short: "Forwarding HTTP/HTTPS proxy with IP and domain access control",
	Long: `egress-gate is a forwarding proxy that sits between internal clients and
the outside network. Plain HTTP requests are re-issued upstream, CONNECT
requests become opaque tunnels, and designated special hosts are relayed
byte-for-byte without HTTP parsing.

Every request is checked against ordered access rules that combine client
networks with domain whitelists and blacklists.

Example usage:
  egress-gate serve                        # Run the proxy
  egress-gate check 192.168.1.10 api.example.com
  egress-gate rules                        # Show compiled access rules
  egress-gate version`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// initConfig loads environment overrides and the configuration file.
func initConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}
