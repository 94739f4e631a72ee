package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "relayctl",
		Short: "CLI tool for the world relay",
		Long: `relayctl talks to a world relay server.

It can check server health and status over the JSON API, and log in over the
websocket protocol to list, create and play in worlds.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load password from file if not provided via flag/env
			if err := cfg.LoadPassword(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL, cfg.Timeout)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: RELAY_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Username, "user", cfg.Username, "Username (env: RELAY_USER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Password, "password", cfg.Password, "Password (env: RELAY_PASSWORD)")
	rootCmd.PersistentFlags().StringVar(&cfg.PasswordFile, "password-file", cfg.PasswordFile, "Password file path (env: RELAY_PASSWORD_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWorldsCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newPlayCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
