package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/cmd/vaultlease/commands"
	"github.com/systmms/vaultlease/internal/config"
	"github.com/systmms/vaultlease/internal/execenv"
	"github.com/systmms/vaultlease/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		var exitErr *execenv.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "vaultlease",
		Short: "Log in to Vault and keep leased secrets fresh",
		Long: `vaultlease logs in to HashiCorp Vault with a configured auth backend,
fetches secrets and renews both the token and every leased secret before
its lease runs out.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Debug = debug
			cfg.NoColor = noColor
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewLoginCommand(cfg),
		commands.NewReadCommand(cfg),
		commands.NewWatchCommand(cfg),
		commands.NewExecCommand(cfg),
		commands.NewBackendsCommand(cfg),
	)

	return rootCmd.Execute()
}
