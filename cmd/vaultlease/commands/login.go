package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/internal/config"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	var (
		backend    string
		options    []string
		printToken bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Vault with the configured backend",
		Long: `Log in to Vault once and report the resulting token lease.

The backend and its options come from the login block of vaultlease.yaml.
--backend and --option override them for a single run.

Examples:
  vaultlease login
  vaultlease login --backend userpass --option username=app --option password=s3cret
  export VAULT_TOKEN=$(vaultlease login --print-token)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			opts, err := login(cmd.Context(), cfg, client, backend, options)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if printToken {
				_, _ = fmt.Fprintln(out, client.Token())
				return nil
			}

			lease := "no expiry"
			if client.Lease() > 0 {
				lease = fmt.Sprintf("lease %ds", client.Lease())
			}
			_, _ = fmt.Fprintf(out, "Authenticated with %s backend (%s)\n", opts.Backend, lease)
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Login backend (overrides the config file)")
	cmd.Flags().StringArrayVarP(&options, "option", "o", nil, "Backend option as key=value (repeatable)")
	cmd.Flags().BoolVar(&printToken, "print-token", false, "Print only the client token")

	return cmd
}
