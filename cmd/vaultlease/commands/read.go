package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/internal/config"
	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/vault"
)

func NewReadCommand(cfg *config.Config) *cobra.Command {
	var (
		address string
		format  string
		noLogin bool
	)

	cmd := &cobra.Command{
		Use:   "read [path...]",
		Short: "Log in and print secrets once",
		Long: `Log in, fetch secrets and print them.

Without arguments the secrets listed in vaultlease.yaml are read and merged
at their addresses. Paths given as arguments are stored under their own
path instead.

Examples:
  vaultlease read
  vaultlease read secret/data/app --format yaml
  vaultlease read --address db.password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()
			if !noLogin {
				if _, err := login(ctx, cfg, client, "", nil); err != nil {
					return err
				}
			}

			refs := cfg.SecretRefs()
			if len(args) > 0 {
				refs = make([]vault.SecretRef, 0, len(args))
				for _, p := range args {
					refs = append(refs, vault.SecretRef{SourcePath: p})
				}
			}
			if len(refs) == 0 {
				return vlerrors.UserError{
					Message:    "No secrets to read",
					Suggestion: "Pass secret paths as arguments or list them under 'secrets:' in vaultlease.yaml",
				}
			}

			view, err := client.Watch(ctx, refs, nil)
			if err != nil {
				return vlerrors.ForUser("Failed to read secrets", err)
			}

			if address == "" {
				return writeValue(cmd.OutOrStdout(), format, view)
			}
			value, ok := client.Secret(address)
			if !ok {
				return vlerrors.UserError{
					Message:    fmt.Sprintf("Nothing stored at %q", address),
					Suggestion: "Check the address against the secrets in vaultlease.yaml",
				}
			}
			return writeValue(cmd.OutOrStdout(), format, value)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Print only the value stored at this address")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().BoolVar(&noLogin, "no-login", false, "Skip login and read without a token")

	return cmd
}
