package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/internal/config"
	"github.com/systmms/vaultlease/pkg/auth"
)

var backendDescriptions = map[string]string{
	"userpass":   "Username and password",
	"ldap":       "LDAP username and password",
	"app-role":   "AppRole role_id and secret_id",
	"github":     "GitHub personal access token",
	"kubernetes": "Kubernetes service account token",
	"aws-ec2":    "EC2 instance identity document",
	"aws-iam":    "Signed sts:GetCallerIdentity request",
	"token":      "Existing Vault token",
}

var backendOptions = map[string][]string{
	"userpass":   {"username", "password", "mount"},
	"ldap":       {"username", "password", "mount"},
	"app-role":   {"role_id", "secret_id", "mount"},
	"github":     {"token", "mount"},
	"kubernetes": {"role", "jwt", "jwt_path", "mount"},
	"aws-ec2":    {"role", "nonce", "mount"},
	"aws-iam":    {"role", "region", "server_id_header", "sts_endpoint", "mount"},
	"token":      {"token"},
}

func NewBackendsCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List supported login backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			registry := auth.DefaultRegistry()

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(w, "BACKEND\tDESCRIPTION\n")
			_, _ = fmt.Fprintf(w, "-------\t-----------\n")
			for _, name := range registry.Names() {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", name, backendDescriptions[name])
			}
			_ = w.Flush()

			if verbose {
				_, _ = fmt.Fprintln(out, "\nOptions:")
				for _, name := range registry.Names() {
					_, _ = fmt.Fprintf(out, "  %s: %v\n", name, backendOptions[name])
				}
			}

			if err := cfg.Load(); err == nil {
				if opts, err := cfg.LoginOptions(); err == nil {
					status := "supported"
					if !registry.Has(opts.Backend) {
						status = "unsupported"
					}
					_, _ = fmt.Fprintf(out, "\nConfigured: %s (%s)\n", opts.Backend, status)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show the options each backend accepts")

	return cmd
}
