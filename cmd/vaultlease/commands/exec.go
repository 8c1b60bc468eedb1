package commands

import (
	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/internal/config"
	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/execenv"
)

func NewExecCommand(cfg *config.Config) *cobra.Command {
	var (
		prefix       string
		keepExisting bool
		printVars    bool
		workingDir   string
	)

	cmd := &cobra.Command{
		Use:   "exec -- <command> [args...]",
		Short: "Run a command with secrets in its environment",
		Long: `Log in, read the configured secrets and run a command with them as
environment variables.

Nested addresses become upper-case names joined by underscores: a secret
stored at "db" with a "password" key is exported as DB_PASSWORD.

Examples:
  vaultlease exec -- ./server
  vaultlease exec --prefix app --print-vars -- env`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := execenv.ValidateCommand(args); err != nil {
				return err
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()
			if _, err := login(ctx, cfg, client, "", nil); err != nil {
				return err
			}

			refs := cfg.SecretRefs()
			if len(refs) == 0 {
				return vlerrors.UserError{
					Message:    "No secrets to export",
					Suggestion: "List secrets under 'secrets:' in vaultlease.yaml",
				}
			}
			view, err := client.Watch(ctx, refs, nil)
			if err != nil {
				return vlerrors.ForUser("Failed to read secrets", err)
			}

			executor := execenv.New(cfg.Logger).WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
			return executor.Exec(ctx, execenv.ExecOptions{
				Command:      args,
				Environment:  execenv.Flatten(prefix, view),
				KeepExisting: keepExisting,
				PrintVars:    printVars,
				WorkingDir:   workingDir,
			})
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&prefix, "prefix", "", "Prefix for every exported variable name")
	cmd.Flags().BoolVar(&keepExisting, "keep-existing", false, "Let variables already set in the environment win")
	cmd.Flags().BoolVar(&printVars, "print-vars", false, "List exported variables with masked values")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "Working directory for the command")

	return cmd
}
