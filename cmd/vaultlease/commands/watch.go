package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/vaultlease/internal/config"
	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/vault"
)

func NewWatchCommand(cfg *config.Config) *cobra.Command {
	var showValues bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay logged in and keep secrets fresh until interrupted",
		Long: `Log in, fetch the configured secrets and keep renewing the token and
every leased secret until interrupted.

Each fetched secret is reported on its own line. With --values the line is
a JSON object carrying the value.

The metrics block of vaultlease.yaml enables a Prometheus endpoint while
the command runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			stopMetrics, err := startMetrics(cfg)
			if err != nil {
				return err
			}
			defer stopMetrics()

			refs := cfg.SecretRefs()
			if len(refs) == 0 {
				return vlerrors.UserError{
					Message:    "No secrets to watch",
					Suggestion: "List secrets under 'secrets:' in vaultlease.yaml",
				}
			}

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			unsubscribe := client.Subscribe(vault.TopicSecret, func(_ string, data interface{}) {
				event, ok := data.(vault.SecretEvent)
				if !ok {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if !showValues {
					_, _ = fmt.Fprintf(out, "updated %s\n", event.Address)
					return
				}
				line, err := json.Marshal(map[string]interface{}{"address": event.Address, "value": event.Value})
				if err != nil {
					cfg.Logger.Warn("Failed to encode %s: %v", event.Address, err)
					return
				}
				_, _ = fmt.Fprintln(out, string(line))
			})
			defer unsubscribe()

			unsubscribeAuth := client.Subscribe(vault.TopicAuthenticated, func(_ string, data interface{}) {
				if event, ok := data.(vault.AuthenticatedEvent); ok {
					cfg.Logger.Info("Authenticated with %s backend (lease %ds)", event.Backend, event.LeaseSeconds)
				}
			})
			defer unsubscribeAuth()

			unsubscribeErr := client.Subscribe(vault.TopicLoginError, func(_ string, data interface{}) {
				if event, ok := data.(vault.ErrorEvent); ok {
					cfg.Logger.Error("%s: %v", event.Op, event.Err)
				}
			})
			defer unsubscribeErr()

			if _, err := login(ctx, cfg, client, "", nil); err != nil {
				return err
			}
			if _, err := client.Watch(ctx, refs, nil); err != nil {
				return vlerrors.ForUser("Failed to read secrets", err)
			}

			cfg.Logger.Info("Watching %d secret(s); press Ctrl+C to stop", len(refs))
			<-ctx.Done()

			logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Logout(logoutCtx)
		},
	}

	cmd.Flags().BoolVar(&showValues, "values", false, "Print secret values as JSON lines")

	return cmd
}
