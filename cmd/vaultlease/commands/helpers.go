package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/systmms/vaultlease/internal/config"
	vlerrors "github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/metrics"
	"github.com/systmms/vaultlease/pkg/vault"
	"gopkg.in/yaml.v3"
)

// newClient loads the configuration and builds a client from it.
func newClient(cfg *config.Config) (*vault.Client, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	client, err := vault.New(clientCfg)
	if err != nil {
		return nil, vlerrors.ForUser("Failed to create Vault client", err)
	}
	return client, nil
}

// login runs the configured login, with backend and options overridden
// from the command line when given.
func login(ctx context.Context, cfg *config.Config, client *vault.Client, backend string, options []string) (*vault.LoginOptions, error) {
	opts, err := loginOptions(cfg, backend, options)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, opts); err != nil {
		return nil, vlerrors.ForUser(fmt.Sprintf("Login with %s backend failed", opts.Backend), err)
	}
	return opts, nil
}

func loginOptions(cfg *config.Config, backend string, options []string) (*vault.LoginOptions, error) {
	var opts *vault.LoginOptions
	if backend == "" {
		configured, err := cfg.LoginOptions()
		if err != nil {
			return nil, err
		}
		opts = configured
	} else {
		opts = &vault.LoginOptions{Backend: backend, Options: map[string]interface{}{}}
		if configured, err := cfg.LoginOptions(); err == nil && configured.Backend == backend {
			opts.Options = configured.Options
			opts.Retry = configured.Retry
		}
	}

	if len(options) > 0 {
		merged := make(map[string]interface{}, len(opts.Options)+len(options))
		for k, v := range opts.Options {
			merged[k] = v
		}
		for _, kv := range options {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return nil, vlerrors.UserError{
					Message:    fmt.Sprintf("Invalid option %q", kv),
					Suggestion: "Pass backend options as --option key=value",
				}
			}
			merged[key] = value
		}
		opts.Options = merged
	}
	return opts, nil
}

// startMetrics starts the metrics server when enabled and returns its stop
// function.
func startMetrics(cfg *config.Config) (func(), error) {
	serverCfg := cfg.MetricsServerConfig()
	if !serverCfg.Enabled {
		return func() {}, nil
	}

	metrics.InitMetrics()
	server := metrics.NewServer(serverCfg, cfg.Logger)
	if err := server.Start(); err != nil {
		return nil, err
	}
	cfg.Logger.Info("Metrics available on %s%s", server.Addr(), serverCfg.Path)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}, nil
}

// writeValue prints v as indented JSON or YAML.
func writeValue(w io.Writer, format string, v interface{}) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return vlerrors.UserError{
		Message:    fmt.Sprintf("Unknown output format: %s", format),
		Suggestion: "Use --format json or --format yaml",
	}
}
