package auth

import (
	"context"

	"github.com/systmms/vaultlease/pkg/transport"
)

type appRoleOptions struct {
	RoleID   string `mapstructure:"role_id"`
	SecretID string `mapstructure:"secret_id"`
	Mount    string `mapstructure:"mount"`
}

// AppRole logs in with a role ID and an optional secret ID.
type AppRole struct{}

// NewAppRole creates the "app-role" backend.
func NewAppRole() *AppRole {
	return &AppRole{}
}

// Name implements Backend.
func (a *AppRole) Name() string {
	return "app-role"
}

// Login implements Backend.
func (a *AppRole) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts appRoleOptions
	if err := decodeOptions(a.Name(), options, &opts); err != nil {
		return nil, err
	}

	body := map[string]interface{}{"role_id": opts.RoleID}
	if opts.SecretID != "" {
		body["secret_id"] = opts.SecretID
	}
	return login(ctx, t, "auth/"+mountOr(opts.Mount, "approle")+"/login", body)
}
