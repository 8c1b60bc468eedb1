package auth

import (
	"context"

	"github.com/systmms/vaultlease/pkg/transport"
)

type gitHubOptions struct {
	Token string `mapstructure:"token"`
	Mount string `mapstructure:"mount"`
}

// GitHub logs in with a GitHub personal access token.
type GitHub struct{}

// NewGitHub creates the "github" backend.
func NewGitHub() *GitHub {
	return &GitHub{}
}

// Name implements Backend.
func (g *GitHub) Name() string {
	return "github"
}

// Login implements Backend.
func (g *GitHub) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts gitHubOptions
	if err := decodeOptions(g.Name(), options, &opts); err != nil {
		return nil, err
	}
	return login(ctx, t, "auth/"+mountOr(opts.Mount, "github")+"/login", map[string]interface{}{"token": opts.Token})
}
