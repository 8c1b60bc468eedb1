package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/systmms/vaultlease/pkg/transport"
)

// DefaultServiceAccountTokenPath is where pods find their service account JWT.
const DefaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

type kubernetesOptions struct {
	Role    string `mapstructure:"role"`
	JWT     string `mapstructure:"jwt"`
	JWTPath string `mapstructure:"jwt_path"`
	Mount   string `mapstructure:"mount"`
}

// Kubernetes logs in with a service account JWT.
type Kubernetes struct{}

// NewKubernetes creates the "kubernetes" backend.
func NewKubernetes() *Kubernetes {
	return &Kubernetes{}
}

// Name implements Backend.
func (k *Kubernetes) Name() string {
	return "kubernetes"
}

// Login implements Backend. The JWT is taken from the jwt option, else read
// from jwt_path, else from the default service account token path.
func (k *Kubernetes) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts kubernetesOptions
	if err := decodeOptions(k.Name(), options, &opts); err != nil {
		return nil, err
	}

	jwt := opts.JWT
	if jwt == "" {
		path := opts.JWTPath
		if path == "" {
			path = DefaultServiceAccountTokenPath
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read kubernetes token: %w", err)
		}
		jwt = strings.TrimSpace(string(raw))
	}

	return login(ctx, t, "auth/"+mountOr(opts.Mount, "kubernetes")+"/login", map[string]interface{}{
		"role": opts.Role,
		"jwt":  jwt,
	})
}
