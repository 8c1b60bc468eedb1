package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/transport"
)

type passwordOptions struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Mount    string `mapstructure:"mount"`
}

// Password logs in with a username and password. It serves both the
// userpass and ldap auth methods.
type Password struct {
	name string
	// remapBadRequest reports a 400 as 401. Userpass answers bad
	// credentials with a 400.
	remapBadRequest bool
}

// NewUserpass creates the "userpass" backend.
func NewUserpass() *Password {
	return &Password{name: "userpass", remapBadRequest: true}
}

// NewLDAP creates the "ldap" backend.
func NewLDAP() *Password {
	return &Password{name: "ldap"}
}

// Name implements Backend.
func (p *Password) Name() string {
	return p.name
}

// Login implements Backend.
func (p *Password) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts passwordOptions
	if err := decodeOptions(p.name, options, &opts); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("auth/%s/login/%s", mountOr(opts.Mount, p.name), url.PathEscape(opts.Username))
	auth, err := login(ctx, t, path, map[string]interface{}{"password": opts.Password})
	if err != nil && p.remapBadRequest {
		var apiErr *errors.APIError
		if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			remapped := *apiErr
			remapped.StatusCode = http.StatusUnauthorized
			return nil, &remapped
		}
	}
	return auth, err
}
