package auth

import (
	"context"
	"net/http"

	"github.com/systmms/vaultlease/pkg/transport"
)

type tokenOptions struct {
	Token string `mapstructure:"token"`
}

// Token adopts an existing token after checking it with a self lookup.
type Token struct{}

// NewToken creates the "token" backend.
func NewToken() *Token {
	return &Token{}
}

// Name implements Backend.
func (b *Token) Name() string {
	return "token"
}

// Login implements Backend. The lookup's remaining ttl becomes the lease.
func (b *Token) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts tokenOptions
	if err := decodeOptions(b.Name(), options, &opts); err != nil {
		return nil, err
	}

	resp, err := t.Request(ctx, &transport.Request{
		Method: http.MethodGet,
		Path:   "auth/token/lookup-self",
		Token:  opts.Token,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Map("data")
	auth := map[string]interface{}{
		"client_token":   opts.Token,
		"lease_duration": data["ttl"],
	}
	for _, key := range []string{"accessor", "policies", "renewable", "meta"} {
		if v, ok := data[key]; ok {
			if key == "meta" {
				key = "metadata"
			}
			auth[key] = v
		}
	}
	return auth, nil
}
