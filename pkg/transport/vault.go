package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/logging"
)

// Config configures a Vault transport.
type Config struct {
	// Address of the server, e.g. "https://vault.example.com:8200". Empty
	// falls back to VAULT_ADDR and then the library default.
	Address   string
	Namespace string
	// Timeout bounds each HTTP request. Zero keeps the library default.
	Timeout time.Duration
	// HTTPClient replaces the default HTTP client, mostly for tests.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Vault is a Transport speaking the Vault HTTP API through the official
// client library. The library's own retries are disabled; retrying is the
// caller's decision.
type Vault struct {
	client *api.Client
	logger *logging.Logger

	mu     sync.RWMutex
	tokens TokenSource
}

// NewVault creates a Vault transport.
func NewVault(cfg Config) (*Vault, error) {
	config := api.DefaultConfig()
	if config.Error != nil {
		return nil, fmt.Errorf("failed to read vault environment: %w", config.Error)
	}
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		config.Timeout = cfg.Timeout
	}
	if cfg.HTTPClient != nil {
		config.HttpClient = cfg.HTTPClient
	}
	config.MaxRetries = 0

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	// Tokens come from the TokenSource only, never from VAULT_TOKEN.
	client.ClearToken()
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Vault{client: client, logger: logger}, nil
}

// SetTokenSource installs the interceptor that supplies request tokens.
func (v *Vault) SetTokenSource(ts TokenSource) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = ts
}

// Address returns the server address.
func (v *Vault) Address() string {
	return v.client.Address()
}

// Request implements Transport.
func (v *Vault) Request(ctx context.Context, req *Request) (*Response, error) {
	path := "/v1/" + strings.TrimPrefix(req.Path, "/")
	op := req.Method + " " + path

	r := v.client.NewRequest(req.Method, path)
	token, err := v.token(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to obtain token: %w", op, err)
	}
	r.ClientToken = token

	if req.Body != nil {
		if err := r.SetJSONBody(req.Body); err != nil {
			return nil, errors.Invalid("request body", err.Error())
		}
	}

	v.logger.Debug("vault request %s", op)

	//nolint:staticcheck // the raw request keeps status codes and bodies intact
	resp, err := v.client.RawRequestWithContext(ctx, r)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, v.convertError(ctx, req.Method, path, err)
	}

	out := &Response{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	if err := resp.DecodeJSON(&out.Data); err != nil && !stderrors.Is(err, io.EOF) {
		return nil, &errors.TransientError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return out, nil
}

func (v *Vault) token(req *Request) (string, error) {
	if req.Anonymous {
		return "", nil
	}
	if req.Token != "" {
		return req.Token, nil
	}

	v.mu.RLock()
	ts := v.tokens
	v.mu.RUnlock()
	if ts == nil {
		return "", nil
	}
	return ts()
}

func (v *Vault) convertError(ctx context.Context, method, path string, err error) error {
	var respErr *api.ResponseError
	if stderrors.As(err, &respErr) {
		return &errors.APIError{
			Method:     method,
			Path:       path,
			StatusCode: respErr.StatusCode,
			Messages:   respErr.Errors,
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", method, path, ctxErr)
	}
	return &errors.TransientError{Op: method + " " + path, Err: err}
}
