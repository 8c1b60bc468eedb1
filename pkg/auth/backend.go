// Package auth implements the login backends a client can authenticate with.
//
// A Backend turns caller-supplied options into one or more requests and
// returns the raw "auth" block of the login response. Backends never retry
// and never touch client state; the caller validates what they return.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/schema"
	"github.com/systmms/vaultlease/pkg/transport"
)

// Backend authenticates against one auth method.
type Backend interface {
	// Name is the identifier callers select the backend by.
	Name() string
	// Login authenticates and returns the raw auth block of the response.
	Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error)
}

// Registry maps backend names to implementations.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// DefaultRegistry returns a registry holding every built-in backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewUserpass())
	r.Register(NewLDAP())
	r.Register(NewAppRole())
	r.Register(NewGitHub())
	r.Register(NewKubernetes())
	r.Register(NewAWSEC2(nil))
	r.Register(NewAWSIAM(nil))
	r.Register(NewToken())
	return r
}

// Register adds b, replacing any backend with the same name.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get resolves a backend by name. Unknown names are a ValidationError.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, errors.Invalid("login options",
			fmt.Sprintf("unsupported backend %q (supported: %s)", name, strings.Join(r.namesLocked(), ", ")))
	}
	return b, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[name]
	return ok
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeOptions validates options against the backend's schema, when one
// exists, and decodes them into out.
func decodeOptions(backend string, options map[string]interface{}, out interface{}) error {
	if options == nil {
		options = map[string]interface{}{}
	}
	if name := schema.BackendOptions(backend); schema.Has(name) {
		if err := schema.Validate(name, options); err != nil {
			return err
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return errors.Invalid(backend+" options", err.Error())
	}
	return nil
}

// login posts body to auth/<mount>/<suffix> without a token and returns the
// auth block of the response.
func login(ctx context.Context, t transport.Transport, path string, body map[string]interface{}) (map[string]interface{}, error) {
	resp, err := t.Request(ctx, &transport.Request{
		Method:    "POST",
		Path:      path,
		Body:      body,
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Map("auth"), nil
}

func mountOr(mount, fallback string) string {
	mount = strings.Trim(mount, "/")
	if mount == "" {
		return fallback
	}
	return mount
}
