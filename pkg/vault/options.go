package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/logging"
	"github.com/systmms/vaultlease/internal/schema"
	"github.com/systmms/vaultlease/pkg/auth"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Config configures a Client.
type Config struct {
	// Address of the secret service. Ignored when Transport is set.
	Address   string
	Namespace string
	Timeout   time.Duration

	// RevokeOnLogout revokes the token server-side on Logout.
	RevokeOnLogout bool

	// Retry is the default policy for logins and fetches. Nil uses
	// retry.DefaultPolicy().
	Retry *retry.Policy

	// Transport replaces the Vault HTTP transport, mostly for tests.
	Transport transport.Transport
	// Registry resolves login backends. Nil uses auth.DefaultRegistry().
	Registry *auth.Registry
	// Clock drives backoff and renewal timers. Nil uses the wall clock.
	Clock  clock.Clock
	Logger *logging.Logger
}

// LoginOptions selects a backend and carries its options.
type LoginOptions struct {
	Backend string                 `json:"backend" yaml:"backend"`
	Options map[string]interface{} `json:"options" yaml:"options"`
	// Retry overrides the client's default retry policy for this login.
	Retry *retry.Policy `json:"-" yaml:"-"`
}

func (o *LoginOptions) validate(registry *auth.Registry, base retry.Policy) error {
	doc := map[string]interface{}{"backend": o.Backend}
	if o.Options != nil {
		doc["options"] = o.Options
	}
	if err := schema.Validate(schema.LoginOptions, doc); err != nil {
		return err
	}
	if _, err := registry.Get(o.Backend); err != nil {
		return err
	}
	return base.Override(o.Retry).Validate()
}

// SecretRef names a secret to watch and where to keep it.
type SecretRef struct {
	// Address is where the secret is stored: a dotted path ("db.primary"),
	// "." for the root, or empty to store it under SourcePath as one
	// literal key.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// SourcePath is the path read from the secret service.
	SourcePath string `json:"sourcePath" yaml:"sourcePath"`
}

// UnmarshalYAML accepts either a bare path or an {address, sourcePath}
// mapping.
func (r *SecretRef) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	refs, err := DecodeSecretRefs(raw)
	if err != nil {
		return err
	}
	if len(refs) != 1 {
		return errors.Invalid("secret reference", fmt.Sprintf("expected one reference, got %d", len(refs)))
	}
	*r = refs[0]
	return nil
}

// UnmarshalJSON accepts either a bare path or an {address, sourcePath}
// object.
func (r *SecretRef) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	refs, err := DecodeSecretRefs(raw)
	if err != nil {
		return err
	}
	if len(refs) != 1 {
		return errors.Invalid("secret reference", fmt.Sprintf("expected one reference, got %d", len(refs)))
	}
	*r = refs[0]
	return nil
}

// DecodeSecretRefs converts loosely typed input, as decoded from JSON or
// YAML, into references. It accepts a path string, an {address,
// sourcePath} object, or a list mixing both. Anything else, including
// unknown keys such as {"path": "..."}, is a ValidationError.
func DecodeSecretRefs(raw interface{}) ([]SecretRef, error) {
	// normalize typed input ([]string, SecretRef, ...) to plain JSON values
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Invalid("secret references", err.Error())
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, errors.Invalid("secret references", err.Error())
	}

	if err := schema.Validate(schema.WatchSecrets, doc); err != nil {
		return nil, err
	}

	items, ok := doc.([]interface{})
	if !ok {
		items = []interface{}{doc}
	}

	refs := make([]SecretRef, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			refs = append(refs, SecretRef{SourcePath: v})
		case map[string]interface{}:
			ref := SecretRef{}
			ref.SourcePath, _ = v["sourcePath"].(string)
			ref.Address, _ = v["address"].(string)
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
