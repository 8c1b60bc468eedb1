package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/schema"
)

func TestValidateAuthResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   interface{}
		valid bool
	}{
		{
			name:  "minimal",
			doc:   map[string]interface{}{"client_token": "s.abc", "lease_duration": 3600},
			valid: true,
		},
		{
			name: "full vault auth block",
			doc: map[string]interface{}{
				"client_token":   "s.abc",
				"accessor":       "acc",
				"lease_duration": float64(0),
				"renewable":      true,
				"policies":       []interface{}{"default"},
				"metadata":       nil,
			},
			valid: true,
		},
		{name: "missing token", doc: map[string]interface{}{"lease_duration": 10}},
		{name: "empty token", doc: map[string]interface{}{"client_token": "", "lease_duration": 10}},
		{name: "missing lease", doc: map[string]interface{}{"client_token": "s.abc"}},
		{name: "negative lease", doc: map[string]interface{}{"client_token": "s.abc", "lease_duration": -1}},
		{name: "fractional lease", doc: map[string]interface{}{"client_token": "s.abc", "lease_duration": 1.5}},
		{name: "string lease", doc: map[string]interface{}{"client_token": "s.abc", "lease_duration": "10"}},
		{name: "not an object", doc: "s.abc"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := schema.Validate(schema.AuthResponseData, tt.doc)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestValidateWatchSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   interface{}
		valid bool
	}{
		{name: "single path", doc: "/secret/foo", valid: true},
		{name: "single reference", doc: map[string]interface{}{"sourcePath": "/secret/foo"}, valid: true},
		{name: "root address", doc: map[string]interface{}{"address": ".", "sourcePath": "/secret/foo"}, valid: true},
		{
			name: "mixed list",
			doc: []interface{}{
				"/secret/shared",
				map[string]interface{}{"address": "db.primary", "sourcePath": "/database/creds/app"},
			},
			valid: true,
		},
		{name: "unknown key", doc: map[string]interface{}{"path": "not-a-uri"}},
		{name: "empty path", doc: ""},
		{name: "whitespace in path", doc: "/secret/with space"},
		{name: "empty list", doc: []interface{}{}},
		{name: "empty address segment", doc: map[string]interface{}{"address": "a..b", "sourcePath": "/secret/foo"}},
		{name: "number", doc: 42},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := schema.Validate(schema.WatchSecrets, tt.doc)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestValidateRetryOptions(t *testing.T) {
	t.Parallel()

	valid := []map[string]interface{}{
		{},
		{"retries": 3, "min_timeout": "1s", "max_timeout": "1m30s"},
		{"retries": 0, "factor": 1.5, "randomize": true},
		{"forever": true, "min_timeout": 250},
		{"min_timeout": "1.5s"},
	}
	for _, doc := range valid {
		assert.NoError(t, schema.Validate(schema.RetryOptions, doc), "%v", doc)
	}

	invalid := []map[string]interface{}{
		{"retries": -1},
		{"factor": 0.5},
		{"min_timeout": 0},
		{"max_timeout": "soon"},
		{"attempts": 3},
	}
	for _, doc := range invalid {
		assert.True(t, errors.IsValidation(schema.Validate(schema.RetryOptions, doc)), "%v", doc)
	}
}

func TestValidateLoginOptions(t *testing.T) {
	t.Parallel()

	assert.NoError(t, schema.Validate(schema.LoginOptions, map[string]interface{}{
		"backend": "userpass",
		"options": map[string]interface{}{"username": "app"},
	}))

	err := schema.Validate(schema.LoginOptions, map[string]interface{}{"options": map[string]interface{}{}})
	require.Error(t, err)

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "login options", verr.Subject)
	assert.NotEmpty(t, verr.Reasons)
}

func TestBackendSchemasEmbedded(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"userpass", "ldap", "app-role", "github", "kubernetes", "aws-ec2", "aws-iam", "token"} {
		assert.True(t, schema.Has(schema.BackendOptions(name)), name)
	}
	assert.False(t, schema.Has(schema.BackendOptions("radius")))

	err := schema.Validate(schema.BackendOptions("userpass"), map[string]interface{}{"username": "app"})
	assert.True(t, errors.IsValidation(err))
}

func TestValidateUnknownSchema(t *testing.T) {
	t.Parallel()

	err := schema.Validate("does-not-exist", map[string]interface{}{})
	require.Error(t, err)
	assert.False(t, errors.IsValidation(err))
}
