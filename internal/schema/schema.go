// Package schema validates option blocks and service responses against
// JSON schemas embedded in the binary.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/systmms/vaultlease/internal/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Schema names.
const (
	LoginOptions     = "login-options"
	RetryOptions     = "retry-options"
	WatchSecrets     = "watch-secrets"
	AuthResponseData = "auth-response-data"
)

// BackendOptions returns the schema name for a login backend's options.
func BackendOptions(backend string) string {
	if backend == "app-role" {
		backend = "approle"
	}
	return "auth-" + backend + "-options"
}

//go:embed schemas/*.json
var files embed.FS

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	titles      map[string]string
	compileErr  error
)

func load() error {
	compileOnce.Do(func() {
		entries, err := files.ReadDir("schemas")
		if err != nil {
			compileErr = err
			return
		}

		compiled = make(map[string]*gojsonschema.Schema, len(entries))
		titles = make(map[string]string, len(entries))
		for _, entry := range entries {
			raw, err := files.ReadFile("schemas/" + entry.Name())
			if err != nil {
				compileErr = err
				return
			}

			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("failed to compile schema %s: %w", entry.Name(), err)
				return
			}

			var header struct {
				Title string `json:"title"`
			}
			_ = json.Unmarshal(raw, &header)

			name := strings.TrimSuffix(entry.Name(), ".json")
			compiled[name] = s
			titles[name] = header.Title
		}
	})
	return compileErr
}

// Has reports whether a schema with the given name is embedded.
func Has(name string) bool {
	if err := load(); err != nil {
		return false
	}
	_, ok := compiled[name]
	return ok
}

// Validate checks doc against the named schema. A document that does not
// conform yields an *errors.ValidationError listing every violation.
func Validate(name string, doc interface{}) error {
	if err := load(); err != nil {
		return err
	}

	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return errors.Invalid(titles[name], fmt.Sprintf("not representable as JSON: %v", err))
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return errors.Invalid(titles[name], reasons...)
}
