package vault_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/transport/transporttest"
	"github.com/systmms/vaultlease/pkg/vault"
)

const (
	shortWait = 50 * time.Millisecond
	longWait  = 5 * time.Second
)

func fastRetry(retries int) *retry.Policy {
	return &retry.Policy{
		MaxRetries: retries,
		MinDelay:   time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Factor:     2,
	}
}

func newClient(t *testing.T, fake *transporttest.Fake, clk clock.Clock) *vault.Client {
	t.Helper()

	client, err := vault.New(vault.Config{
		Transport: fake,
		Clock:     clk,
		Retry:     fastRetry(3),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func userpassLogin() *vault.LoginOptions {
	return &vault.LoginOptions{
		Backend: "userpass",
		Options: map[string]interface{}{"username": "app", "password": "s3cret"},
	}
}

const userpassPath = "auth/userpass/login/app"

func loginOK(token string, lease int) transporttest.Result {
	return transporttest.OK(map[string]interface{}{
		"auth": map[string]interface{}{"client_token": token, "lease_duration": lease},
	})
}

func secretOK(lease int, data map[string]interface{}) transporttest.Result {
	return transporttest.OK(map[string]interface{}{
		"lease_duration": lease,
		"data":           data,
	})
}

func unavailable(path string) transporttest.Result {
	return transporttest.Status(http.MethodGet, path, http.StatusServiceUnavailable, "Vault is sealed")
}

// recorder collects events published on a topic.
type recorder struct {
	mu     sync.Mutex
	events []interface{}
}

func record(client *vault.Client, topic string) *recorder {
	r := &recorder{}
	client.Subscribe(topic, func(_ string, data interface{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, data)
	})
	return r
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]interface{}, len(r.events))
	copy(out, r.events)
	return out
}
