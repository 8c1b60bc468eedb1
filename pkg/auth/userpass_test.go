package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/auth"
	"github.com/systmms/vaultlease/pkg/transport/transporttest"
)

func authResponse(token string, lease int) transporttest.Result {
	return transporttest.OK(map[string]interface{}{
		"auth": map[string]interface{}{"client_token": token, "lease_duration": lease},
	})
}

func TestUserpassLogin(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, "auth/userpass/login/app", authResponse("s.user", 3600))

	got, err := auth.NewUserpass().Login(context.Background(), fake, map[string]interface{}{
		"username": "app",
		"password": "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "s.user", got["client_token"])

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]interface{}{"password": "s3cret"}, reqs[0].Body)
	assert.True(t, reqs[0].Anonymous)
}

func TestUserpassCustomMount(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, "auth/people/login/app", authResponse("s.user", 0))

	_, err := auth.NewUserpass().Login(context.Background(), fake, map[string]interface{}{
		"username": "app",
		"password": "s3cret",
		"mount":    "/people/",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, "auth/people/login/app"))
}

func TestUserpassBadRequestBecomesUnauthorized(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, "auth/userpass/login/app",
		transporttest.Status(http.MethodPost, "auth/userpass/login/app", http.StatusBadRequest, "invalid username or password"))

	_, err := auth.NewUserpass().Login(context.Background(), fake, map[string]interface{}{
		"username": "app",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, errors.StatusCode(err))
	assert.True(t, errors.IsTerminal(err))
}

func TestUserpassServerErrorUntouched(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, "auth/userpass/login/app",
		transporttest.Status(http.MethodPost, "auth/userpass/login/app", http.StatusServiceUnavailable))

	_, err := auth.NewUserpass().Login(context.Background(), fake, map[string]interface{}{
		"username": "app",
		"password": "s3cret",
	})
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusCode(err))
	assert.True(t, errors.IsRetryable(err))
}

func TestUserpassInvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		options map[string]interface{}
	}{
		{name: "nil", options: nil},
		{name: "missing password", options: map[string]interface{}{"username": "app"}},
		{name: "missing username", options: map[string]interface{}{"password": "s3cret"}},
		{name: "wrong type", options: map[string]interface{}{"username": 42, "password": "s3cret"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := transporttest.New()
			_, err := auth.NewUserpass().Login(context.Background(), fake, tt.options)
			assert.True(t, errors.IsValidation(err), "got %v", err)
			assert.Equal(t, 0, fake.Total())
		})
	}
}

func TestLDAPKeepsBadRequest(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, "auth/ldap/login/jane",
		transporttest.Status(http.MethodPost, "auth/ldap/login/jane", http.StatusBadRequest))

	_, err := auth.NewLDAP().Login(context.Background(), fake, map[string]interface{}{
		"username": "jane",
		"password": "s3cret",
	})
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}
