package vault_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/transport"
	"github.com/systmms/vaultlease/pkg/transport/transporttest"
	"github.com/systmms/vaultlease/pkg/vault"
)

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, userpassPath, loginOK("s.token", 3600))
	client := newClient(t, fake, nil)
	authenticated := record(client, vault.TopicAuthenticated)

	assert.Equal(t, vault.Unauthenticated, client.Status())
	require.NoError(t, client.Login(context.Background(), userpassLogin()))

	assert.Equal(t, vault.Authenticated, client.Status())
	assert.Equal(t, "s.token", client.Token())
	assert.Equal(t, 3600, client.Lease())
	assert.Equal(t, []string{"auth"}, client.Pending())

	require.Eventually(t, func() bool { return authenticated.len() == 1 }, longWait, time.Millisecond)
	assert.Equal(t, vault.AuthenticatedEvent{Backend: "userpass", LeaseSeconds: 3600}, authenticated.all()[0])

	req := fake.Requests()[0]
	assert.True(t, req.Anonymous)
	assert.Empty(t, req.Token)
}

func TestLoginTokenAttachedToLaterRequests(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().
		On(http.MethodPost, userpassPath, loginOK("s.token", 0)).
		On(http.MethodGet, "secret/foo", secretOK(0, map[string]interface{}{"foo": "bar"}))
	client := newClient(t, fake, nil)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	_, err := client.WatchPaths(context.Background(), "/secret/foo")
	require.NoError(t, err)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "s.token", reqs[1].Token)
}

func TestLoginZeroLeaseArmsNothing(t *testing.T) {
	t.Parallel()

	clk := testclock.NewClock(time.Now())
	fake := transporttest.New().On(http.MethodPost, userpassPath, loginOK("s.token", 0))
	client := newClient(t, fake, clk)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	assert.Empty(t, client.Pending())

	clk.Advance(24 * time.Hour)
	time.Sleep(shortWait)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, userpassPath))
}

func TestLoginRenewsAtLeaseEnd(t *testing.T) {
	t.Parallel()

	clk := testclock.NewClock(time.Now())
	fake := transporttest.New().On(http.MethodPost, userpassPath, loginOK("s.first", 10), loginOK("s.second", 10))
	client := newClient(t, fake, clk)
	authenticated := record(client, vault.TopicAuthenticated)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))

	require.NoError(t, clk.WaitAdvance(9*time.Second, longWait, 1))
	time.Sleep(shortWait)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, userpassPath), "renewed before the lease ended")

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return fake.Calls(http.MethodPost, userpassPath) == 2 }, longWait, time.Millisecond)
	require.Eventually(t, func() bool { return client.Token() == "s.second" }, longWait, time.Millisecond)
	require.Eventually(t, func() bool { return authenticated.len() == 2 }, longWait, time.Millisecond)

	// the renewed token arms the next renewal
	require.Eventually(t, func() bool { return len(client.Pending()) == 1 }, longWait, time.Millisecond)
	assert.Equal(t, vault.Authenticated, client.Status())
}

func TestLoginRenewalFailure(t *testing.T) {
	t.Parallel()

	clk := testclock.NewClock(time.Now())
	fake := transporttest.New().On(http.MethodPost, userpassPath,
		loginOK("s.first", 5),
		transporttest.Status(http.MethodPost, userpassPath, http.StatusForbidden, "permission denied"))
	client := newClient(t, fake, clk)
	loginErrors := record(client, vault.TopicLoginError)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	require.NoError(t, clk.WaitAdvance(5*time.Second, longWait, 1))

	require.Eventually(t, func() bool { return loginErrors.len() == 1 }, longWait, time.Millisecond)
	assert.Equal(t, vault.Unauthenticated, client.Status())
	assert.Empty(t, client.Token())
	assert.Empty(t, client.Pending())
	assert.Equal(t, 2, fake.Calls(http.MethodPost, userpassPath))

	event, ok := loginErrors.all()[0].(vault.ErrorEvent)
	require.True(t, ok)
	assert.True(t, errors.IsAuthentication(event.Err))
}

func TestLoginTerminalFailureSingleAttempt(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, userpassPath,
		transporttest.Status(http.MethodPost, userpassPath, http.StatusBadRequest, "invalid username or password"))
	client := newClient(t, fake, nil)
	loginErrors := record(client, vault.TopicLoginError)
	allErrors := record(client, vault.TopicError)

	err := client.Login(context.Background(), userpassLogin())

	var authErr *errors.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, userpassPath))
	assert.Equal(t, vault.Unauthenticated, client.Status())
	assert.Empty(t, client.Pending())
	require.Eventually(t, func() bool { return loginErrors.len() == 1 }, longWait, time.Millisecond)
	require.Eventually(t, func() bool { return allErrors.len() == 1 }, longWait, time.Millisecond)
}

func TestLoginTransientFailuresThenSuccess(t *testing.T) {
	t.Parallel()

	for _, failures := range []int{1, 2, 3} {
		failures := failures
		t.Run(fmt.Sprintf("%d failures", failures), func(t *testing.T) {
			t.Parallel()

			results := make([]transporttest.Result, 0, failures+1)
			for i := 0; i < failures; i++ {
				results = append(results, transporttest.Status(http.MethodPost, userpassPath, http.StatusServiceUnavailable))
			}
			results = append(results, loginOK("s.token", 0))

			fake := transporttest.New().On(http.MethodPost, userpassPath, results...)
			client := newClient(t, fake, nil)

			opts := userpassLogin()
			opts.Retry = fastRetry(failures)
			require.NoError(t, client.Login(context.Background(), opts))
			assert.Equal(t, failures+1, fake.Calls(http.MethodPost, userpassPath))
			assert.Equal(t, vault.Authenticated, client.Status())
		})
	}
}

func TestLoginRetriesExhausted(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, userpassPath,
		transporttest.Status(http.MethodPost, userpassPath, http.StatusServiceUnavailable, "Vault is sealed"))
	client := newClient(t, fake, nil)

	opts := userpassLogin()
	opts.Retry = fastRetry(2)
	err := client.Login(context.Background(), opts)

	assert.True(t, errors.IsRetriesExhausted(err))
	assert.Contains(t, err.Error(), "Vault is sealed")
	assert.Equal(t, 3, fake.Calls(http.MethodPost, userpassPath))
	assert.Equal(t, vault.Unauthenticated, client.Status())
}

func TestLoginValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts *vault.LoginOptions
	}{
		{name: "no previous login", opts: nil},
		{name: "missing backend", opts: &vault.LoginOptions{Options: map[string]interface{}{}}},
		{name: "missing options", opts: &vault.LoginOptions{Backend: "userpass"}},
		{name: "unknown backend", opts: &vault.LoginOptions{Backend: "radius", Options: map[string]interface{}{}}},
		{name: "bad retry policy", opts: &vault.LoginOptions{
			Backend: "userpass",
			Options: map[string]interface{}{"username": "app", "password": "s3cret"},
			Retry:   &retry.Policy{MaxRetries: -1},
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := transporttest.New()
			client := newClient(t, fake, nil)
			loginErrors := record(client, vault.TopicLoginError)

			err := client.Login(context.Background(), tt.opts)
			assert.True(t, errors.IsValidation(err), "got %v", err)
			assert.Equal(t, 0, fake.Total())
			require.Eventually(t, func() bool { return loginErrors.len() == 1 }, longWait, time.Millisecond)
		})
	}
}

func TestLoginBackendOptionsValidatedBeforeRequest(t *testing.T) {
	t.Parallel()

	fake := transporttest.New()
	client := newClient(t, fake, nil)

	err := client.Login(context.Background(), &vault.LoginOptions{
		Backend: "userpass",
		Options: map[string]interface{}{"username": "app"},
	})
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, fake.Total())
}

func TestLoginMalformedResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth map[string]interface{}
	}{
		{name: "missing token", auth: map[string]interface{}{"lease_duration": 10}},
		{name: "empty token", auth: map[string]interface{}{"client_token": "", "lease_duration": 10}},
		{name: "negative lease", auth: map[string]interface{}{"client_token": "s.token", "lease_duration": -1}},
		{name: "no auth block", auth: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := transporttest.New().On(http.MethodPost, userpassPath, transporttest.OK(map[string]interface{}{"auth": tt.auth}))
			client := newClient(t, fake, nil)

			err := client.Login(context.Background(), userpassLogin())
			assert.True(t, errors.IsValidation(err), "got %v", err)
			assert.Equal(t, 1, fake.Calls(http.MethodPost, userpassPath))
			assert.Equal(t, vault.Unauthenticated, client.Status())
			assert.Empty(t, client.Token())
			assert.Empty(t, client.Pending())
		})
	}
}

func TestLoginReplaysRetainedOptions(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, userpassPath, loginOK("s.first", 0), loginOK("s.second", 0))
	client := newClient(t, fake, nil)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	require.NoError(t, client.Login(context.Background(), nil))

	assert.Equal(t, "s.second", client.Token())
	assert.Equal(t, 2, fake.Calls(http.MethodPost, userpassPath))
}

func TestConcurrentLoginsShareOneAttempt(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	fake := transporttest.New().Handle(http.MethodPost, userpassPath, func(*transport.Request) transporttest.Result {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
		return loginOK("s.token", 0)
	})
	client := newClient(t, fake, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = client.Login(context.Background(), userpassLogin())
	}()
	<-entered
	assert.Equal(t, vault.Authenticating, client.Status())

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = client.Login(context.Background(), userpassLogin())
	}()
	time.Sleep(shortWait)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "s.token", client.Token())
}

func TestLoginRenewalKeepsTokenUntilReplaced(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32

	clk := testclock.NewClock(time.Now())
	fake := transporttest.New().Handle(http.MethodPost, userpassPath, func(*transport.Request) transporttest.Result {
		if atomic.AddInt32(&calls, 1) == 1 {
			return loginOK("s.first", 5)
		}
		close(entered)
		<-release
		return loginOK("s.second", 0)
	})
	client := newClient(t, fake, clk)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	require.NoError(t, clk.WaitAdvance(5*time.Second, longWait, 1))
	<-entered

	assert.Equal(t, vault.Authenticated, client.Status())
	assert.Equal(t, "s.first", client.Token())

	close(release)
	require.Eventually(t, func() bool { return client.Token() == "s.second" }, longWait, time.Millisecond)
	assert.Equal(t, vault.Authenticated, client.Status())
}

func TestLogoutCancelsLoginBackoff(t *testing.T) {
	t.Parallel()

	var healthy int32
	clk := testclock.NewClock(time.Now())
	fake := transporttest.New().Handle(http.MethodPost, userpassPath, func(*transport.Request) transporttest.Result {
		if atomic.LoadInt32(&healthy) == 1 {
			return loginOK("s.token", 0)
		}
		return transporttest.Status(http.MethodPost, userpassPath, http.StatusServiceUnavailable, "Vault is sealed")
	})
	client := newClient(t, fake, clk)

	opts := userpassLogin()
	opts.Retry = &retry.Policy{MaxRetries: 5, MinDelay: time.Second, MaxDelay: time.Second, Factor: 1}

	done := make(chan error, 1)
	go func() {
		done <- client.Login(context.Background(), opts)
	}()
	require.Eventually(t, func() bool { return fake.Calls(http.MethodPost, userpassPath) == 1 }, longWait, time.Millisecond)

	require.NoError(t, client.Logout(context.Background()))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(longWait):
		t.Fatal("login still running after logout")
	}

	clk.Advance(5 * time.Second)
	time.Sleep(shortWait)
	assert.Equal(t, 1, fake.Calls(http.MethodPost, userpassPath))
	assert.Equal(t, vault.Unauthenticated, client.Status())

	// a fresh login does not join the cancelled one
	atomic.StoreInt32(&healthy, 1)
	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	assert.Equal(t, "s.token", client.Token())
	assert.Equal(t, 2, fake.Calls(http.MethodPost, userpassPath))
}

func TestLoginFinishingAfterLogoutIsDiscarded(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	fake := transporttest.New().Handle(http.MethodPost, userpassPath, func(*transport.Request) transporttest.Result {
		close(entered)
		<-release
		return loginOK("s.token", 60)
	})
	client := newClient(t, fake, nil)

	done := make(chan error, 1)
	go func() {
		done <- client.Login(context.Background(), userpassLogin())
	}()

	<-entered
	assert.Equal(t, vault.Authenticating, client.Status())
	require.NoError(t, client.Logout(context.Background()))
	assert.Equal(t, vault.Unauthenticated, client.Status())

	close(release)
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, vault.Unauthenticated, client.Status())
	assert.Empty(t, client.Token())
	assert.Empty(t, client.Pending())
}

func TestLogout(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().
		On(http.MethodPost, userpassPath, loginOK("s.token", 3600)).
		On(http.MethodPost, "auth/token/revoke-self", transporttest.Result{Response: &transport.Response{StatusCode: http.StatusNoContent}})

	client, err := vault.New(vault.Config{Transport: fake, Retry: fastRetry(1), RevokeOnLogout: true})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	require.NoError(t, client.Logout(context.Background()))

	assert.Equal(t, vault.Unauthenticated, client.Status())
	assert.Empty(t, client.Token())
	assert.Empty(t, client.Pending())

	require.Equal(t, 1, fake.Calls(http.MethodPost, "auth/token/revoke-self"))
	revoke := fake.Requests()[1]
	assert.Equal(t, "s.token", revoke.Token)

	// nothing left to replay
	assert.True(t, errors.IsValidation(client.Login(context.Background(), nil)))
}

func TestLogoutWithoutRevoke(t *testing.T) {
	t.Parallel()

	fake := transporttest.New().On(http.MethodPost, userpassPath, loginOK("s.token", 3600))
	client := newClient(t, fake, nil)

	require.NoError(t, client.Login(context.Background(), userpassLogin()))
	require.NoError(t, client.Logout(context.Background()))

	assert.Equal(t, 1, fake.Total())
	assert.Equal(t, vault.Unauthenticated, client.Status())
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unauthenticated", vault.Unauthenticated.String())
	assert.Equal(t, "authenticating", vault.Authenticating.String())
	assert.Equal(t, "authenticated", vault.Authenticated.String())
}
