package vault

import (
	"context"
	"net/http"

	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/internal/logging"
	"github.com/systmms/vaultlease/internal/schema"
	"github.com/systmms/vaultlease/pkg/renewal"
	"github.com/systmms/vaultlease/pkg/transport"
)

// Login authenticates with opts. A nil opts replays the options of the
// last successful login, which is how lease renewals log in again.
//
// Options are validated before any request. The backend then runs under
// the retry policy, opts.Retry laid over the client default. A 4xx
// rejection fails at once with an *errors.AuthenticationError; running out
// of retries yields an *errors.RetriesExhaustedError. On success the token
// is installed and, when the lease is positive, a renewal is armed for the
// end of the lease.
//
// Only one login runs at a time. A Login called while another is in flight
// waits for it and returns its result.
func (c *Client) Login(ctx context.Context, opts *LoginOptions) error {
	if opts == nil {
		opts = c.cred.retained()
		if opts == nil {
			err := errors.Invalid("login options", "no previous login to renew")
			c.publishError(TopicLoginError, "login", err)
			return err
		}
	}

	if err := opts.validate(c.registry, c.retry.Policy()); err != nil {
		c.publishError(TopicLoginError, "login", err)
		return err
	}

	ch := c.logins.DoChan(loginKey, func() (interface{}, error) {
		return nil, c.login(ctx, opts)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

const loginKey = "login"

func (c *Client) login(ctx context.Context, opts *LoginOptions) error {
	c.scheduler.Cancel(renewal.AuthKey)
	epoch, session := c.cred.begin()
	ctx, cancel := c.bind(ctx, session)
	defer cancel()

	op := "login " + opts.Backend
	start := c.clock.Now()
	c.logger.Debug("Logging in with %s backend", opts.Backend)

	// validated by the caller
	backend, err := c.registry.Get(opts.Backend)
	if err != nil {
		return c.loginFailed(epoch, opts, err)
	}

	var raw map[string]interface{}
	err = c.retry.WithPolicy(opts.Retry).Run(ctx, op, func(ctx context.Context) error {
		var err error
		raw, err = backend.Login(ctx, c.transport, opts.Options)
		return err
	})
	if err == nil {
		err = schema.Validate(schema.AuthResponseData, raw)
	}
	if err != nil {
		return c.loginFailed(epoch, opts, err)
	}

	token, _ := raw["client_token"].(string)
	lease, _ := transport.Int(raw["lease_duration"])
	if !c.cred.install(epoch, token, lease, opts) {
		c.logger.Debug("Discarding %s login that finished after logout", opts.Backend)
		return context.Canceled
	}

	c.metrics.RecordLogin(opts.Backend, true, c.clock.Now().Sub(start).Seconds())
	c.metrics.SetAuthenticated(true)
	c.logger.Debug("Authenticated with %s backend, token %s, lease %ds", opts.Backend, logging.Secret(token), lease)
	c.publish(TopicAuthenticated, AuthenticatedEvent{Backend: opts.Backend, LeaseSeconds: lease})

	if lease > 0 && c.ctx.Err() == nil {
		c.scheduler.Arm(renewal.AuthKey, lease, c.relogin)
		c.logger.Debug("Login renewal armed in %ds", lease)
	}
	return nil
}

func (c *Client) loginFailed(epoch uint64, opts *LoginOptions, err error) error {
	if !c.cred.fail(epoch) {
		c.logger.Debug("Dropping %s login cancelled by logout: %v", opts.Backend, err)
		return err
	}
	c.metrics.RecordLogin(opts.Backend, false, 0)
	c.metrics.SetAuthenticated(false)
	c.logger.Warn("Login with %s backend failed: %v", opts.Backend, err)
	c.publishError(TopicLoginError, "login "+opts.Backend, err)
	c.publishError(TopicError, "login "+opts.Backend, err)
	return err
}

// relogin runs when the credential lease expires.
func (c *Client) relogin() {
	if err := c.Login(c.ctx, nil); err != nil {
		c.logger.Warn("Login renewal failed: %v", err)
	}
}

// Logout cancels every renewal and in-flight login or fetch, revokes the
// token when configured to, and drops the credential. Secrets already
// cached stay readable. A Login after Logout starts a new attempt rather
// than joining one cancelled here.
func (c *Client) Logout(ctx context.Context) error {
	c.scheduler.CancelAll()

	token := c.Token()
	c.cred.reset(c.ctx)
	c.logins.Forget(loginKey)
	c.metrics.SetAuthenticated(false)

	if c.config.RevokeOnLogout && token != "" {
		_, err := c.transport.Request(ctx, &transport.Request{
			Method: http.MethodPost,
			Path:   "auth/token/revoke-self",
			Token:  token,
		})
		if err != nil {
			c.logger.Warn("Failed to revoke token: %v", err)
		}
	}
	return nil
}
