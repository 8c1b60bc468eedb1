package vault

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
	"github.com/systmms/vaultlease/internal/logging"
	"github.com/systmms/vaultlease/internal/metrics"
	"github.com/systmms/vaultlease/pkg/auth"
	"github.com/systmms/vaultlease/pkg/renewal"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/store"
	"github.com/systmms/vaultlease/pkg/transport"
	"golang.org/x/sync/singleflight"
)

// Client manages one credential and the secrets fetched with it.
type Client struct {
	config    Config
	transport transport.Transport
	registry  *auth.Registry
	retry     *retry.Controller
	scheduler *renewal.Scheduler
	store     *store.Store
	hub       *pubsub.SimpleHub
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.Recorder

	cred   credential
	logins singleflight.Group

	// ctx lives as long as the client; renewals run on it.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// tokenSourcer is implemented by transports that attach the client token
// to outgoing requests.
type tokenSourcer interface {
	SetTokenSource(transport.TokenSource)
}

// New creates a client. No request is made until Login or Watch.
func New(cfg Config) (*Client, error) {
	policy := retry.DefaultPolicy()
	if cfg.Retry != nil {
		policy = policy.Override(cfg.Retry)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	registry := cfg.Registry
	if registry == nil {
		registry = auth.DefaultRegistry()
	}

	t := cfg.Transport
	if t == nil {
		v, err := transport.NewVault(transport.Config{
			Address:   cfg.Address,
			Namespace: cfg.Namespace,
			Timeout:   cfg.Timeout,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		t = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:    cfg,
		transport: t,
		registry:  registry,
		retry:     retry.New(policy, clk),
		scheduler: renewal.New(clk),
		store:     store.New(),
		hub:       pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{}),
		clock:     clk,
		logger:    logger,
		metrics:   metrics.NewRecorder(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.cred.open(ctx)

	c.retry.OnRetry(func(op string, err error, attempt int) {
		c.logger.Debug("%s failed (attempt %d), retrying: %v", op, attempt, err)
		c.metrics.RecordRetry(strings.SplitN(op, " ", 2)[0])
	})

	if ts, ok := t.(tokenSourcer); ok {
		ts.SetTokenSource(c.cred.reveal)
	}
	return c, nil
}

// Token returns the current token, or "" when unauthenticated.
func (c *Client) Token() string {
	token, err := c.cred.reveal()
	if err != nil {
		return ""
	}
	return token
}

// Status returns the credential state.
func (c *Client) Status() Status {
	status, _, _ := c.cred.snapshot()
	return status
}

// Lease returns the lease of the current token in seconds.
func (c *Client) Lease() int {
	_, lease, _ := c.cred.snapshot()
	return lease
}

// Pending returns the keys of the armed renewal timers.
func (c *Client) Pending() []string {
	return c.scheduler.Pending()
}

// Secret returns a private copy of the stored value at address. "" and "."
// return the whole store. An address naming a literal top-level key, such
// as a source path stored without an explicit address, is matched first;
// otherwise the address is read as a dotted path.
func (c *Client) Secret(address string) (interface{}, bool) {
	if address == "" || address == store.Root {
		return c.store.Snapshot(), true
	}
	if v, ok := c.store.Get(store.Literal(address)); ok {
		return v, true
	}
	addr, err := store.ParseAddress(address)
	if err != nil {
		return nil, false
	}
	return c.store.Get(addr)
}

// Close stops every renewal and in-flight retry, and drops the credential
// and the cache. The client cannot be used afterwards.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.scheduler.Stop()
		c.cred.reset(c.ctx)
		c.store.Reset()
		c.metrics.SetAuthenticated(false)
	})
	return nil
}

// bind returns a context cancelled when either ctx or session is done.
// Sessions end on logout and on Close.
func (c *Client) bind(ctx, session context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if session.Err() != nil {
		cancel()
		return ctx, cancel
	}
	stop := context.AfterFunc(session, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
