package vault

import (
	"context"
	"sync"

	"github.com/systmms/vaultlease/internal/secure"
)

// Status is the state of the client credential.
type Status int

const (
	// Unauthenticated means no usable token is held.
	Unauthenticated Status = iota
	// Authenticating means a login is in flight.
	Authenticating
	// Authenticated means a token from a validated login response is held.
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// credential is the token and the options that produced it. epoch changes
// on every logout so work started before the logout can tell its result is
// stale. session is cancelled on the same logout and stops that work.
type credential struct {
	mu      sync.RWMutex
	token   *secure.Token
	lease   int
	status  Status
	backend string
	login   *LoginOptions
	epoch   uint64
	session context.Context
	end     context.CancelFunc
}

// open starts a session under parent.
func (c *credential) open(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openLocked(parent)
}

func (c *credential) openLocked(parent context.Context) {
	if c.end != nil {
		c.end()
	}
	c.session, c.end = context.WithCancel(parent)
}

func (c *credential) snapshot() (Status, int, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.lease, c.backend
}

func (c *credential) reveal() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.Reveal()
}

func (c *credential) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// current returns the epoch and the session work started now runs under.
func (c *credential) current() (uint64, context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch, c.session
}

func (c *credential) retained() *LoginOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.login
}

// begin marks a login as started. A held token stays authenticated until
// the login installs its replacement or fails.
func (c *credential) begin() (uint64, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token.Empty() {
		c.status = Authenticating
	}
	return c.epoch, c.session
}

// install stores a new token unless a logout happened since epoch.
func (c *credential) install(epoch uint64, token string, lease int, opts *LoginOptions) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.token.Destroy()
	c.token = secure.NewToken(token)
	c.lease = lease
	c.status = Authenticated
	c.backend = opts.Backend
	c.login = opts
	return true
}

// fail drops the token after an unsuccessful login unless a logout happened
// since epoch. Retained options stay so a later Login(nil) can try again.
func (c *credential) fail(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.dropLocked()
	return true
}

// reset drops everything, cancels the session and starts a new epoch with
// a fresh session under parent.
func (c *credential) reset(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()
	c.login = nil
	c.epoch++
	c.openLocked(parent)
}

func (c *credential) dropLocked() {
	c.token.Destroy()
	c.token = nil
	c.lease = 0
	c.status = Unauthenticated
	c.backend = ""
}
