// Package retry runs operations against the secret service under a retry
// policy, separating failures worth retrying from terminal ones.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/systmms/vaultlease/internal/errors"
)

// Class is the retry classification of an error.
type Class int

const (
	// Retryable errors are 5xx responses, network failures and anything
	// unclassified.
	Retryable Class = iota
	// Terminal errors are rejections (4xx) by the service.
	Terminal
	// Fatal errors stop the loop and are returned as-is: bad input and
	// cancellation.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Terminal:
		return "terminal"
	case Fatal:
		return "fatal"
	default:
		return "retryable"
	}
}

// Classify decides whether err is worth another attempt.
func Classify(err error) Class {
	switch {
	case errors.IsValidation(err),
		stderrors.Is(err, context.Canceled),
		stderrors.Is(err, context.DeadlineExceeded):
		return Fatal
	case errors.IsTerminal(err):
		return Terminal
	default:
		return Retryable
	}
}

// NotifyFunc observes every failed attempt that is about to be retried.
type NotifyFunc func(op string, err error, attempt int)

// Controller executes operations under a Policy.
type Controller struct {
	policy Policy
	clock  clock.Clock
	notify NotifyFunc
}

// New creates a controller. A nil clock uses the wall clock.
func New(policy Policy, clk clock.Clock) *Controller {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Controller{policy: policy, clock: clk}
}

// Policy returns the controller's policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// OnRetry installs a hook called for each failed retryable attempt.
func (c *Controller) OnRetry(fn NotifyFunc) {
	c.notify = fn
}

// WithPolicy returns a controller sharing clock and hook whose policy is
// override laid over this controller's policy.
func (c *Controller) WithPolicy(override *Policy) *Controller {
	return &Controller{
		policy: c.policy.Override(override),
		clock:  c.clock,
		notify: c.notify,
	}
}

// Run calls fn until it succeeds or the policy gives up.
//
// A 4xx failure aborts at once as an *errors.AuthenticationError. Exhausting
// the policy yields an *errors.RetriesExhaustedError carrying the last
// failure. Cancelling ctx stops a pending backoff and fn is not called again.
func (c *Controller) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := c.policy.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	attempts := 0
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			attempts++
			return fn(ctx)
		},
		IsFatalError: func(err error) bool {
			return Classify(err) != Retryable
		},
		NotifyFunc: func(err error, attempt int) {
			if c.notify != nil {
				c.notify(op, err, attempt)
			}
		},
		Attempts:    c.policy.Attempts(),
		Delay:       c.policy.MinDelay,
		MaxDelay:    c.policy.MaxDelay,
		BackoffFunc: c.policy.Backoff(),
		Clock:       c.clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}

	switch {
	case retry.IsRetryStopped(err):
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		return fmt.Errorf("%s: %w", op, cause)
	case retry.IsAttemptsExceeded(err):
		return &errors.RetriesExhaustedError{Op: op, Attempts: attempts, Err: retry.LastError(err)}
	}

	switch Classify(err) {
	case Terminal:
		var authErr *errors.AuthenticationError
		if stderrors.As(err, &authErr) {
			return authErr
		}
		return &errors.AuthenticationError{Op: op, StatusCode: errors.StatusCode(err), Err: err}
	case Fatal:
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return err
	}
	return err
}
