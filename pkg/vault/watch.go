package vault

import (
	"context"
	"net/http"

	"github.com/systmms/vaultlease/pkg/renewal"
	"github.com/systmms/vaultlease/pkg/retry"
	"github.com/systmms/vaultlease/pkg/store"
	"github.com/systmms/vaultlease/pkg/transport"
	"golang.org/x/sync/errgroup"
)

// watched is a SecretRef resolved to its storage address.
type watched struct {
	ref  SecretRef
	addr store.Address
	// key is the address as it appears in topics and renewal keys.
	key string
}

func resolve(ref SecretRef) (watched, error) {
	if ref.Address == "" {
		return watched{ref: ref, addr: store.Literal(ref.SourcePath), key: ref.SourcePath}, nil
	}
	addr, err := store.ParseAddress(ref.Address)
	if err != nil {
		return watched{}, err
	}
	return watched{ref: ref, addr: addr, key: addr.String()}, nil
}

// WatchPaths watches each path under its own literal key with the default
// retry policy.
func (c *Client) WatchPaths(ctx context.Context, paths ...string) (map[string]interface{}, error) {
	refs := make([]SecretRef, 0, len(paths))
	for _, p := range paths {
		refs = append(refs, SecretRef{SourcePath: p})
	}
	return c.Watch(ctx, refs, nil)
}

// Watch fetches every ref concurrently, stores each result at its address
// and keeps it fresh: a secret whose response carries a positive
// lease_duration is fetched again when the lease ends.
//
// The whole list is validated before any request. Watch returns as soon
// as one fetch fails; the others keep running and still update the cache.
// On success the returned map holds each secret merged at its address.
// policy, when set, is laid over the client's default retry policy.
func (c *Client) Watch(ctx context.Context, refs []SecretRef, policy *retry.Policy) (map[string]interface{}, error) {
	targets, err := c.resolveAll(refs, policy)
	if err != nil {
		c.publishError(TopicError, "watch", err)
		return nil, err
	}

	type outcome struct {
		target watched
		value  interface{}
		err    error
	}

	ctrl := c.retry.WithPolicy(policy)
	outcomes := make(chan outcome, len(targets))

	var g errgroup.Group
	for _, target := range targets {
		target := target
		g.Go(func() error {
			value, err := c.fetch(ctx, target, ctrl)
			outcomes <- outcome{target: target, value: value, err: err}
			return err
		})
	}
	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	view := make(map[string]interface{})
	for o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
		store.MergeInto(view, o.target.addr, o.value)
	}
	return view, nil
}

func (c *Client) resolveAll(refs []SecretRef, policy *retry.Policy) ([]watched, error) {
	if _, err := DecodeSecretRefs(refs); err != nil {
		return nil, err
	}
	if policy != nil {
		if err := c.retry.Policy().Override(policy).Validate(); err != nil {
			return nil, err
		}
	}

	targets := make([]watched, 0, len(refs))
	for _, ref := range refs {
		w, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		targets = append(targets, w)
	}
	return targets, nil
}

// fetch reads one secret, stores it and arms its renewal. The returned
// value is what the secret contributes to a Watch result.
func (c *Client) fetch(ctx context.Context, target watched, ctrl *retry.Controller) (interface{}, error) {
	key := renewal.SecretKey(target.key)
	c.scheduler.Cancel(key)
	epoch, session := c.cred.current()
	ctx, cancel := c.bind(ctx, session)
	defer cancel()

	op := "read " + target.ref.SourcePath
	var resp *transport.Response
	err := ctrl.Run(ctx, op, func(ctx context.Context) error {
		r, err := c.transport.Request(ctx, &transport.Request{Method: http.MethodGet, Path: target.ref.SourcePath})
		if err != nil {
			c.publishError(TopicError, op, err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.metrics.RecordSecretFetch(false)
		c.logger.Warn("Failed to fetch secret %s: %v", target.ref.SourcePath, err)
		c.publishError(TopicError, op, err)
		return nil, err
	}
	c.metrics.RecordSecretFetch(true)

	data, ok := resp.Data["data"].(map[string]interface{})
	if !ok {
		data = map[string]interface{}{}
	}

	if c.cred.currentEpoch() != epoch || c.ctx.Err() != nil {
		// logged out or closed while the request was in flight
		return data, nil
	}

	c.store.Merge(target.addr, data)

	value := interface{}(data)
	if !target.addr.IsRoot() {
		value, _ = c.store.Get(target.addr)
	}

	if lease, _ := transport.Int(resp.Data["lease_duration"]); lease > 0 {
		c.scheduler.Arm(key, lease, func() { c.refresh(target, ctrl) })
		c.logger.Debug("Renewal of %s armed in %ds", target.key, lease)
	}

	c.publishSecret(target.key, value)
	return value, nil
}

// refresh runs when a secret lease expires.
func (c *Client) refresh(target watched, ctrl *retry.Controller) {
	if _, err := c.fetch(c.ctx, target, ctrl); err != nil {
		c.logger.Warn("Renewal of %s failed: %v", target.key, err)
	}
}
