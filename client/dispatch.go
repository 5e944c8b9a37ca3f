package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"xdao.co/ipfs-simple/storage"
)

// transport is the backend one call is dispatched to. It is sealed: the only
// implementations are *remoteTransport and *embeddedTransport.
//
// Implementations may return plain errors; the dispatcher maps them onto the
// storage.Kind taxonomy. Errors already of type *storage.Error pass through.
type transport interface {
	sealed()

	pinAdd(ctx context.Context, id string) ([]string, error)
	pinRm(ctx context.Context, id string) error
	cat(ctx context.Context, id string) ([]byte, error)
	add(ctx context.Context, data []byte, opts storage.AddOptions) (string, error)
	isPinned(ctx context.Context, id string) (bool, error)
	listPinned(ctx context.Context) ([]string, error)
	objectStat(ctx context.Context, id string) (storage.ObjectStat, error)
	swarmConnect(ctx context.Context, addr string) ([]string, error)
	id(ctx context.Context) (map[string]any, error)
}

// CallOption adjusts a single operation.
type CallOption func(*callConfig)

type callConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the client's default budget for one call.
// Non-positive values are ignored.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func (c *Client) callConfig(opts []CallOption) callConfig {
	cfg := callConfig{timeout: c.timeout}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	return cfg
}

func (c *Client) transportFor(s snapshot) transport {
	switch s.mode {
	case ModeEmbedded:
		return &embeddedTransport{node: s.node}
	case ModeRemote:
		return &remoteTransport{base: s.baseURL, http: c.http}
	default:
		return &remoteTransport{base: DefaultAPI, http: c.http}
	}
}

// dispatch waits for the backend to settle, then runs fn against it under the
// call's budget. fn runs in its own goroutine; when the budget fires first
// dispatch returns a Timeout error and fn observes a cancelled context.
func (c *Client) dispatch(ctx context.Context, op, ref string, opts []CallOption, fn func(context.Context, transport) error) error {
	cfg := c.callConfig(opts)

	start := time.Now()
	s, err := c.h.resolve(ctx)
	if err != nil {
		// No budget is armed yet; only the caller's deadline can have fired.
		return c.normalize(ctx, ctx, op, ref, callerBudget(ctx, start), err)
	}

	budget := cfg.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < budget {
			budget = left
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	c.log.Debug("dispatch",
		zap.String("op", op),
		zap.String("ref", ref),
		zap.Stringer("mode", s.mode),
		zap.Duration("budget", budget),
	)

	t := c.transportFor(s)
	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx, t)
	}()

	return c.normalize(ctx, callCtx, op, ref, budget, await(callCtx, done))
}

// await returns the call's result, or the context error if ctx ends first.
// A result that is already available wins over an expired context.
func await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		select {
		case err := <-done:
			return err
		default:
			return ctx.Err()
		}
	}
}

// callerBudget is the time the caller's own deadline allowed from start, or
// zero when ctx has no deadline.
func callerBudget(ctx context.Context, start time.Time) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return dl.Sub(start)
}

// normalize maps err onto exactly one storage.Kind.
func (c *Client) normalize(parent, callCtx context.Context, op, ref string, budget time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var se *storage.Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return storage.WrapError(storage.KindCanceled, op, ref, parent.Err())
	case callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		c.log.Debug("call timed out", zap.String("op", op), zap.String("ref", ref), zap.Duration("budget", budget))
		return storage.TimeoutError(op, ref, budget)
	case errors.Is(err, context.DeadlineExceeded):
		return storage.TimeoutError(op, ref, budget)
	case errors.Is(err, context.Canceled):
		return storage.WrapError(storage.KindCanceled, op, ref, err)
	case errors.Is(err, storage.ErrNotFound):
		return storage.WrapError(storage.KindNotFound, op, ref, err)
	default:
		return storage.WrapError(storage.KindBackend, op, ref, err)
	}
}
