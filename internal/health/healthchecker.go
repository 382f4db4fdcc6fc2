// Package health aggregates component-level readiness into a single
// service health flag, used by the worker's /health endpoint and by the
// coordinator's pre-flight dependency checks.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Checker is implemented by component-level checkers (database, worker, model).
type Checker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// Pinger can be implemented by a component to expose a specialized health
// probe. HealthPing must return nil when the component is healthy.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

// ServiceChecker aggregates dependency checkers into one healthy/unhealthy flag.
type ServiceChecker struct {
	healthy atomic.Int32
	deps    []Checker
	log     zerolog.Logger
}

// NewServiceChecker builds an aggregator over deps; starts unhealthy until
// the first evaluation cycle completes.
func NewServiceChecker(log zerolog.Logger, deps ...Checker) *ServiceChecker {
	h := &ServiceChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns the cached aggregate health.
func (h *ServiceChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Start periodically evaluates dependency health and updates the aggregate flag.
func (h *ServiceChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		all := true
		for _, c := range h.deps {
			if !c.IsHealthy() {
				all = false
			}
		}
		if all {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

// PingChecker adapts a Pinger into a Checker with a cached result, polled on
// an interval so callers never block a request on a live probe.
type PingChecker struct {
	name    string
	pinger  Pinger
	timeout time.Duration
	log     zerolog.Logger
	healthy atomic.Int32
}

// NewPingChecker builds a Checker named name around pinger.
func NewPingChecker(name string, pinger Pinger, log zerolog.Logger, timeout time.Duration) *PingChecker {
	c := &PingChecker{name: name, pinger: pinger, timeout: timeout, log: log}
	c.healthy.Store(0)
	return c
}

func (c *PingChecker) Name() string    { return c.name }
func (c *PingChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Probe runs HealthPing once, synchronously, updating the cached result and
// returning its error directly. Used for one-shot pre-flight checks (a CLI
// run that exits right after, rather than a long-lived server loop).
func (c *PingChecker) Probe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.pinger.HealthPing(pctx); err != nil {
		c.healthy.Store(0)
		c.log.Warn().Err(err).Str("checker", c.name).Msg("health probe failed")
		return err
	}
	c.healthy.Store(1)
	return nil
}

// Start polls HealthPing on an interval until ctx is cancelled.
func (c *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}
