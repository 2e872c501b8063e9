// Package precheck resolves campaign recipients against the gateway before
// anything is sent.
package precheck

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/metrics"
	"github.com/foxzi/wabulk/internal/recipient"
)

// DefaultConcurrency caps the number of lookups in flight
const DefaultConcurrency = 8

// Config holds prechecker settings
type Config struct {
	Concurrency   int
	LookupTimeout time.Duration
}

// Prechecker resolves recipient addresses with a bounded worker pool
type Prechecker struct {
	gw            gateway.Gateway
	concurrency   int
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// New creates a prechecker. A nil gateway is allowed: every recipient then
// resolves as unreachable.
func New(gw gateway.Gateway, cfg Config, logger *slog.Logger) *Prechecker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Prechecker{
		gw:            gw,
		concurrency:   concurrency,
		lookupTimeout: cfg.LookupTimeout,
		logger:        logger,
	}
}

// Resolve returns one Resolved per input recipient, in input order. Each
// distinct address is looked up once. A failed lookup marks only that address
// unreachable.
func (p *Prechecker) Resolve(ctx context.Context, recipients []recipient.Recipient) []recipient.Resolved {
	ids := p.resolveUnique(ctx, uniqueAddresses(recipients))

	resolved := make([]recipient.Resolved, len(recipients))
	for i, r := range recipients {
		resolved[i] = recipient.Resolved{Recipient: r, ResolvedID: ids[r.Address]}
	}
	return resolved
}

func (p *Prechecker) resolveUnique(ctx context.Context, addresses []string) map[string]string {
	ids := make(map[string]string, len(addresses))
	if p.gw == nil || len(addresses) == 0 {
		if p.gw == nil {
			p.logger.Warn("gateway unavailable, marking all recipients unresolved", "addresses", len(addresses))
		}
		return ids
	}

	start := time.Now()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(min(p.concurrency, len(addresses)))

	for _, addr := range addresses {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			id, err := p.lookup(ctx, addr)
			switch {
			case err != nil:
				metrics.IncPrecheckLookup("error")
				p.logger.Debug("lookup failed", "address", addr, "error", err)
				return nil
			case id == "":
				metrics.IncPrecheckLookup("not_found")
				return nil
			}
			metrics.IncPrecheckLookup("found")

			mu.Lock()
			ids[addr] = id
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("precheck finished",
		"addresses", len(addresses),
		"resolved", len(ids),
		"duration", time.Since(start),
	)
	return ids
}

// lookup isolates a single gateway call: its own timeout, and a panic in the
// gateway is reported as an error.
func (p *Prechecker) lookup(ctx context.Context, addr string) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in lookup: %v", r)
		}
	}()

	if p.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.lookupTimeout)
		defer cancel()
	}
	return p.gw.ResolveExistence(ctx, addr)
}

func uniqueAddresses(recipients []recipient.Recipient) []string {
	seen := make(map[string]bool, len(recipients))
	var unique []string
	for _, r := range recipients {
		if seen[r.Address] {
			continue
		}
		seen[r.Address] = true
		unique = append(unique, r.Address)
	}
	return unique
}
