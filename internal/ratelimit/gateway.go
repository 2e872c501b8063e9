package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/metrics"
)

// Gateway wraps a gateway and refuses sends over quota
type Gateway struct {
	next    gateway.Gateway
	limiter *Limiter
	logger  *slog.Logger
}

// NewGateway wraps next with limiter
func NewGateway(next gateway.Gateway, limiter *Limiter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{next: next, limiter: limiter, logger: logger}
}

// Health delegates to the wrapped gateway
func (g *Gateway) Health(ctx context.Context) error {
	return gateway.Check(ctx, g.next)
}

// ResolveExistence is not subject to the quota
func (g *Gateway) ResolveExistence(ctx context.Context, address string) (string, error) {
	return g.next.ResolveExistence(ctx, address)
}

// SendText sends if the quota allows it
func (g *Gateway) SendText(ctx context.Context, id, text string) error {
	if err := g.allow(ctx, id); err != nil {
		return err
	}
	return g.next.SendText(ctx, id, text)
}

// SendMedia sends if the quota allows it
func (g *Gateway) SendMedia(ctx context.Context, id string, media *gateway.Media, caption string) error {
	if err := g.allow(ctx, id); err != nil {
		return err
	}
	return g.next.SendMedia(ctx, id, media, caption)
}

func (g *Gateway) allow(ctx context.Context, id string) error {
	res, err := g.limiter.Allow(ctx, id)
	if err != nil {
		return fmt.Errorf("quota check: %w", err)
	}
	if res.Allowed {
		return nil
	}

	metrics.IncRateLimitExceeded(string(res.Window))
	g.logger.Warn("send denied by quota",
		"to", id,
		"scope", res.DeniedBy,
		"window", res.Window,
		"retry_after", res.RetryAfter,
	)
	return fmt.Errorf("%w: %s %s limit reached, retry after %s",
		gateway.ErrQuotaExceeded, res.DeniedBy, res.Window, res.RetryAfter.Round(time.Second))
}
