package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/wabulk/internal/gateway"
)

// IDSuffix is appended to addresses to form sandbox gateway ids
const IDSuffix = "@sandbox"

var simulatedErrors = []string{
	"recipient blocked the sender",
	"message rejected: spam suspected",
	"rate limited by server",
	"bridge temporarily disconnected",
}

// Config controls sandbox behaviour
type Config struct {
	// UnresolvablePrefixes lists address prefixes that resolve to no account
	UnresolvablePrefixes []string
	SimulateErrors       bool
	ErrorProbability     float64
	Latency              time.Duration
}

// Gateway implements gateway.Gateway by capturing sends in storage
type Gateway struct {
	storage *Storage
	cfg     Config
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGateway creates a sandbox gateway
func NewGateway(storage *Storage, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ErrorProbability <= 0 || cfg.ErrorProbability > 1 {
		cfg.ErrorProbability = 0.1
	}
	return &Gateway{
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// Health always succeeds
func (g *Gateway) Health(ctx context.Context) error {
	return nil
}

// ResolveExistence resolves every address except configured prefixes
func (g *Gateway) ResolveExistence(ctx context.Context, address string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}
	for _, prefix := range g.cfg.UnresolvablePrefixes {
		if prefix != "" && strings.HasPrefix(address, prefix) {
			return "", nil
		}
	}
	return address + IDSuffix, nil
}

// SendText captures a text message
func (g *Gateway) SendText(ctx context.Context, id, text string) error {
	return g.capture(ctx, &Message{
		To:   id,
		Kind: KindText,
		Text: text,
	})
}

// SendMedia captures an attachment with its caption. The payload itself is
// not stored.
func (g *Gateway) SendMedia(ctx context.Context, id string, media *gateway.Media, caption string) error {
	if media == nil {
		return &gateway.Error{Op: "send media", Message: "no media"}
	}
	return g.capture(ctx, &Message{
		To:       id,
		Kind:     KindMedia,
		Caption:  caption,
		Filename: media.Filename,
		MimeType: media.MimeType,
		Size:     len(media.Data),
	})
}

func (g *Gateway) capture(ctx context.Context, msg *Message) error {
	if err := g.wait(ctx); err != nil {
		return err
	}

	msg.ID = uuid.New().String()
	msg.CapturedAt = time.Now()

	if errMsg := g.simulatedError(); errMsg != "" {
		msg.SimulatedErr = errMsg
		if err := g.storage.Save(ctx, msg); err != nil {
			g.logger.Error("sandbox: failed to save message", "error", err)
		}
		g.logger.Info("sandbox: simulated failure", "to", msg.To, "kind", msg.Kind, "error", errMsg)
		return &gateway.Error{Op: "send " + msg.Kind, Message: errMsg}
	}

	if err := g.storage.Save(ctx, msg); err != nil {
		return fmt.Errorf("sandbox: failed to save message: %w", err)
	}

	g.logger.Debug("sandbox: message captured", "id", msg.ID, "to", msg.To, "kind", msg.Kind)
	return nil
}

func (g *Gateway) simulatedError() string {
	if !g.cfg.SimulateErrors {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rng.Float64() >= g.cfg.ErrorProbability {
		return ""
	}
	return simulatedErrors[g.rng.IntN(len(simulatedErrors))]
}

// wait applies the configured artificial latency
func (g *Gateway) wait(ctx context.Context) error {
	if g.cfg.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
