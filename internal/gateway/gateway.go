// Package gateway defines the messaging gateway capability used by campaigns
// and an HTTP client for a WhatsApp bridge implementing it.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the gateway is not connected
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrQuotaExceeded is returned when a send is denied by the send quota
	ErrQuotaExceeded = errors.New("send quota exceeded")
)

// Gateway is the messaging capability a campaign depends on
type Gateway interface {
	// ResolveExistence returns the gateway id of the account registered for
	// address, or "" when there is none.
	ResolveExistence(ctx context.Context, address string) (string, error)

	// SendText sends a text message to a resolved id
	SendText(ctx context.Context, id, text string) error

	// SendMedia sends an attachment with an optional caption to a resolved id
	SendMedia(ctx context.Context, id string, media *Media, caption string) error
}

// HealthChecker is implemented by gateways that can report connectivity
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Media is an attachment sent along with a campaign message
type Media struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
	// Path is where the upload was stored, if it was stored
	Path string `json:"path,omitempty"`
}

// Error is a failed gateway operation
type Error struct {
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}

// Check reports the health of g. Gateways without a health endpoint are
// assumed to be available.
func Check(ctx context.Context, g Gateway) error {
	if g == nil {
		return ErrUnavailable
	}
	if hc, ok := g.(HealthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}
