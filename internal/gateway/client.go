package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures the bridge client
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to a WhatsApp bridge over its JSON API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new bridge client
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// request performs an HTTP request to the bridge API
func (c *Client) request(ctx context.Context, op, method, path string, body any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Op: op, Message: err.Error()}
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return &Error{Op: op, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return &Error{Op: op, Status: resp.StatusCode, Message: errResp.Error}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Health checks that the bridge is up and its session is connected
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.request(ctx, "health", http.MethodGet, "/health", nil, &resp); err != nil {
		return err
	}
	if !resp.Connected {
		return &Error{Op: "health", Message: "bridge session is not connected"}
	}
	return nil
}

// ResolveExistence looks up the account registered for a phone number
func (c *Client) ResolveExistence(ctx context.Context, address string) (string, error) {
	var resp CheckResponse
	if err := c.request(ctx, "check", http.MethodPost, "/api/v1/contacts/check", &CheckRequest{Phone: address}, &resp); err != nil {
		return "", err
	}
	if !resp.Exists {
		return "", nil
	}
	return resp.ID, nil
}

// SendText sends a text message
func (c *Client) SendText(ctx context.Context, id, text string) error {
	return c.request(ctx, "send_text", http.MethodPost, "/api/v1/messages/text", &TextRequest{To: id, Text: text}, &SendResponse{})
}

// SendMedia sends an attachment with a caption
func (c *Client) SendMedia(ctx context.Context, id string, media *Media, caption string) error {
	if media == nil {
		return &Error{Op: "send_media", Message: "no media"}
	}
	req := &MediaRequest{
		To:       id,
		Caption:  caption,
		Filename: media.Filename,
		MimeType: media.MimeType,
		Data:     base64.StdEncoding.EncodeToString(media.Data),
	}
	return c.request(ctx, "send_media", http.MethodPost, "/api/v1/messages/media", req, &SendResponse{})
}
