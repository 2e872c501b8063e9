package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/config"
	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/sandbox"
	"github.com/foxzi/wabulk/internal/storage"
	"github.com/foxzi/wabulk/internal/template"
)

type testEnv struct {
	server     *Server
	controller *campaign.Controller
	sandbox    *sandbox.Storage
	templates  *template.Storage
	mediaDir   string
}

func newTestEnv(t *testing.T, apiCfg *config.APIConfig) *testEnv {
	t.Helper()
	return newTestEnvWithGateway(t, apiCfg, nil)
}

// newTestEnvWithGateway builds a server around a sandbox gateway, or around
// gw when it is non-nil
func newTestEnvWithGateway(t *testing.T, apiCfg *config.APIConfig, gw gateway.Gateway) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	db, err := storage.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sb, err := sandbox.NewStorage(db)
	if err != nil {
		t.Fatalf("failed to create sandbox storage: %v", err)
	}
	tmpls, err := template.NewStorage(db)
	if err != nil {
		t.Fatalf("failed to create template storage: %v", err)
	}

	if gw == nil {
		gw = sandbox.NewGateway(sb, sandbox.Config{UnresolvablePrefixes: []string{"000"}}, nil)
	}
	ctrl := campaign.New(gw, nil, campaign.WithPollIntervals(time.Millisecond, time.Millisecond))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctrl.Close(ctx)
	})

	if apiCfg == nil {
		apiCfg = &config.APIConfig{}
	}
	mediaDir := filepath.Join(tmpDir, "media")

	s := NewServerWithOptions(ServerOptions{
		Controller:     ctrl,
		Gateway:        gw,
		Templates:      tmpls,
		SandboxStorage: sb,
		Config:         apiCfg,
		Campaign: config.CampaignConfig{
			MediaDir:               mediaDir,
			DefaultMinDelay:        0,
			DefaultMaxDelay:        0,
			DefaultSleepAfterCount: 0,
		},
	})

	return &testEnv{server: s, controller: ctrl, sandbox: sb, templates: tmpls, mediaDir: mediaDir}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) doJSON(t *testing.T, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return e.do(t, method, path, "application/json", bytes.NewReader(body))
}

func (e *testEnv) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.controller.Wait(ctx); err != nil {
		t.Fatalf("campaign did not finish: %v", err)
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, &config.APIConfig{APIKey: "secret"})

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Gateway != "ok" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Campaign != campaign.StatusIdle {
		t.Errorf("Campaign = %q, want idle", resp.Campaign)
	}
}

type downGateway struct{}

func (downGateway) ResolveExistence(ctx context.Context, address string) (string, error) {
	return "", errors.New("down")
}
func (downGateway) SendText(ctx context.Context, id, text string) error { return errors.New("down") }
func (downGateway) SendMedia(ctx context.Context, id string, media *gateway.Media, caption string) error {
	return errors.New("down")
}
func (downGateway) Health(ctx context.Context) error { return errors.New("client not connected") }

func TestHandleHealth_GatewayDown(t *testing.T) {
	env := newTestEnvWithGateway(t, nil, downGateway{})

	rr := env.do(t, http.MethodGet, "/health", "", nil)
	var resp HealthResponse
	decode(t, rr, &resp)
	if resp.Gateway == "ok" {
		t.Error("expected gateway error in health response")
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash key: %v", err)
	}

	tests := []struct {
		name   string
		cfg    *config.APIConfig
		header string
		value  string
		want   int
	}{
		{"no key configured", &config.APIConfig{}, "", "", http.StatusOK},
		{"missing key", &config.APIConfig{APIKey: "secret"}, "", "", http.StatusUnauthorized},
		{"wrong key", &config.APIConfig{APIKey: "secret"}, "X-API-Key", "nope", http.StatusUnauthorized},
		{"bearer", &config.APIConfig{APIKey: "secret"}, "Authorization", "Bearer secret", http.StatusOK},
		{"x-api-key", &config.APIConfig{APIKey: "secret"}, "X-API-Key", "secret", http.StatusOK},
		{"bcrypt hash", &config.APIConfig{APIKeyHash: string(hash)}, "X-API-Key", "hashed-secret", http.StatusOK},
		{"bcrypt hash wrong key", &config.APIConfig{APIKeyHash: string(hash)}, "X-API-Key", "secret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.cfg)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/bulk/progress", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestIPFilter(t *testing.T) {
	env := newTestEnv(t, &config.APIConfig{AllowedIPs: []string{"10.0.0.0/8"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bulk/progress", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/bulk/progress", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	// health stays reachable
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	rr = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestCampaignErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{campaign.ErrCampaignActive, http.StatusConflict},
		{campaign.ErrInvalidConfig, http.StatusBadRequest},
		{campaign.ErrNoRecipients, http.StatusBadRequest},
		{campaign.ErrNotPaused, http.StatusBadRequest},
		{campaign.ErrAlreadyDone, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := campaignErrorStatus(tt.err); got != tt.want {
			t.Errorf("campaignErrorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
