package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestBridge(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
}

func TestClient_ResolveExistence(t *testing.T) {
	c := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/contacts/check" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req CheckRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Phone == "111" {
			json.NewEncoder(w).Encode(CheckResponse{Exists: true, ID: "111@c.us"})
			return
		}
		json.NewEncoder(w).Encode(CheckResponse{Exists: false})
	})

	id, err := c.ResolveExistence(context.Background(), "111")
	if err != nil {
		t.Fatalf("ResolveExistence failed: %v", err)
	}
	if id != "111@c.us" {
		t.Errorf("id = %q", id)
	}

	id, err = c.ResolveExistence(context.Background(), "222")
	if err != nil {
		t.Fatalf("ResolveExistence failed: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id for unknown number, got %q", id)
	}
}

func TestClient_SendMedia(t *testing.T) {
	var got MediaRequest
	c := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/messages/media" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(SendResponse{ID: "m1"})
	})

	media := &Media{Filename: "a.png", MimeType: "image/png", Data: []byte("png")}
	if err := c.SendMedia(context.Background(), "111@c.us", media, "hello"); err != nil {
		t.Fatalf("SendMedia failed: %v", err)
	}
	if got.To != "111@c.us" || got.Caption != "hello" || got.Filename != "a.png" {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Data != base64.StdEncoding.EncodeToString([]byte("png")) {
		t.Errorf("data not base64 encoded: %q", got.Data)
	}

	if err := c.SendMedia(context.Background(), "111@c.us", nil, ""); err == nil {
		t.Error("expected error for nil media")
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	c := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "slow down"})
	})

	err := c.SendText(context.Background(), "111@c.us", "hi")
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gwErr.Status != http.StatusTooManyRequests || gwErr.Message != "slow down" || gwErr.Op != "send_text" {
		t.Errorf("unexpected error: %+v", gwErr)
	}
}

func TestClient_Health(t *testing.T) {
	var connected atomic.Bool
	c := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Connected: connected.Load()})
	})

	if err := Check(context.Background(), c); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	connected.Store(true)
	if err := Check(context.Background(), c); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	if err := Check(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil gateway: expected ErrUnavailable, got %v", err)
	}
}
