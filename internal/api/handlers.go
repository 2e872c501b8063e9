package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/gateway"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Gateway  string          `json:"gateway"`
	Campaign campaign.Status `json:"campaign"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Gateway: "ok",
	}
	if err := gateway.Check(r.Context(), s.gateway); err != nil {
		resp.Gateway = err.Error()
	}
	if s.controller != nil {
		resp.Campaign = s.controller.Snapshot().Status
	}

	sendJSON(w, http.StatusOK, resp)
}

// campaignErrorStatus maps controller errors to HTTP status codes
func campaignErrorStatus(err error) int {
	switch {
	case errors.Is(err, campaign.ErrCampaignActive):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrInvalidConfig),
		errors.Is(err, campaign.ErrNoRecipients),
		errors.Is(err, campaign.ErrNotActive),
		errors.Is(err, campaign.ErrAlreadyPaused),
		errors.Is(err, campaign.ErrNotPaused),
		errors.Is(err, campaign.ErrAlreadyStopped),
		errors.Is(err, campaign.ErrAlreadyDone):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
