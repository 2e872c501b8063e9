package api

import (
	"net/http"

	"github.com/foxzi/wabulk/internal/ratelimit"
)

// QuotaResponse is the response for GET /api/v1/bulk/quota
type QuotaResponse struct {
	Enabled bool             `json:"enabled"`
	Global  *ratelimit.Stats `json:"global,omitempty"`
	Check   *QuotaCheck      `json:"check,omitempty"`
}

// QuotaCheck tells whether one more message to a recipient would be allowed
type QuotaCheck struct {
	Recipient  string           `json:"recipient"`
	Allowed    bool             `json:"allowed"`
	DeniedBy   ratelimit.Scope  `json:"denied_by,omitempty"`
	Window     ratelimit.Window `json:"window,omitempty"`
	RetryAfter string           `json:"retry_after,omitempty"`
}

// handleQuota handles GET /api/v1/bulk/quota. With ?recipient= it also
// reports whether a send to that recipient would pass the quota.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter == nil {
		sendJSON(w, http.StatusOK, QuotaResponse{Enabled: false})
		return
	}

	global, err := s.rateLimiter.GetStats(r.Context(), ratelimit.ScopeGlobal, "global")
	if err != nil {
		s.logger.Error("failed to get quota stats", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get quota stats")
		return
	}
	resp := QuotaResponse{Enabled: true, Global: global}

	if rcpt := r.URL.Query().Get("recipient"); rcpt != "" {
		res, err := s.rateLimiter.Check(r.Context(), rcpt)
		if err != nil {
			s.logger.Error("failed to check quota", "recipient", rcpt, "error", err)
			sendError(w, http.StatusInternalServerError, "Failed to check quota")
			return
		}
		check := &QuotaCheck{Recipient: rcpt, Allowed: res.Allowed, DeniedBy: res.DeniedBy, Window: res.Window}
		if res.RetryAfter > 0 {
			check.RetryAfter = res.RetryAfter.String()
		}
		resp.Check = check
	}

	sendJSON(w, http.StatusOK, resp)
}
