package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/foxzi/wabulk/internal/sandbox"
)

// SandboxListResponse is the response for GET /api/v1/sandbox/messages
type SandboxListResponse struct {
	Messages []*sandbox.Message `json:"messages"`
	Total    int                `json:"total"`
}

// SandboxClearResponse is the response for DELETE /api/v1/sandbox/messages
type SandboxClearResponse struct {
	Deleted int `json:"deleted"`
}

// handleSandboxList handles GET /api/v1/sandbox/messages
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	q := r.URL.Query()
	filter := sandbox.ListFilter{
		To:    q.Get("to"),
		Kind:  q.Get("kind"),
		Limit: 100,
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = min(limit, 1000)
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	messages, err := s.sandbox.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	sendJSON(w, http.StatusOK, SandboxListResponse{Messages: messages, Total: len(messages)})
}

// handleSandboxClear handles DELETE /api/v1/sandbox/messages. The optional
// older_than query parameter is a duration such as 24h.
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			sendError(w, http.StatusBadRequest, "Invalid older_than duration")
			return
		}
		olderThan = d
	}

	deleted, err := s.sandbox.Clear(r.Context(), olderThan)
	if err != nil {
		s.logger.Error("failed to clear sandbox messages", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	s.logger.Info("sandbox messages cleared", "deleted", deleted)
	sendJSON(w, http.StatusOK, SandboxClearResponse{Deleted: deleted})
}

// handleSandboxStats handles GET /api/v1/sandbox/stats
func (s *Server) handleSandboxStats(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	stats, err := s.sandbox.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get sandbox stats", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}

	sendJSON(w, http.StatusOK, stats)
}
