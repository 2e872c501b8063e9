package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/wabulk/internal/template"
)

// TemplateSaveRequest is the request for POST /bulk/templates
type TemplateSaveRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Caption  string `json:"caption"`
}

// TemplateListResponse is the response for GET /bulk/templates
type TemplateListResponse struct {
	Templates []*template.Template `json:"templates"`
}

// TemplateResponse describes one template with the placeholders it uses
type TemplateResponse struct {
	*template.Template
	Placeholders []string `json:"placeholders"`
}

// handleTemplateList handles GET /api/v1/bulk/templates
func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		sendError(w, http.StatusServiceUnavailable, "Template storage not available")
		return
	}

	templates, err := s.templates.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if templates == nil {
		templates = []*template.Template{}
	}

	sendJSON(w, http.StatusOK, TemplateListResponse{Templates: templates})
}

// handleTemplateSave handles POST /api/v1/bulk/templates
func (s *Server) handleTemplateSave(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		sendError(w, http.StatusServiceUnavailable, "Template storage not available")
		return
	}

	var req TemplateSaveRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		req = TemplateSaveRequest{
			Name:     r.FormValue("name"),
			Template: r.FormValue("template"),
			Caption:  r.FormValue("caption"),
		}
	}

	if strings.TrimSpace(req.Name) == "" {
		sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	tmpl := &template.Template{Name: req.Name, Template: req.Template, Caption: req.Caption}
	if err := s.templates.Save(r.Context(), tmpl); err != nil {
		s.logger.Error("failed to save template", "name", req.Name, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}

	s.logger.Info("template saved", "name", tmpl.Name)
	sendJSON(w, http.StatusOK, describeTemplate(tmpl))
}

// handleTemplateGet handles GET /api/v1/bulk/templates/{name}
func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		sendError(w, http.StatusServiceUnavailable, "Template storage not available")
		return
	}

	name := chi.URLParam(r, "name")
	tmpl, err := s.templates.Get(r.Context(), name)
	if err != nil {
		s.logger.Error("failed to get template", "name", name, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if tmpl == nil {
		sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	sendJSON(w, http.StatusOK, describeTemplate(tmpl))
}

// handleTemplateDelete handles DELETE /api/v1/bulk/templates/{name}
func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		sendError(w, http.StatusServiceUnavailable, "Template storage not available")
		return
	}

	name := chi.URLParam(r, "name")
	if err := s.templates.Delete(r.Context(), name); err != nil {
		s.logger.Error("failed to delete template", "name", name, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func describeTemplate(tmpl *template.Template) TemplateResponse {
	placeholders := template.Placeholders(tmpl.Template + "\n" + tmpl.Caption)
	if placeholders == nil {
		placeholders = []string{}
	}
	return TemplateResponse{Template: tmpl, Placeholders: placeholders}
}
