package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/config"
	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/recipient"
)

var unsafeFilenameChars = regexp.MustCompile(`[^\w.\-]`)

// StartRequest is the campaign payload for POST /bulk/start. Delays may be
// given in seconds or milliseconds; milliseconds win when both are set.
type StartRequest struct {
	Recipients       []recipient.Recipient `json:"recipients"`
	Template         string                `json:"template"`
	Caption          string                `json:"caption"`
	RandomOrder      bool                  `json:"randomOrder"`
	MinDelaySec      *float64              `json:"minDelaySec,omitempty"`
	MaxDelaySec      *float64              `json:"maxDelaySec,omitempty"`
	MinDelayMs       *int64                `json:"minDelayMs,omitempty"`
	MaxDelayMs       *int64                `json:"maxDelayMs,omitempty"`
	SleepAfterCount  *int                  `json:"sleepAfterCount,omitempty"`
	SleepDurationSec *float64              `json:"sleepDurationSec,omitempty"`
	SleepDurationMs  *int64                `json:"sleepDurationMs,omitempty"`
}

// CampaignConfig builds the campaign configuration, filling unset values
// from defaults
func (req *StartRequest) CampaignConfig(defaults config.CampaignConfig) campaign.Config {
	return campaign.Config{
		Template:        req.Template,
		CaptionTemplate: req.Caption,
		RandomOrder:     req.RandomOrder,
		MinDelay:        duration(req.MinDelayMs, req.MinDelaySec, defaults.DefaultMinDelay),
		MaxDelay:        duration(req.MaxDelayMs, req.MaxDelaySec, defaults.DefaultMaxDelay),
		SleepAfterCount: intOr(req.SleepAfterCount, defaults.DefaultSleepAfterCount),
		SleepDuration:   duration(req.SleepDurationMs, req.SleepDurationSec, defaults.DefaultSleepDuration),
	}
}

func duration(ms *int64, sec *float64, def time.Duration) time.Duration {
	switch {
	case ms != nil:
		return time.Duration(*ms) * time.Millisecond
	case sec != nil:
		return time.Duration(*sec * float64(time.Second))
	default:
		return def
	}
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// StartResponse is the response for POST /bulk/start
type StartResponse struct {
	OK       bool              `json:"ok"`
	Progress campaign.Progress `json:"progress"`
}

// ControlRequest is the request for POST /bulk/control
type ControlRequest struct {
	Action string `json:"action"`
}

// ControlResponse is the response for POST /bulk/control
type ControlResponse struct {
	OK       bool              `json:"ok"`
	State    campaign.RunState `json:"state"`
	Progress campaign.Progress `json:"progress"`
	Message  string            `json:"message"`
}

// handlePrepare handles POST /api/v1/bulk/prepare. Rows come from the
// "numbers" text field and the optional "file" upload.
func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := parseForm(r, s.config.MaxUploadBytes); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid form: "+err.Error())
		return
	}

	rows := recipient.ParseText(r.FormValue("numbers"))

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		fileRows, err := recipient.ParseFile(header.Filename, file)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Parse failed: "+err.Error())
			return
		}
		rows = append(rows, fileRows...)
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	prepared := recipient.Prepare(rows, recipient.ParseHeaders(r.FormValue("headers")))
	if prepared.Recipients == nil {
		prepared.Recipients = []recipient.Recipient{}
	}

	s.logger.Info("recipients prepared",
		"total_rows", prepared.TotalRows,
		"valid", prepared.ValidRecipients,
	)

	sendJSON(w, http.StatusOK, prepared)
}

// handleStart handles POST /api/v1/bulk/start. The body is either JSON or a
// multipart form with a "payload" JSON field and an optional "asset" file.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := gateway.Check(r.Context(), s.gateway); err != nil {
		s.logger.Warn("refusing to start campaign", "error", err)
		sendError(w, http.StatusServiceUnavailable, "Gateway not available")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	var req StartRequest
	var media *gateway.Media

	if isMultipart(r) {
		if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
			sendError(w, http.StatusBadRequest, "Invalid form: "+err.Error())
			return
		}
		payload := r.FormValue("payload")
		if payload == "" {
			payload = "{}"
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			sendError(w, http.StatusBadRequest, "Invalid payload")
			return
		}

		file, header, err := r.FormFile("asset")
		switch {
		case err == nil:
			defer file.Close()
			media, err = s.saveMedia(file, header)
			if err != nil {
				s.logger.Error("failed to store uploaded media", "error", err)
				sendError(w, http.StatusInternalServerError, "Failed to store media")
				return
			}
		case !errors.Is(err, http.ErrMissingFile):
			sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	cfg := req.CampaignConfig(s.campaign)
	cfg.Media = media

	progress, err := s.controller.Start(cfg, req.Recipients)
	if err != nil {
		if media != nil && media.Path != "" {
			os.Remove(media.Path)
		}
		sendError(w, campaignErrorStatus(err), err.Error())
		return
	}

	sendJSON(w, http.StatusOK, StartResponse{OK: true, Progress: progress})
}

// saveMedia writes an uploaded asset to the media directory
func (s *Server) saveMedia(file multipart.File, header *multipart.FileHeader) (*gateway.Media, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	dir := s.campaign.MediaDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	original := filepath.Base(header.Filename)
	path := filepath.Join(dir, uuid.NewString()+"_"+unsafeFilenameChars.ReplaceAllString(original, "_"))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write media: %w", err)
	}

	return &gateway.Media{
		Filename: original,
		MimeType: detectMimeType(header, data),
		Data:     data,
		Path:     path,
	}, nil
}

func detectMimeType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(filepath.Ext(header.Filename)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// handleProgress handles GET /api/v1/bulk/progress
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.controller.Snapshot())
}

var controlMessages = map[string]string{
	"pause":  "Campaign paused successfully",
	"resume": "Campaign resumed successfully",
	"stop":   "Campaign stopped successfully",
}

// handleControl handles POST /api/v1/bulk/control
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	} else {
		req.Action = r.FormValue("action")
	}
	action := strings.ToLower(strings.TrimSpace(req.Action))

	var err error
	switch action {
	case "pause":
		err = s.controller.Pause()
	case "resume":
		err = s.controller.Resume()
	case "stop":
		err = s.controller.Stop()
	default:
		sendError(w, http.StatusBadRequest, "Invalid action: "+action)
		return
	}
	if err != nil {
		sendError(w, campaignErrorStatus(err), err.Error())
		return
	}

	sendJSON(w, http.StatusOK, ControlResponse{
		OK:       true,
		State:    s.controller.State(),
		Progress: s.controller.Snapshot(),
		Message:  controlMessages[action],
	})
}

// handleReport handles GET /api/v1/bulk/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, s.lastReport())
}

// handleReportDownload handles GET /api/v1/bulk/report/download
func (s *Server) handleReportDownload(w http.ResponseWriter, r *http.Request) {
	report := s.lastReport()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to encode report")
		return
	}

	name := report.ID
	if name == "" {
		name = "latest"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="campaign-%s.json"`, name))
	w.Write(data)
}

func (s *Server) lastReport() campaign.Report {
	report := s.controller.Report()
	if report.Rows == nil {
		report.Rows = []campaign.ReportRow{}
	}
	return report
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func parseForm(r *http.Request, maxMemory int64) error {
	if isMultipart(r) {
		return r.ParseMultipartForm(maxMemory)
	}
	return r.ParseForm()
}
