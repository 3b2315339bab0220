package rest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/media_downloader/internal/extractor"
	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/registry"
	"github.com/italolelis/media_downloader/internal/telemetry"
)

const maxRequestBody = 64 * 1024

// Service is the download pipeline as seen by the HTTP layer.
type Service interface {
	Download(ctx context.Context, req media.Request) (*registry.ManagedFile, error)
	Collect(ctx context.Context, token string) (*registry.ManagedFile, func(delivered bool), error)
	Info(ctx context.Context, rawURL string) (*extractor.Info, error)
}

type MediaHandler struct {
	svc       Service
	telemetry *telemetry.Telemetry
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(svc Service, t *telemetry.Telemetry) *MediaHandler {
	return &MediaHandler{
		svc:       svc,
		telemetry: t,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, telemetry.RouteLabels)

	r.Post("/api/download", h.HandleDownload)
	r.Post("/api/info", h.HandleInfo)
	r.Get("/api/formats", h.HandleFormats)
	r.Get("/api/platforms", h.HandlePlatforms)
	r.Get("/files/{token}", h.HandleFile)
	r.Get("/health", h.HandleHealth)
	r.Handle("/metrics", h.telemetry.Handler())

	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *MediaHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Message: "Media downloader is running"})
}

type formatOption struct {
	Format    media.Format `json:"format"`
	Qualities []string     `json:"qualities"`
	Default   string       `json:"default"`
}

// HandleFormats lists the format and quality combinations a download accepts.
func (h *MediaHandler) HandleFormats(w http.ResponseWriter, r *http.Request) {
	formats := make([]formatOption, 0, len(media.Formats()))
	for _, f := range media.Formats() {
		formats = append(formats, formatOption{Format: f, Qualities: media.Qualities(f), Default: media.DefaultQuality})
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"formats": formats})
}

var platforms = []string{
	"YouTube",
	"Instagram",
	"Twitter/X",
	"Pinterest",
	"TikTok",
	"Facebook",
	"Direct media links",
	"And many more via yt-dlp",
}

func (h *MediaHandler) HandlePlatforms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"platforms": platforms})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
