package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
)

// DownloadResult is the in-band result of POST /api/download. Failures are
// reported with success=false and HTTP 200.
type DownloadResult struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

type infoRequest struct {
	URL string `json:"url"`
}

type InfoResult struct {
	Success   bool   `json:"success"`
	Title     string `json:"title,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Filesize  string `json:"filesize,omitempty"`
	Uploader  string `json:"uploader,omitempty"`
	Message   string `json:"message,omitempty"`
}

var extractionMessages = map[media.ExtractionKind]string{
	media.KindUnsupported:  "This URL or platform is not supported",
	media.KindAuthRequired: "This content requires authentication (login or cookies) and cannot be downloaded",
	media.KindNetwork:      "Could not reach the media source, please check the URL and try again",
	media.KindNoMedia:      "No downloadable media was found for the requested format",
	media.KindTimeout:      "The download took too long and was cancelled",
	media.KindFailed:       "The download failed, please check the URL and try again",
}

// HandleDownload runs the whole pipeline for one request.
func (h *MediaHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req media.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeJSON(w, r, http.StatusOK, DownloadResult{Message: "invalid request body"})

		return
	}

	f, err := h.svc.Download(r.Context(), req)
	if err != nil {
		logDownloadError(r, err)
		writeJSON(w, r, http.StatusOK, DownloadResult{Message: formatDownloadError(err)})

		return
	}

	writeJSON(w, r, http.StatusOK, DownloadResult{
		Success:     true,
		Filename:    f.Name,
		Size:        f.Size,
		DownloadURL: "/files/" + f.Token,
	})
}

// HandleInfo returns a metadata preview without downloading.
func (h *MediaHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req infoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.Debug("failed to decode request", "err", err)
		writeJSON(w, r, http.StatusOK, InfoResult{Message: "invalid request body"})

		return
	}

	info, err := h.svc.Info(r.Context(), req.URL)
	if err != nil {
		logDownloadError(r, err)
		writeJSON(w, r, http.StatusOK, InfoResult{Message: formatDownloadError(err)})

		return
	}

	res := InfoResult{
		Success:   true,
		Title:     info.Title,
		Duration:  formatDuration(info.Duration),
		Thumbnail: info.Thumbnail,
		Platform:  info.Platform,
		Uploader:  info.Uploader,
	}

	if info.Filesize > 0 {
		res.Filesize = humanize.IBytes(uint64(info.Filesize))
	}

	writeJSON(w, r, http.StatusOK, res)
}

func logDownloadError(r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	var (
		vErr   *media.ValidationError
		intErr *media.InternalError
	)

	switch {
	case errors.As(err, &vErr):
		logger.Info("request rejected", "field", vErr.Field, "value", vErr.Value)
	case errors.As(err, &intErr):
		logger.Error("download failed with internal error", "err", err)
	default:
		logger.Warn("download failed", "err", err)
	}
}

// formatDownloadError converts pipeline errors to messages that are safe to show
// to the caller. Internal details stay in the log.
func formatDownloadError(err error) string {
	var vErr *media.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}

	var extErr *media.ExtractionError
	if errors.As(err, &extErr) {
		if msg, ok := extractionMessages[extErr.Kind]; ok {
			return msg
		}

		return extractionMessages[media.KindFailed]
	}

	var oversize *media.OversizeError
	if errors.As(err, &oversize) {
		return fmt.Sprintf("File is too large: %s", oversize.Error())
	}

	var nf *media.NotFoundError
	if errors.As(err, &nf) {
		return "file not found or expired"
	}

	return "an unexpected error occurred"
}

// formatDuration renders d as "1h 2m 3s", dropping leading zero units.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	total := int64(d.Round(time.Second) / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}

	if h > 0 || m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}

	parts = append(parts, fmt.Sprintf("%ds", s))

	return strings.Join(parts, " ")
}
