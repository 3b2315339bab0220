package rest

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/progress"
)

// bytes between progress log lines while streaming
const streamProgressInterval = 16 << 20

// HandleFile streams a registered file once. The file is deleted when the
// stream ends, whether or not the client read all of it.
func (h *MediaHandler) HandleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := chi.URLParam(r, "token")

	ctx, logger := logctx.With(ctx, "token", token)

	f, done, err := h.svc.Collect(ctx, token)
	if err != nil {
		var nf *media.NotFoundError
		if errors.As(err, &nf) {
			http.Error(w, "file not found or expired", http.StatusNotFound)

			return
		}

		logger.Error("failed to collect file", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)

		return
	}

	file, err := os.Open(f.Path)
	if err != nil {
		done(false)
		logger.Error("failed to open file", "file", f.Path, "err", err)
		http.Error(w, "file not found or expired", http.StatusNotFound)

		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": f.Name})
	if disposition == "" {
		disposition = "attachment"
	}

	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Cache-Control", "no-store")

	pr := progress.NewReader(file, f.Size, streamProgressInterval, func(sent, total int64) {
		logger.Debug("stream progress",
			"sent", humanize.IBytes(uint64(sent)),
			"total", humanize.IBytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(sent)*100/float64(max(total, 1)), 2))
	})

	n, err := io.Copy(w, pr)

	delivered := err == nil && n == f.Size
	done(delivered)

	status := "complete"
	if !delivered {
		status = "aborted"

		logger.Warn("stream aborted", "sent", n, "size", f.Size, "err", err)
	} else {
		logger.Info("file delivered", "name", f.Name, "size", humanize.IBytes(uint64(n)))
	}

	h.telemetry.RecordDelivery(ctx, status, n)
}
