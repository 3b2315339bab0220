package extractor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
)

// outputTemplate keeps engine-side names short; the registry renames the file anyway.
const outputTemplate = "%(title).150B.%(ext)s"

// leftovers yt-dlp may keep next to the real output.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".json", ".tmp"}

// yt-dlp skips files above --max-filesize, exits 0 and only reports it in its log.
var maxFilesizeNotice = regexp.MustCompile(`larger than max-filesize(?: \((\d+) bytes > (\d+) bytes\))?`)

// YtdlpEngine extracts media from hosting platforms with yt-dlp.
type YtdlpEngine struct {
	proxy    string
	maxBytes int64
}

// NewYtdlpEngine creates a YtdlpEngine. yt-dlp aborts any file above maxBytes.
func NewYtdlpEngine(proxy string, maxBytes int64) *YtdlpEngine {
	return &YtdlpEngine{proxy: proxy, maxBytes: maxBytes}
}

func (e *YtdlpEngine) Name() string {
	return "ytdlp"
}

// Extract downloads rawURL into workDir and returns the single produced file.
func (e *YtdlpEngine) Extract(ctx context.Context, rawURL string, opts media.Options, workDir string) (*Output, error) {
	logger := logctx.LoggerFromContext(ctx)

	dl := e.command(opts, workDir)

	res, err := dl.Run(ctx, rawURL)
	if err != nil {
		return nil, engineError(res, err)
	}

	path, err := findOutput(workDir)
	if err != nil {
		if oversize := e.oversize(res); oversize != nil {
			return nil, oversize
		}

		return nil, err
	}

	out := &Output{Path: path, Engine: e.Name()}

	if info, err := parseInfo(res.Stdout); err == nil {
		out.Title = info.Title
		out.Extractor = info.ExtractorKey
	} else {
		logger.Debug("could not parse yt-dlp metadata", "err", err)
	}

	return out, nil
}

// Probe fetches metadata without downloading.
func (e *YtdlpEngine) Probe(ctx context.Context, rawURL string) (*Info, error) {
	dl := ytdlp.New().
		SkipDownload().
		PrintJSON().
		NoPlaylist()

	if e.proxy != "" {
		dl = dl.Proxy(e.proxy)
	}

	res, err := dl.Run(ctx, rawURL)
	if err != nil {
		return nil, engineError(res, err)
	}

	info, err := parseInfo(res.Stdout)
	if err != nil {
		return nil, &media.ExtractionError{Kind: media.KindNoMedia, URL: rawURL, Err: err}
	}

	return info.toInfo(), nil
}

func (e *YtdlpEngine) command(opts media.Options, workDir string) *ytdlp.Command {
	dl := ytdlp.New().
		NoPlaylist().
		NoProgress().
		RestrictFilenames().
		PrintJSON().
		Format(opts.FormatSelector).
		Output(filepath.Join(workDir, outputTemplate))

	if e.maxBytes > 0 {
		dl = dl.MaxFileSize(strconv.FormatInt(e.maxBytes, 10))
	}

	if e.proxy != "" {
		dl = dl.Proxy(e.proxy)
	}

	for _, pp := range opts.PostProcessors {
		switch pp.Kind {
		case media.PostConvertVideo:
			dl = dl.RecodeVideo(pp.Codec)
		case media.PostExtractAudio:
			dl = dl.ExtractAudio().AudioFormat(pp.Codec)
			if pp.Bitrate > 0 {
				dl = dl.AudioQuality(strconv.Itoa(pp.Bitrate) + "K")
			}
		}
	}

	return dl
}

// oversize reports the size notice yt-dlp prints when it skipped the file.
func (e *YtdlpEngine) oversize(res *ytdlp.Result) error {
	if res == nil {
		return nil
	}

	m := maxFilesizeNotice.FindStringSubmatch(res.Stdout + "\n" + res.Stderr)
	if m == nil {
		return nil
	}

	size := e.maxBytes + 1
	if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
		size = n
	}

	return &media.OversizeError{Size: size, Limit: e.maxBytes}
}

// engineError attaches the tail of stderr so the classifier can see the reason.
func engineError(res *ytdlp.Result, err error) error {
	if res == nil || strings.TrimSpace(res.Stderr) == "" {
		return err
	}

	return fmt.Errorf("%w: %s", err, lastLines(res.Stderr, 5))
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, " | ")
}

// findOutput returns the largest finished file in dir.
func findOutput(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", &media.InternalError{Op: "scan work dir", Err: err}
	}

	var (
		best     string
		bestSize int64 = -1
	)

	for _, entry := range entries {
		if !entry.Type().IsRegular() || isPartial(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.Size() > bestSize {
			best, bestSize = filepath.Join(dir, entry.Name()), info.Size()
		}
	}

	if best == "" {
		return "", &media.ExtractionError{Kind: media.KindNoMedia, Err: fmt.Errorf("no file produced in %s", dir)}
	}

	return best, nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}

	return false
}

type infoJSON struct {
	Title          string   `json:"title"`
	Duration       *float64 `json:"duration"`
	Thumbnail      string   `json:"thumbnail"`
	ExtractorKey   string   `json:"extractor_key"`
	Uploader       string   `json:"uploader"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
}

// parseInfo decodes the first JSON object printed by yt-dlp.
func parseInfo(stdout string) (*infoJSON, error) {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var info infoJSON
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return nil, fmt.Errorf("decode yt-dlp json: %w", err)
		}

		return &info, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("yt-dlp printed no metadata")
}

func (i *infoJSON) toInfo() *Info {
	info := &Info{
		Title:     i.Title,
		Thumbnail: i.Thumbnail,
		Platform:  i.ExtractorKey,
		Uploader:  i.Uploader,
	}

	if i.Duration != nil {
		info.Duration = time.Duration(*i.Duration * float64(time.Second))
	}

	switch {
	case i.Filesize != nil:
		info.Filesize = int64(*i.Filesize)
	case i.FilesizeApprox != nil:
		info.Filesize = int64(*i.FilesizeApprox)
	}

	return info
}
