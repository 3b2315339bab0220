package media

import (
	"strconv"
	"strings"
)

// PostProcessor is one conversion step the engine runs after fetching media.
type PostProcessor struct {
	Kind    string // "convert-video" or "extract-audio"
	Codec   string
	Bitrate int // kbit/s, 0 means engine default
}

const (
	PostConvertVideo = "convert-video"
	PostExtractAudio = "extract-audio"
)

// Options is the engine configuration derived from a format and quality.
type Options struct {
	Format         Format
	Quality        string
	FormatSelector string
	Container      string
	MaxHeight      int
	MaxBitrate     int
	ContentType    string
	PostProcessors []PostProcessor
}

// MapOptions translates a validated (format, quality) pair into engine options.
// It does no I/O and always returns the same Options for the same input.
func MapOptions(f Format, quality string) Options {
	opts := Options{Format: f, Quality: quality}

	switch f {
	case FormatVideo:
		opts.Container = "mp4"
		opts.ContentType = "video/mp4"
		opts.PostProcessors = []PostProcessor{{Kind: PostConvertVideo, Codec: "mp4"}}

		switch {
		case quality == "worst":
			opts.FormatSelector = "worst[ext=mp4]/worst"
		case strings.HasSuffix(quality, "p"):
			h, err := strconv.Atoi(strings.TrimSuffix(quality, "p"))
			if err != nil {
				opts.FormatSelector = "best[ext=mp4]/best"

				break
			}

			opts.MaxHeight = h
			opts.FormatSelector = "best[height<=" + strconv.Itoa(h) + "][ext=mp4]/best[height<=" + strconv.Itoa(h) + "]"
		default:
			opts.FormatSelector = "best[ext=mp4]/best"
		}
	case FormatAudio:
		opts.Container = "mp3"
		opts.ContentType = "audio/mpeg"

		pp := PostProcessor{Kind: PostExtractAudio, Codec: "mp3"}

		switch {
		case quality == "worst":
			opts.FormatSelector = "worstaudio/worst"
		case strings.HasSuffix(quality, "k"):
			kbps, err := strconv.Atoi(strings.TrimSuffix(quality, "k"))
			if err != nil {
				opts.FormatSelector = "bestaudio/best"

				break
			}

			opts.MaxBitrate = kbps
			pp.Bitrate = kbps
			opts.FormatSelector = "bestaudio[abr<=" + strconv.Itoa(kbps) + "]/bestaudio"
		default:
			opts.FormatSelector = "bestaudio/best"
		}

		opts.PostProcessors = []PostProcessor{pp}
	case FormatImage:
		opts.FormatSelector = "best"
		opts.ContentType = "image/jpeg"
	default:
		opts.FormatSelector = "best"
		opts.ContentType = "application/octet-stream"
	}

	return opts
}
