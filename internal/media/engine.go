package media

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/stitchbot/internal/types"
)

const (
	mergedImageName = "merged_result.jpg"
	mergedVideoName = "merged_result.mp4"
)

// Config carries the codec settings for an Engine. Zero values select defaults.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	VideoCodec  string
	AudioCodec  string
	JPEGQuality int
	// MaxImagePixels bounds a single input image, checked from its header
	// before any pixel is decoded.
	MaxImagePixels int64
	// MaxCanvasPixels bounds the stitched output.
	MaxCanvasPixels int64
}

const (
	DefaultMaxImagePixels  = 40_000_000
	DefaultMaxCanvasPixels = 120_000_000
)

// Result is a produced artifact.
type Result struct {
	Path string
	Kind types.MediaKind
	// LayoutIgnored is set when a stitch layout was requested for videos,
	// which are always joined end to end.
	LayoutIgnored bool
}

// Engine turns an ordered file list into a single artifact. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	fs  afero.Fs
	cfg Config
}

// NewEngine creates an Engine. Image files are read and written through fs;
// videos are handed to ffmpeg by path and therefore must live on the OS filesystem.
func NewEngine(fs afero.Fs, cfg Config) *Engine {
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobePath) == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.VideoCodec == "" {
		cfg.VideoCodec = "libx264"
	}
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = "aac"
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 90
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = DefaultMaxImagePixels
	}
	if cfg.MaxCanvasPixels <= 0 {
		cfg.MaxCanvasPixels = DefaultMaxCanvasPixels
	}
	return &Engine{fs: fs, cfg: cfg}
}

// Process merges files according to mode. The first file's extension picks
// the image or video path; the rest of the queue is assumed to match.
func (e *Engine) Process(ctx context.Context, files []string, mode types.Mode) (Result, error) {
	if len(files) == 0 {
		return Result{}, fail(FailureEmptyInput, nil)
	}

	switch kind := types.KindOf(files[0]); kind {
	case types.KindPhoto:
		path, err := e.mergeImages(files, mode)
		if err != nil {
			return Result{}, err
		}
		return Result{Path: path, Kind: kind}, nil
	case types.KindVideo:
		path, err := e.mergeVideos(ctx, files)
		if err != nil {
			return Result{}, err
		}
		if mode.Stitches() {
			slog.Debug("video layout not supported, concatenated instead", "mode", string(mode))
		}
		return Result{Path: path, Kind: kind, LayoutIgnored: mode.Stitches()}, nil
	default:
		return Result{}, fail(FailureUnsupportedType, nil)
	}
}
