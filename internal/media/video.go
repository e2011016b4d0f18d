package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultFrameRate = 30.0
	maxFrameRate     = 60.0
	audioSampleRate  = 44100
)

// clip is a probed input to the concatenation.
type clip struct {
	Path     string
	Width    int
	Height   int
	FPS      float64
	Duration float64
	HasAudio bool
}

func (e *Engine) probeClip(ctx context.Context, path string) (clip, error) {
	res, err := Probe(ctx, e.cfg.FFprobePath, path)
	if err != nil {
		return clip{}, err
	}
	video, ok := res.Video()
	if !ok || video.Width <= 0 || video.Height <= 0 {
		return clip{}, fmt.Errorf("%s: no video stream", filepath.Base(path))
	}
	duration := parseSeconds(res.Format.Duration)
	if duration <= 0 {
		duration = parseSeconds(video.Duration)
	}
	return clip{
		Path:     path,
		Width:    video.Width,
		Height:   video.Height,
		FPS:      video.FrameRate(),
		Duration: duration,
		HasAudio: res.HasAudio(),
	}, nil
}

func (e *Engine) mergeVideos(ctx context.Context, files []string) (string, error) {
	clips := make([]clip, 0, len(files))
	for _, p := range files {
		c, err := e.probeClip(ctx, p)
		if err != nil {
			return "", fail(FailureDecode, err)
		}
		clips = append(clips, c)
	}

	out := filepath.Join(filepath.Dir(files[0]), mergedVideoName)
	tmp := out + ".tmp"
	args := concatArgs(clips, tmp, e.cfg.VideoCodec, e.cfg.AudioCodec)

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return "", fail(FailureEncode, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fail(FailureEncode, fmt.Errorf("rename output: %w", err))
	}
	return out, nil
}

// concatArgs builds an ffmpeg invocation that scales and pads every clip to
// the largest frame, resamples to a common frame rate, substitutes silence
// for clips without audio and concatenates them in order.
func concatArgs(clips []clip, out, videoCodec, audioCodec string) []string {
	width, height, fps := 0, 0, 0.0
	anyAudio := false
	silenceable := true
	for _, c := range clips {
		width = max(width, c.Width)
		height = max(height, c.Height)
		fps = max(fps, c.FPS)
		if c.HasAudio {
			anyAudio = true
		} else if c.Duration <= 0 {
			silenceable = false
		}
	}
	// libx264 with yuv420p needs even dimensions.
	width += width % 2
	height += height % 2
	if fps <= 0 {
		fps = defaultFrameRate
	}
	fps = min(fps, maxFrameRate)
	withAudio := anyAudio && silenceable

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, c := range clips {
		args = append(args, "-i", c.Path)
	}

	var graph strings.Builder
	var concatIn strings.Builder
	for i, c := range clips {
		fmt.Fprintf(&graph,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,fps=%s,format=yuv420p[v%d];",
			i, width, height, width, height, formatFloat(fps), i)
		fmt.Fprintf(&concatIn, "[v%d]", i)
		if !withAudio {
			continue
		}
		if c.HasAudio {
			fmt.Fprintf(&graph, "[%d:a]aformat=sample_rates=%d:channel_layouts=stereo[a%d];", i, audioSampleRate, i)
		} else {
			fmt.Fprintf(&graph, "anullsrc=channel_layout=stereo:sample_rate=%d,atrim=duration=%s[a%d];", audioSampleRate, formatFloat(c.Duration), i)
		}
		fmt.Fprintf(&concatIn, "[a%d]", i)
	}
	audioStreams := 0
	if withAudio {
		audioStreams = 1
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=1:a=%d[outv]", concatIn.String(), len(clips), audioStreams)
	if withAudio {
		graph.WriteString("[outa]")
	}

	args = append(args, "-filter_complex", graph.String(), "-map", "[outv]")
	if withAudio {
		args = append(args, "-map", "[outa]", "-c:a", audioCodec)
	}
	args = append(args, "-c:v", videoCodec, "-movflags", "+faststart", "-f", "mp4", out)
	return args
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
