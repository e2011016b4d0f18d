package media

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/user/stitchbot/internal/types"
)

const probeScript = `#!/bin/sh
for last; do :; done
case "$last" in
  *broken*) echo "invalid data found" >&2; exit 1 ;;
  *silent*) echo '{"streams":[{"index":0,"codec_type":"video","width":640,"height":360,"r_frame_rate":"25/1"}],"format":{"duration":"3.5"}}' ;;
  *) echo '{"streams":[{"index":0,"codec_type":"video","width":1280,"height":720,"r_frame_rate":"30000/1001"},{"index":1,"codec_type":"audio"}],"format":{"duration":"10.0"}}' ;;
esac
`

const ffmpegScript = `#!/bin/sh
echo "$@" > "$(dirname "$0")/ffmpeg.args"
for last; do :; done
printf 'mp4' > "$last"
`

const failingFFmpegScript = `#!/bin/sh
echo "encoder exploded" >&2
exit 1
`

func stubBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write %s stub: %v", name, err)
	}
	return path
}

func videoEngine(t *testing.T, ffmpeg string) (*Engine, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	bin := t.TempDir()
	cfg := Config{
		FFprobePath: stubBinary(t, bin, "ffprobe", probeScript),
		FFmpegPath:  stubBinary(t, bin, "ffmpeg", ffmpeg),
	}
	return NewEngine(afero.NewOsFs(), cfg), bin
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessVideosConcatenates(t *testing.T) {
	engine, bin := videoEngine(t, ffmpegScript)
	dir := t.TempDir()
	files := []string{
		touch(t, filepath.Join(dir, "one.mp4")),
		touch(t, filepath.Join(dir, "two_silent.MOV")),
	}

	res, err := engine.Process(context.Background(), files, types.ModeVertical)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(dir, "merged_result.mp4") {
		t.Errorf("unexpected output path %s", res.Path)
	}
	if res.Kind != types.KindVideo {
		t.Errorf("expected video result, got %q", res.Kind)
	}
	if !res.LayoutIgnored {
		t.Error("vertical layout for videos should be flagged as ignored")
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("expected artifact on disk: %v", err)
	}
	if _, err := os.Stat(res.Path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary output should be renamed away")
	}

	args, err := os.ReadFile(filepath.Join(bin, "ffmpeg.args"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(args)
	for _, want := range []string{"-c:v libx264", "-c:a aac", "concat=n=2:v=1:a=1", "scale=1280:720", "anullsrc"} {
		if !strings.Contains(got, want) {
			t.Errorf("ffmpeg args missing %q: %s", want, got)
		}
	}
	if strings.Index(got, "one.mp4") > strings.Index(got, "two_silent.MOV") {
		t.Error("inputs must keep queue order")
	}
}

func TestProcessVideosAbortsOnBadClip(t *testing.T) {
	engine, bin := videoEngine(t, ffmpegScript)
	dir := t.TempDir()
	files := []string{
		touch(t, filepath.Join(dir, "one.mp4")),
		touch(t, filepath.Join(dir, "broken.mp4")),
	}

	_, err := engine.Process(context.Background(), files, types.ModeVertical)
	if FailureKindOf(err) != FailureDecode {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(bin, "ffmpeg.args")); !os.IsNotExist(err) {
		t.Error("ffmpeg must not run when a clip fails to probe")
	}
}

func TestProcessVideosEncodeFailure(t *testing.T) {
	engine, _ := videoEngine(t, failingFFmpegScript)
	dir := t.TempDir()
	files := []string{touch(t, filepath.Join(dir, "one.mp4"))}

	_, err := engine.Process(context.Background(), files, types.ModeAlbum)
	if FailureKindOf(err) != FailureEncode {
		t.Fatalf("expected encode failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "encoder exploded") {
		t.Errorf("expected ffmpeg stderr in error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "merged_result.mp4")); !os.IsNotExist(statErr) {
		t.Error("no artifact should remain after a failed encode")
	}
}

func TestConcatArgsWithoutAudio(t *testing.T) {
	clips := []clip{
		{Path: "a.mp4", Width: 641, Height: 359, FPS: 0},
		{Path: "b.mp4", Width: 320, Height: 240, FPS: 24},
	}
	args := concatArgs(clips, "out.mp4", "libx264", "aac")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "concat=n=2:v=1:a=0[outv]") {
		t.Errorf("expected video-only concat, got %s", joined)
	}
	if strings.Contains(joined, "-c:a") {
		t.Errorf("audio codec should be omitted without audio: %s", joined)
	}
	if !strings.Contains(joined, "scale=642:360") {
		t.Errorf("expected dimensions rounded up to even, got %s", joined)
	}
	if !strings.Contains(joined, "fps=24") {
		t.Errorf("expected max frame rate 24, got %s", joined)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Errorf("output must be the last argument, got %s", args[len(args)-1])
	}
}

func TestProbeStreamFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30000/1001": 30000.0 / 1001.0,
		"25":         25,
		"0/0":        0,
		"":           0,
		"x/1":        0,
	}
	for raw, want := range tests {
		if got := (ProbeStream{RFrameRate: raw}).FrameRate(); got != want {
			t.Errorf("FrameRate(%q) = %v, want %v", raw, got, want)
		}
	}
}
