package media

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/user/stitchbot/internal/types"
)

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
}

func decodeOutput(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func newOSEngine() *Engine {
	return NewEngine(afero.NewOsFs(), Config{})
}

func TestComputeLayout(t *testing.T) {
	sizes := []image.Point{{100, 50}, {80, 60}}

	vertical := ComputeLayout(sizes, types.ModeVertical)
	if vertical.Width != 100 || vertical.Height != 110 {
		t.Errorf("vertical canvas = %dx%d, want 100x110", vertical.Width, vertical.Height)
	}
	if vertical.Offsets[0] != image.Pt(0, 0) || vertical.Offsets[1] != image.Pt(0, 50) {
		t.Errorf("vertical offsets = %v", vertical.Offsets)
	}

	horizontal := ComputeLayout(sizes, types.ModeHorizontal)
	if horizontal.Width != 180 || horizontal.Height != 60 {
		t.Errorf("horizontal canvas = %dx%d, want 180x60", horizontal.Width, horizontal.Height)
	}
	if horizontal.Offsets[0] != image.Pt(0, 0) || horizontal.Offsets[1] != image.Pt(100, 0) {
		t.Errorf("horizontal offsets = %v", horizontal.Offsets)
	}
}

func TestComputeLayoutOffsetsIncreaseWithoutOverlap(t *testing.T) {
	sizes := []image.Point{{30, 10}, {5, 70}, {64, 64}, {1, 1}, {200, 3}}
	for _, mode := range []types.Mode{types.ModeVertical, types.ModeHorizontal} {
		layout := ComputeLayout(sizes, mode)
		sumW, sumH, maxW, maxH := 0, 0, 0, 0
		for i, sz := range sizes {
			sumW += sz.X
			sumH += sz.Y
			maxW = max(maxW, sz.X)
			maxH = max(maxH, sz.Y)
			if i == 0 {
				continue
			}
			prev, cur := layout.Offsets[i-1], layout.Offsets[i]
			if mode == types.ModeHorizontal && cur.X != prev.X+sizes[i-1].X {
				t.Errorf("%s: offset %d = %v, want x=%d", mode, i, cur, prev.X+sizes[i-1].X)
			}
			if mode == types.ModeVertical && cur.Y != prev.Y+sizes[i-1].Y {
				t.Errorf("%s: offset %d = %v, want y=%d", mode, i, cur, prev.Y+sizes[i-1].Y)
			}
		}
		if mode == types.ModeHorizontal && (layout.Width != sumW || layout.Height != maxH) {
			t.Errorf("horizontal canvas %dx%d, want %dx%d", layout.Width, layout.Height, sumW, maxH)
		}
		if mode == types.ModeVertical && (layout.Width != maxW || layout.Height != sumH) {
			t.Errorf("vertical canvas %dx%d, want %dx%d", layout.Width, layout.Height, maxW, sumH)
		}
	}
}

func TestProcessImagesVertical(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	second := filepath.Join(dir, "b.png")
	writeJPEG(t, first, 100, 50)
	writePNG(t, second, 80, 60, color.Black)

	res, err := newOSEngine().Process(context.Background(), []string{first, second}, types.ModeVertical)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(dir, "merged_result.jpg") {
		t.Errorf("unexpected output path %s", res.Path)
	}
	if res.Kind != types.KindPhoto {
		t.Errorf("expected photo result, got %q", res.Kind)
	}

	out := decodeOutput(t, res.Path)
	if sz := out.Bounds().Size(); sz != image.Pt(100, 110) {
		t.Fatalf("expected 100x110 canvas, got %v", sz)
	}
	// Right of the narrower second image the canvas stays white.
	r, g, b, _ := out.At(95, 100).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Errorf("expected white padding, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
	r, _, _, _ = out.At(10, 100).RGBA()
	if r>>8 > 15 {
		t.Errorf("expected black second image at (10,100), got red=%d", r>>8)
	}
}

func TestProcessImagesHorizontal(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	second := filepath.Join(dir, "b.jpg")
	writeJPEG(t, first, 100, 50)
	writeJPEG(t, second, 80, 60)

	res, err := newOSEngine().Process(context.Background(), []string{first, second}, types.ModeHorizontal)
	if err != nil {
		t.Fatal(err)
	}
	if sz := decodeOutput(t, res.Path).Bounds().Size(); sz != image.Pt(180, 60) {
		t.Fatalf("expected 180x60 canvas, got %v", sz)
	}
}

func TestProcessSkipsUndecodableImages(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jpg")
	bad := filepath.Join(dir, "bad.jpg")
	writeJPEG(t, good, 40, 30)
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := newOSEngine().Process(context.Background(), []string{bad, good}, types.ModeVertical)
	if err != nil {
		t.Fatal(err)
	}
	if sz := decodeOutput(t, res.Path).Bounds().Size(); sz != image.Pt(40, 30) {
		t.Errorf("expected only the good image, got %v", sz)
	}
}

func TestProcessOnlyCorruptImage(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	if err := os.WriteFile(bad, []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := newOSEngine().Process(context.Background(), []string{bad}, types.ModeVertical)
	if FailureKindOf(err) != FailureDecode {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "merged_result.jpg")); !os.IsNotExist(statErr) {
		t.Error("no artifact should be written")
	}
}

func TestProcessRejectsOversizedImageBeforeDecoding(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.jpg")
	big := filepath.Join(dir, "big.png")
	writeJPEG(t, small, 20, 10)
	writePNG(t, big, 200, 200, color.Black)

	engine := NewEngine(afero.NewOsFs(), Config{MaxImagePixels: 1000})
	res, err := engine.Process(context.Background(), []string{small, big}, types.ModeVertical)
	if err != nil {
		t.Fatal(err)
	}
	if sz := decodeOutput(t, res.Path).Bounds().Size(); sz != image.Pt(20, 10) {
		t.Errorf("expected oversized image skipped, got %v", sz)
	}

	_, err = engine.Process(context.Background(), []string{big}, types.ModeVertical)
	if FailureKindOf(err) != FailureDecode {
		t.Fatalf("expected decode failure when every image is oversized, got %v", err)
	}
}

func TestDecodeImageChecksHeaderDimensions(t *testing.T) {
	fs := afero.NewMemMapFs()
	// A PNG whose IHDR declares 100000x100000 with no pixel data behind it.
	ihdr := []byte{'I', 'H', 'D', 'R'}
	ihdr = binary.BigEndian.AppendUint32(ihdr, 100000)
	ihdr = binary.BigEndian.AppendUint32(ihdr, 100000)
	ihdr = append(ihdr, 8, 2, 0, 0, 0)
	header := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	header = binary.BigEndian.AppendUint32(header, 13)
	header = append(header, ihdr...)
	header = binary.BigEndian.AppendUint32(header, crc32.ChecksumIEEE(ihdr))
	if err := afero.WriteFile(fs, "/in/bomb.png", header, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := decodeImage(fs, "/in/bomb.png", DefaultMaxImagePixels)
	if !errors.Is(err, errImageTooLarge) {
		t.Fatalf("expected errImageTooLarge, got %v", err)
	}
}

func TestProcessRejectsOversizedCanvas(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		p := filepath.Join(dir, name)
		writeJPEG(t, p, 30, 30)
		files = append(files, p)
	}

	engine := NewEngine(afero.NewOsFs(), Config{MaxCanvasPixels: 2000})
	_, err := engine.Process(context.Background(), files, types.ModeHorizontal)
	if FailureKindOf(err) != FailureEncode || !errors.Is(err, errCanvasTooLarge) {
		t.Fatalf("expected canvas size failure, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "merged_result.jpg")); !os.IsNotExist(statErr) {
		t.Error("no artifact should be written")
	}
}

func TestProcessEmptyInput(t *testing.T) {
	engine := newOSEngine()
	for _, mode := range []types.Mode{types.ModeVertical, types.ModeHorizontal, types.ModeAlbum} {
		_, err := engine.Process(context.Background(), nil, mode)
		var failure *Failure
		if !errors.As(err, &failure) || failure.Kind != FailureEmptyInput {
			t.Errorf("%s: expected empty-input failure, got %v", mode, err)
		}
		if !failure.UserError() {
			t.Errorf("%s: empty input should be a user error", mode)
		}
	}
}

func TestProcessUnsupportedFirstFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.jpg")
	writeJPEG(t, good, 10, 10)

	_, err := newOSEngine().Process(context.Background(), []string{filepath.Join(dir, "notes.dat"), good}, types.ModeVertical)
	if FailureKindOf(err) != FailureUnsupportedType {
		t.Fatalf("expected unsupported-type failure, got %v", err)
	}
}

func TestProcessOverwritesPreviousResult(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.jpg")
	writeJPEG(t, img, 20, 20)
	if err := os.WriteFile(filepath.Join(dir, "merged_result.jpg"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := newOSEngine().Process(context.Background(), []string{img}, types.ModeVertical)
	if err != nil {
		t.Fatal(err)
	}
	if sz := decodeOutput(t, res.Path).Bounds().Size(); sz != image.Pt(20, 20) {
		t.Errorf("expected fresh 20x20 result, got %v", sz)
	}
}
