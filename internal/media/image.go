package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"path/filepath"

	_ "image/png"

	"github.com/spf13/afero"
	_ "golang.org/x/image/webp"

	"github.com/user/stitchbot/internal/types"
)

// Layout is the canvas size and the top-left corner of each pasted image.
type Layout struct {
	Width   int
	Height  int
	Offsets []image.Point
}

// ComputeLayout places images of the given sizes edge to edge. Horizontal
// mode grows along x and takes the tallest height; every other mode grows
// along y and takes the widest width. Images are top/left aligned.
func ComputeLayout(sizes []image.Point, mode types.Mode) Layout {
	layout := Layout{Offsets: make([]image.Point, len(sizes))}
	for i, sz := range sizes {
		if mode == types.ModeHorizontal {
			layout.Offsets[i] = image.Pt(layout.Width, 0)
			layout.Width += sz.X
			layout.Height = max(layout.Height, sz.Y)
		} else {
			layout.Offsets[i] = image.Pt(0, layout.Height)
			layout.Height += sz.Y
			layout.Width = max(layout.Width, sz.X)
		}
	}
	return layout
}

var (
	errImageTooLarge  = errors.New("image too large")
	errCanvasTooLarge = errors.New("stitched image too large")
)

// decodeImage reads and decodes one image, applying JPEG EXIF orientation.
// The header is checked against maxPixels first so a tiny file declaring
// huge dimensions is rejected without allocating its pixels.
func decodeImage(fs afero.Fs, path string, maxPixels int64) (image.Image, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return applyEXIFOrientation(data, img), nil
}

func (e *Engine) mergeImages(files []string, mode types.Mode) (string, error) {
	var images []image.Image
	for _, p := range files {
		img, err := decodeImage(e.fs, p, e.cfg.MaxImagePixels)
		if err != nil {
			slog.Warn("skipping undecodable image", "path", p, "error", err)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return "", fail(FailureDecode, errors.New("no decodable images"))
	}

	sizes := make([]image.Point, len(images))
	for i, img := range images {
		sizes[i] = img.Bounds().Size()
	}
	layout := ComputeLayout(sizes, mode)
	if int64(layout.Width)*int64(layout.Height) > e.cfg.MaxCanvasPixels {
		return "", fail(FailureEncode, fmt.Errorf("%w: %dx%d", errCanvasTooLarge, layout.Width, layout.Height))
	}

	canvas := Compose(images, layout)

	out := filepath.Join(filepath.Dir(files[0]), mergedImageName)
	if err := e.writeJPEG(out, canvas); err != nil {
		return "", fail(FailureEncode, err)
	}
	return out, nil
}

// Compose draws images onto an opaque white canvas at the layout offsets.
func Compose(images []image.Image, layout Layout) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for i, img := range images {
		b := img.Bounds()
		dst := image.Rectangle{Min: layout.Offsets[i], Max: layout.Offsets[i].Add(b.Size())}
		draw.Draw(canvas, dst, img, b.Min, draw.Over)
	}
	return canvas
}

func (e *Engine) writeJPEG(path string, img image.Image) error {
	tmp := path + ".tmp"
	f, err := e.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: e.cfg.JPEGQuality}); err != nil {
		f.Close()
		e.fs.Remove(tmp)
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := f.Close(); err != nil {
		e.fs.Remove(tmp)
		return fmt.Errorf("close output: %w", err)
	}
	if err := e.fs.Rename(tmp, path); err != nil {
		e.fs.Remove(tmp)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
