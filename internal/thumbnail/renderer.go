// Package thumbnail renders a JPEG preview of a PDF's first page.
//
// Rasterisation is delegated to an external command (poppler's pdftoppm by
// default); this package only scales and re-encodes the result.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"literature-manager/internal/config"
)

var ErrDisabled = errors.New("thumbnail rendering disabled")

// Renderer produces a JPEG thumbnail for the PDF at pdfPath.
type Renderer interface {
	Render(ctx context.Context, pdfPath string) ([]byte, error)
}

// CommandRenderer shells out to a pdftoppm-compatible rasteriser.
type CommandRenderer struct {
	enabled bool
	command string
	width   int
	height  int
	quality int
	timeout time.Duration
}

func NewCommandRenderer(cfg config.ThumbnailConfig) *CommandRenderer {
	r := &CommandRenderer{
		enabled: cfg.Enabled,
		command: cfg.Command,
		width:   cfg.Width,
		height:  cfg.Height,
		quality: cfg.Quality,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	if r.width <= 0 {
		r.width = 400
	}
	if r.height <= 0 {
		r.height = 300
	}
	if r.quality <= 0 || r.quality > 100 {
		r.quality = 85
	}
	if r.timeout <= 0 {
		r.timeout = 30 * time.Second
	}
	return r
}

func (r *CommandRenderer) Render(ctx context.Context, pdfPath string) ([]byte, error) {
	if !r.enabled || r.command == "" {
		return nil, ErrDisabled
	}

	tmpDir, err := os.MkdirTemp("", "thumb-*")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail temp dir failed: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	prefix := filepath.Join(tmpDir, "page")
	// Rasterise at twice the target box so the downscale stays sharp.
	scale := 2 * max(r.width, r.height)
	cmd := exec.CommandContext(ctx, r.command,
		"-f", "1", "-l", "1", "-singlefile", "-png",
		"-scale-to", fmt.Sprint(scale),
		pdfPath, prefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rasterise first page failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	raw, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rasterised page failed: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode rasterised page failed: %w", err)
	}
	return EncodeJPEG(Fit(img, r.width, r.height), r.quality)
}

// Fit scales img so it fits inside maxW x maxH, keeping its aspect ratio.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	dw := max(1, int(float64(w)*scale+0.5))
	dh := max(1, int(float64(h)*scale+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail failed: %w", err)
	}
	return buf.Bytes(), nil
}
