// Package frame normalizes captured frames into size-bounded JPEGs.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Registered decoders for frames from snapshot endpoints.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Normalizer decodes a frame, optionally downsizes it and re-encodes it as a
// JPEG. It implements capture.Encoder.
type Normalizer struct {
	// Quality is the JPEG quality, 1-100. Zero means DefaultQuality.
	Quality int

	// MaxWidth downsizes wider frames, keeping the aspect ratio. Zero
	// disables resizing.
	MaxWidth int
}

// Encode implements capture.Encoder.
func (n Normalizer) Encode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty frame")
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	resized := false
	if n.MaxWidth > 0 && img.Bounds().Dx() > n.MaxWidth {
		img = Resize(img, n.MaxWidth)
		resized = true
	}

	// Pass JPEGs through untouched when nothing about them would change.
	if format == "jpeg" && !resized && n.Quality == 0 {
		return raw, nil
	}

	q := n.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Resize scales img to width, preserving the aspect ratio.
func Resize(img image.Image, width int) image.Image {
	b := img.Bounds()
	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
