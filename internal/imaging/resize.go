// Package imaging produces scaled JPEG renditions of uploaded pictures.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// ThumbWidth is the pixel width of gallery thumbnails.
	ThumbWidth = 200
	// SwipeWidth is the pixel width of the full-screen swipe rendition.
	SwipeWidth = 1600

	defaultQuality = 85
)

// Resizer turns raw image bytes into a fixed-width JPEG rendition.
type Resizer interface {
	ResizeToWidth(data []byte, width int) ([]byte, error)
}

// JPEGResizer scales JPEG images with Catmull-Rom interpolation, preserving
// aspect ratio.
type JPEGResizer struct {
	// Quality is the JPEG encoder quality, 1..100. Zero selects the default.
	Quality int
}

func (r JPEGResizer) ResizeToWidth(data []byte, width int) ([]byte, error) {
	if width < 1 {
		return nil, fmt.Errorf("target width %d out of range", width)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if format != "jpeg" {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}

	bounds := src.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, fmt.Errorf("empty image")
	}
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	quality := r.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
