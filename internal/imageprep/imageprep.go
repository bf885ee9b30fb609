package imageprep

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register the screenshot decoder

	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/draw"
)

const (
	// MIMEType is the content type of transformed images.
	MIMEType = "image/jpeg"

	startQuality = 85
	minQuality   = 40
	qualityStep  = 10
	shrinkFactor = 0.9
)

var (
	// ErrDecode is returned when the source is not a decodable image.
	ErrDecode = errors.New("failed to decode image")

	// ErrEmptyImage is returned for empty input.
	ErrEmptyImage = errors.New("image is empty")
)

// Options bound the prepared image. Zero values disable a bound.
type Options struct {
	// MaxDimension is the longest allowed side in pixels.
	MaxDimension int

	// MaxBytes is the largest allowed encoded size.
	MaxBytes int
}

// Result is a prepared image.
type Result struct {
	Data    []byte
	Width   int
	Height  int
	Quality int
	// Digest is the BLAKE2b-256 hex digest of the source bytes.
	Digest string
}

// Digest returns the BLAKE2b-256 hex digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Transform fits and re-encodes raw image bytes.
func Transform(raw []byte, opts Options) (Result, error) {
	if len(raw) == 0 {
		return Result{}, ErrEmptyImage
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	img := fit(src, opts.MaxDimension)
	quality := startQuality
	for {
		data, err := encode(img, quality)
		if err != nil {
			return Result{}, err
		}
		b := img.Bounds()
		fits := opts.MaxBytes <= 0 || len(data) <= opts.MaxBytes
		if fits || (quality <= minQuality && !canShrink(b)) {
			return Result{Data: data, Width: b.Dx(), Height: b.Dy(), Quality: quality, Digest: Digest(raw)}, nil
		}
		if quality > minQuality {
			quality = max(minQuality, quality-qualityStep)
			continue
		}
		img = scale(img, int(float64(b.Dx())*shrinkFactor), int(float64(b.Dy())*shrinkFactor))
		quality = startQuality
	}
}

// fit scales src down so that neither side exceeds maxDim.
func fit(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return src
	}
	ratio := float64(maxDim) / float64(max(w, h))
	return scale(src, int(float64(w)*ratio), int(float64(h)*ratio))
}

func scale(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

func canShrink(b image.Rectangle) bool {
	return int(float64(b.Dx())*shrinkFactor) >= 1 && int(float64(b.Dy())*shrinkFactor) >= 1 &&
		(b.Dx() > 1 || b.Dy() > 1)
}

func encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
