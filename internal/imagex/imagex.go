// Package imagex prepares images for encryption: decoding and re-encoding
// drops EXIF and every other metadata block, and an optional recompression
// pass bounds the encoded size. Non-images pass through untouched.
package imagex

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"
)

const (
	defaultJPEGQuality = 95
	minJPEGQuality     = 30
	qualityStep        = 10
)

// Options control preprocessing. Zero value means pass-through.
type Options struct {
	StripExif bool
	Reencode  bool
	// MaxSizeMB bounds the re-encoded size when Reencode is set.
	MaxSizeMB float64
}

// IsImage reports whether the declared mime type is an image.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// Process applies the configured preprocessing. Best-effort: content that
// cannot be decoded as an image is returned unchanged, matching the
// treat-as-opaque behavior for non-images.
func Process(data []byte, mimeType string, opts Options) ([]byte, error) {
	if !IsImage(mimeType) || (!opts.StripExif && !opts.Reencode) {
		return data, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, nil
	}

	switch format {
	case "jpeg":
		if opts.Reencode && opts.MaxSizeMB > 0 {
			return compressJPEG(img, int(opts.MaxSizeMB*1024*1024))
		}
		return encodeJPEG(img, defaultJPEGQuality)
	case "png":
		// Re-encoding drops ancillary chunks (tEXt, eXIf and friends).
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		// Formats we cannot re-encode stay as-is.
		return data, nil
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// compressJPEG walks the quality down until the result fits maxBytes or the
// quality floor is reached, then returns the smallest attempt.
func compressJPEG(img image.Image, maxBytes int) ([]byte, error) {
	var best []byte
	for quality := defaultJPEGQuality; quality >= minJPEGQuality; quality -= qualityStep {
		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
		best = encoded
		if len(encoded) <= maxBytes {
			break
		}
	}
	return best, nil
}
