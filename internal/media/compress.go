package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Compression target for any image payload before upload (~0.7 MB), matching
// the byte budget the inference side is comfortable with.
const (
	compressTargetBytes = 700 * 1024
	compressMaxAttempts = 6
	compressQualityMax  = 85
	compressQualityMin  = 40
	compressScaleFactor = 0.8
)

// Compressor bounds image payloads to a maximum byte size. Payloads already
// under the target pass through untouched; anything larger is re-encoded as
// JPEG with descending quality, then progressively downscaled.
type Compressor struct {
	targetBytes int
}

// NewCompressor creates a compressor with the default target size.
func NewCompressor() *Compressor {
	return &Compressor{targetBytes: compressTargetBytes}
}

// Compress returns a payload at or below the target size and its MIME type.
// The output type is the input type for pass-through payloads and image/jpeg
// for anything re-encoded.
func (c *Compressor) Compress(data []byte, mimeType string) ([]byte, string, error) {
	if len(data) <= c.targetBytes {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", &CompressionError{Err: fmt.Errorf("decode image: %w", err)}
	}

	quality := compressQualityMax
	width := img.Bounds().Dx()
	// Only re-encoded attempts may win: the output is labeled image/jpeg,
	// so the original bytes must never be returned from here.
	var best []byte

	for attempt := 0; attempt < compressMaxAttempts; attempt++ {
		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, "", &CompressionError{Err: fmt.Errorf("encode jpeg at quality %d: %w", quality, err)}
		}
		if best == nil || len(encoded) < len(best) {
			best = encoded
		}
		if len(best) <= c.targetBytes {
			return best, mimeJPEG, nil
		}

		// Lower quality first; once at the floor, shrink the image instead.
		if quality > compressQualityMin {
			quality -= 15
			if quality < compressQualityMin {
				quality = compressQualityMin
			}
			continue
		}
		width = int(float64(width) * compressScaleFactor)
		if width < 1 {
			break
		}
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	return best, mimeJPEG, nil
}
