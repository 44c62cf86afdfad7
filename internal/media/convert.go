package media

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

// HEIC → JPEG conversion targets. The loop starts at a quality chosen by the
// input size tier and walks down until the output fits the target or the
// floor is reached; the smallest attempt wins either way.
const (
	convertTargetBytes = 800 * 1024
	convertQualityStep = 10
	convertQualityMin  = 30
	convertMaxAttempts = 5
)

// Input size tiers for the starting quality.
const (
	tierSmallBytes  = 1 * 1024 * 1024
	tierMediumBytes = 2*1024*1024 + 512*1024
)

// HEICConverter converts HEIC/HEIF payloads into size-bounded JPEGs.
type HEICConverter struct {
	targetBytes int
	qualityMin  int
	maxAttempts int
}

// NewHEICConverter creates a converter with the default target and bounds.
func NewHEICConverter() *HEICConverter {
	return &HEICConverter{
		targetBytes: convertTargetBytes,
		qualityMin:  convertQualityMin,
		maxAttempts: convertMaxAttempts,
	}
}

// startQuality picks the initial JPEG quality from the input size: larger
// inputs start lower so fewer attempts are wasted.
func startQuality(inputSize int) int {
	switch {
	case inputSize <= tierSmallBytes:
		return 75
	case inputSize <= tierMediumBytes:
		return 65
	default:
		return 50
	}
}

// Convert decodes a HEIC/HEIF payload and re-encodes it as JPEG, lowering
// quality step by step until the output is at or below the target size or the
// quality floor is hit. The best (smallest) attempt is returned; a
// ConversionError means no attempt decoded or encoded at all.
func (c *HEICConverter) Convert(ctx context.Context, data []byte) ([]byte, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ConversionError{Err: fmt.Errorf("decode heic: %w", err)}
	}
	return c.encodeBounded(ctx, img, startQuality(len(data)))
}

// encodeBounded runs the quality-descent loop over an already-decoded image.
func (c *HEICConverter) encodeBounded(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	var best []byte

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &ConversionError{Err: err}
		}

		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, &ConversionError{Err: fmt.Errorf("encode jpeg at quality %d: %w", quality, err)}
		}
		if best == nil || len(encoded) < len(best) {
			best = encoded
		}
		if len(best) <= c.targetBytes || quality <= c.qualityMin {
			break
		}

		quality -= convertQualityStep
		if quality < c.qualityMin {
			quality = c.qualityMin
		}
	}

	return best, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
