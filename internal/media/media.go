package media

import (
	"context"
	"fmt"
	"strings"
)

// Kind distinguishes the two capture paths.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// MaxFileSizeBytes is the hard ceiling for any uploaded blob (5 MiB).
const MaxFileSizeBytes = 5 * 1024 * 1024

const (
	mimeJPEG = "image/jpeg"
	mimeHEIC = "image/heic"
	mimeHEIF = "image/heif"
)

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

var supportedAudioTypes = map[string]bool{
	"audio/webm": true,
	"audio/mp4":  true,
	"audio/mpeg": true,
	"audio/ogg":  true,
	"audio/wav":  true,
}

// RawMedia is an uploaded blob exactly as received. It lives only for the
// duration of one extraction request.
type RawMedia struct {
	Data     []byte
	MIMEType string
}

// PreparedMedia is RawMedia after normalization: images are JPEG/PNG/GIF/WEBP
// bounded to the compression target, audio passes through unchanged.
type PreparedMedia struct {
	Data     []byte
	MIMEType string
}

// Size returns the byte length of the raw blob.
func (r RawMedia) Size() int64 { return int64(len(r.Data)) }

// Preparer validates and normalizes uploaded media.
type Preparer struct {
	converter  *HEICConverter
	compressor *Compressor
}

// NewPreparer creates a Preparer with default conversion and compression
// settings.
func NewPreparer() *Preparer {
	return &Preparer{
		converter:  NewHEICConverter(),
		compressor: NewCompressor(),
	}
}

// Validate checks the declared MIME type and size against the supported set
// for the given kind. It never reads the payload.
func (p *Preparer) Validate(mimeType string, size int64, kind Kind) error {
	if size > MaxFileSizeBytes {
		return &ValidationError{
			Reason: "size",
			Detail: fmt.Sprintf("%d bytes exceeds the %d byte limit", size, MaxFileSizeBytes),
		}
	}

	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch kind {
	case KindAudio:
		if !supportedAudioTypes[mt] {
			return &ValidationError{Reason: "type", Detail: fmt.Sprintf("unsupported audio type %q", mimeType)}
		}
	default:
		if !supportedImageTypes[mt] {
			return &ValidationError{Reason: "type", Detail: fmt.Sprintf("unsupported image type %q", mimeType)}
		}
	}
	return nil
}

// Prepare validates and normalizes raw media for upload and inference.
// HEIC/HEIF images are converted to JPEG, then any image is compressed to the
// target byte budget. Audio passes through after validation.
func (p *Preparer) Prepare(ctx context.Context, raw RawMedia, kind Kind) (PreparedMedia, error) {
	if err := p.Validate(raw.MIMEType, raw.Size(), kind); err != nil {
		return PreparedMedia{}, err
	}

	if kind == KindAudio {
		return PreparedMedia{Data: raw.Data, MIMEType: strings.ToLower(raw.MIMEType)}, nil
	}

	data := raw.Data
	mimeType := strings.ToLower(raw.MIMEType)

	if mimeType == mimeHEIC || mimeType == mimeHEIF {
		converted, err := p.converter.Convert(ctx, data)
		if err != nil {
			return PreparedMedia{}, err
		}
		data = converted
		mimeType = mimeJPEG
	}

	compressed, outType, err := p.compressor.Compress(data, mimeType)
	if err != nil {
		return PreparedMedia{}, err
	}

	return PreparedMedia{Data: compressed, MIMEType: outType}, nil
}
