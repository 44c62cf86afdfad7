package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
)

func TestPreparerValidate(t *testing.T) {
	p := NewPreparer()

	tests := []struct {
		name       string
		mimeType   string
		size       int64
		kind       Kind
		wantReason string
	}{
		{name: "valid jpeg", mimeType: "image/jpeg", size: 1024, kind: KindImage},
		{name: "valid heic", mimeType: "image/heic", size: 4 * 1024 * 1024, kind: KindImage},
		{name: "valid webm audio", mimeType: "audio/webm", size: 1024, kind: KindAudio},
		{name: "mixed case type", mimeType: "IMAGE/PNG", size: 1024, kind: KindImage},
		{name: "over size ceiling", mimeType: "image/jpeg", size: MaxFileSizeBytes + 1, kind: KindImage, wantReason: "size"},
		{name: "audio over size ceiling", mimeType: "audio/webm", size: MaxFileSizeBytes + 1, kind: KindAudio, wantReason: "size"},
		{name: "unsupported image type", mimeType: "image/tiff", size: 1024, kind: KindImage, wantReason: "type"},
		{name: "unsupported audio type", mimeType: "audio/flac", size: 1024, kind: KindAudio, wantReason: "type"},
		{name: "audio type on image path", mimeType: "audio/webm", size: 1024, kind: KindImage, wantReason: "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Validate(tt.mimeType, tt.size, tt.kind)
			if tt.wantReason == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Reason != tt.wantReason {
				t.Errorf("ValidationError.Reason = %q, want %q", verr.Reason, tt.wantReason)
			}
		})
	}
}

func TestStartQuality(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{512 * 1024, 75},
		{tierSmallBytes, 75},
		{tierSmallBytes + 1, 65},
		{tierMediumBytes, 65},
		{tierMediumBytes + 1, 50},
		{4 * 1024 * 1024, 50},
	}

	for _, tt := range tests {
		if got := startQuality(tt.size); got != tt.want {
			t.Errorf("startQuality(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestHEICConverter_RejectsUndecodableInput(t *testing.T) {
	c := NewHEICConverter()

	_, err := c.Convert(context.Background(), []byte("not a heic payload"))

	var cerr *ConversionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Convert() error = %v, want *ConversionError", err)
	}
}

var jpegMagic = []byte{0xff, 0xd8}

func TestHEICConverter_EncodeConvergesToTarget(t *testing.T) {
	c := NewHEICConverter()

	out, err := c.encodeBounded(context.Background(), noiseImage(64, 64), 75)
	if err != nil {
		t.Fatalf("encodeBounded() error = %v", err)
	}
	if len(out) > c.targetBytes {
		t.Errorf("encodeBounded() output = %d bytes, want <= %d", len(out), c.targetBytes)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		t.Error("encodeBounded() output is not a JPEG")
	}
}

func TestHEICConverter_FloorKeepsSmallestAttempt(t *testing.T) {
	// An unreachable target forces the descent all the way to the floor.
	c := &HEICConverter{
		targetBytes: 1,
		qualityMin:  convertQualityMin,
		maxAttempts: convertMaxAttempts,
	}
	img := noiseImage(256, 256)

	out, err := c.encodeBounded(context.Background(), img, 50)
	if err != nil {
		t.Fatalf("encodeBounded() error = %v", err)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		t.Error("encodeBounded() output is not a JPEG")
	}

	// Starting at 50 the loop attempts qualities 50, 40 and 30, then
	// stops at the floor. The smallest of those attempts must win.
	smallest := -1
	for _, q := range []int{50, 40, 30} {
		enc, err := encodeJPEG(img, q)
		if err != nil {
			t.Fatalf("encodeJPEG(%d) error = %v", q, err)
		}
		if smallest < 0 || len(enc) < smallest {
			smallest = len(enc)
		}
	}
	if len(out) != smallest {
		t.Errorf("encodeBounded() = %d bytes, want smallest attempt %d", len(out), smallest)
	}
}

// noiseImage produces an image that resists JPEG compression so the
// compressor has real work to do.
func noiseImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func TestCompressor_PassThroughUnderTarget(t *testing.T) {
	c := NewCompressor()
	data := []byte("small payload")

	out, mimeType, err := c.Compress(data, "image/png")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("Compress() modified a payload already under the target")
	}
	if mimeType != "image/png" {
		t.Errorf("Compress() mimeType = %q, want image/png", mimeType)
	}
}

func TestCompressor_BoundsLargeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, noiseImage(1200, 1200), imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	if buf.Len() <= compressTargetBytes {
		t.Skipf("fixture too small to exercise compression: %d bytes", buf.Len())
	}

	c := NewCompressor()
	out, mimeType, err := c.Compress(buf.Bytes(), "image/jpeg")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(out) > compressTargetBytes {
		t.Errorf("Compress() output = %d bytes, want <= %d", len(out), compressTargetBytes)
	}
	if mimeType != "image/jpeg" {
		t.Errorf("Compress() mimeType = %q, want image/jpeg", mimeType)
	}
}

func TestCompressor_NeverReturnsUnencodedBytes(t *testing.T) {
	// A tiny PNG whose JPEG re-encodings are all larger than the input.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), imaging.PNG); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	c := &Compressor{targetBytes: 1}
	out, mimeType, err := c.Compress(buf.Bytes(), "image/png")
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if mimeType != mimeJPEG {
		t.Errorf("Compress() mimeType = %q, want %q", mimeType, mimeJPEG)
	}
	if !bytes.HasPrefix(out, jpegMagic) {
		t.Errorf("Compress() returned non-JPEG bytes labeled %q", mimeType)
	}
}

func TestCompressor_RejectsUndecodableInput(t *testing.T) {
	c := NewCompressor()
	junk := bytes.Repeat([]byte{0xde, 0xad}, compressTargetBytes)

	_, _, err := c.Compress(junk, "image/jpeg")

	var cerr *CompressionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Compress() error = %v, want *CompressionError", err)
	}
}

func TestPreparer_AudioPassThrough(t *testing.T) {
	p := NewPreparer()
	raw := RawMedia{Data: []byte("opus frames"), MIMEType: "audio/webm"}

	prepared, err := p.Prepare(context.Background(), raw, KindAudio)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if !bytes.Equal(prepared.Data, raw.Data) {
		t.Error("Prepare() modified audio payload")
	}
	if prepared.MIMEType != "audio/webm" {
		t.Errorf("Prepare() mimeType = %q, want audio/webm", prepared.MIMEType)
	}
}

func TestPreparer_RejectsOversizeBeforeProcessing(t *testing.T) {
	p := NewPreparer()
	raw := RawMedia{Data: make([]byte, MaxFileSizeBytes+1), MIMEType: "image/jpeg"}

	_, err := p.Prepare(context.Background(), raw, KindImage)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Prepare() error = %v, want *ValidationError", err)
	}
	if verr.Reason != "size" {
		t.Errorf("ValidationError.Reason = %q, want size", verr.Reason)
	}
}
