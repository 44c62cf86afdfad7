package media

import "fmt"

// ValidationError reports media that was rejected before any processing.
// Reason is "size" or "type" so callers can show the right message.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("media validation failed (%s): %s", e.Reason, e.Detail)
}

// ConversionError reports a HEIC/HEIF image that could not be decoded or
// re-encoded as JPEG at any quality level.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("media conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CompressionError reports an image payload the generic compressor could not
// process.
type CompressionError struct {
	Err error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("media compression failed: %v", e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }
