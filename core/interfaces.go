package core

import (
	"context"
	"image"
	"io"
)

// Decoder converts raw bytes / a reader into an in-memory ImageData.
// Implementations live in adapters/decoder/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations live in adapters/encoder/.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality  int  // 1-100; 0 = use encoder default; ignored for lossless formats
	Lossless bool // WebP / PNG lossless mode

	// Interlaced requests progressive JPEG / interlaced PNG output.  Only
	// the libvips backend honors it; the pure-Go encoders ignore it because
	// the standard library codecs cannot emit progressive streams.
	Interlaced bool
}

// GoImager is implemented by backend-native pixel buffers (such as libvips
// handles) that can produce a standard image.Image copy of their contents.
// The pure-Go steps and encoders use it to bridge buffers they cannot
// operate on directly.
type GoImager interface {
	GoImage() (image.Image, error)
}

// StepBackend is implemented by codec backends whose decoded buffers are not
// image.Image values.  The planner substitutes these native steps for the
// pure-Go scale and sharpen passes when the source was decoded by such a
// backend.
type StepBackend interface {
	NativeScaleStep(targetW, targetH int, tier QualityTier) Step
	NativeSharpenStep(intensity float64) Step
}

// Workspace is a job-private temporary storage scope for intermediate
// artifacts.  It is guaranteed released when the owning job terminates,
// on every exit path including failure and cancellation.
type Workspace interface {
	// Store persists an artifact under the scope.
	Store(ctx context.Context, name string, data []byte) error
	// Open retrieves a previously stored artifact.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Close deletes the scope and everything stored within it.
	Close() error
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordDegradation(mode string)
	RecordError(stepName string, kind string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}
