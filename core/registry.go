package core

import "sync"

// DefaultRegistry is the codec table the pipeline consults at both ends of a
// job: the orchestrator resolves the sniffed input format to a Decoder before
// any pixels move, and the encode steps resolve the plan's output format to
// an Encoder.  Registration is last-wins per format, which is how the libvips
// backend takes over JPEG/PNG/WebP from the pure-Go codecs at startup.
// Safe for concurrent use; lookups vastly outnumber registrations.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	encoders map[Format]Encoder
}

// NewRegistry returns a registry with no codecs bound.  The facade populates
// it with the pure-Go codecs; callers may re-register formats afterwards.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[Format]Decoder),
		encoders: make(map[Format]Encoder),
	}
}

// RegisterDecoder binds d as the decoder for f, replacing any previous one.
func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	r.decoders[f] = d
	r.mu.Unlock()
}

// RegisterEncoder binds e as the encoder for f, replacing any previous one.
func (r *DefaultRegistry) RegisterEncoder(f Format, e Encoder) {
	r.mu.Lock()
	r.encoders[f] = e
	r.mu.Unlock()
}

// DecoderFor returns the decoder bound to the sniffed input format.
func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	d, ok := r.decoders[f]
	r.mu.RUnlock()
	return d, ok
}

// EncoderFor returns the encoder bound to a plan's output format.
func (r *DefaultRegistry) EncoderFor(f Format) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[f]
	r.mu.RUnlock()
	return e, ok
}

var _ Registry = (*DefaultRegistry)(nil)
