package gzstream

import (
	"github.com/rs/zerolog"
)

const (
	// DefaultChunkSize is the initial size of each read buffer slot. Slots
	// grow while the file is read sequentially.
	DefaultChunkSize = 16 * 1024

	// MaxChunkSize caps the growth of read buffer slots.
	MaxChunkSize = DefaultChunkSize * 1024

	// DefaultSpan is the spacing, in decompressed bytes, between two
	// consecutive entries of the seek index.
	DefaultSpan = 1 << 20

	// DefaultOutputSize is the size of the decompressed output buffer.
	DefaultOutputSize = 32 * 1024
)

type options struct {
	chunkSize    int
	maxChunkSize int
	span         int64
	outputSize   int
	log          zerolog.Logger
}

func defaultOptions() options {
	return options{
		chunkSize:    DefaultChunkSize,
		maxChunkSize: MaxChunkSize,
		span:         DefaultSpan,
		outputSize:   DefaultOutputSize,
		log:          zerolog.Nop(),
	}
}

// Option configures a FileReader, an InflateReader or a Stream.
type Option func(*options)

// WithChunkSize sets the initial (and minimum) size of a read buffer slot.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithMaxChunkSize sets the size read buffer slots can grow to.
func WithMaxChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxChunkSize = n
		}
	}
}

// WithSpan sets the distance, in decompressed bytes, between index entries.
// Smaller spans make seeks cheaper and the index bigger: each entry holds a
// full copy of the decompressor, about 45KB.
func WithSpan(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.span = n
		}
	}
}

// WithOutputSize sets the size of the decompressed output buffer.
func WithOutputSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outputSize = n
		}
	}
}

// WithLogger sets the logger used to report index builds, buffer resizing
// and decoding failures. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxChunkSize < o.chunkSize {
		o.maxChunkSize = o.chunkSize
	}
	return o
}
