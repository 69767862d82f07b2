// Package stream runs the background loops that move PCM between an audio
// device and a recording file. Each handle owns its device and file; the
// caller only flips the run flag and waits for the loop to exit.
package stream

import (
	"github.com/audiolibrelab/pcmrecorder/internal/audio"
)

const (
	DefaultBufferBytes          = 4096
	DefaultMaxConsecutiveErrors = 50
)

// Options tunes a stream. Zero values fall back to the defaults.
type Options struct {
	Format               audio.Format
	BufferBytes          int
	MaxConsecutiveErrors int
}

func (o Options) withDefaults() Options {
	if o.Format == (audio.Format{}) {
		o.Format = audio.PCM16Mono44k
	}
	if o.BufferBytes <= 0 {
		o.BufferBytes = DefaultBufferBytes
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return o
}
