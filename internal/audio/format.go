package audio

import "time"

// Format describes an uncompressed linear PCM stream
type Format struct {
	SampleRate     int
	BytesPerSample int
	Channels       int
}

// PCM16Mono44k is the only format recordings are stored in:
// 44.1 kHz, 16-bit signed little-endian, mono, no header.
var PCM16Mono44k = Format{
	SampleRate:     44100,
	BytesPerSample: 2,
	Channels:       1,
}

// FrameSize is the number of bytes for one sample across all channels
func (f Format) FrameSize() int {
	return f.BytesPerSample * f.Channels
}

// ByteRate is the number of bytes per second of audio
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// BitDepth returns the sample size in bits
func (f Format) BitDepth() int {
	return f.BytesPerSample * 8
}

// Duration converts a byte count to playback time. It is only exact
// because the format is fixed and uncompressed.
func (f Format) Duration(bytes int64) time.Duration {
	rate := int64(f.ByteRate())
	if rate <= 0 || bytes <= 0 {
		return 0
	}
	return time.Duration(bytes * int64(time.Second) / rate)
}

// AlignDown rounds n down to a whole number of frames
func (f Format) AlignDown(n int) int {
	fs := f.FrameSize()
	if fs <= 1 {
		return n
	}
	return n - n%fs
}

// AlignDown64 is AlignDown for file sizes
func (f Format) AlignDown64(n int64) int64 {
	fs := int64(f.FrameSize())
	if fs <= 1 {
		return n
	}
	return n - n%fs
}

// BufferSize returns a frame-aligned buffer size of at most requested bytes
// and at least one frame.
func (f Format) BufferSize(requested int) int {
	n := f.AlignDown(requested)
	if n < f.FrameSize() {
		return f.FrameSize()
	}
	return n
}
