package audio

import "errors"

// ErrDeviceClosed is returned by device reads and writes after the device
// went away (the capture process exited, the stream was closed, ...).
// Streams treat it as fatal.
var ErrDeviceClosed = errors.New("audio device closed")

// ErrDeviceBusy is returned by OpenInput/OpenOutput when the hardware is held
// by another client or absent.
var ErrDeviceBusy = errors.New("audio device busy or unavailable")

// InputDevice is an open hardware capture handle producing raw PCM bytes in
// the format it was opened with. Read blocks for at most one buffer's worth
// of audio.
type InputDevice interface {
	Read(p []byte) (int, error)
	Close() error
}

// OutputDevice is an open hardware render handle consuming raw PCM bytes.
type OutputDevice interface {
	Write(p []byte) (int, error)
	// Drain blocks until everything written so far has been played
	Drain() error
	Close() error
}
