package audio

import (
	"sync/atomic"
	"time"
)

// NullBackend produces silence and discards playback. With realtime set it
// paces reads and writes at the format's byte rate, which makes it usable
// as a headless stand-in for real hardware.
type NullBackend struct {
	realtime bool
}

func NewNullBackend(realtime bool) *NullBackend {
	return &NullBackend{realtime: realtime}
}

func (n *NullBackend) OpenInput(f Format) (InputDevice, error) {
	return &nullInput{format: f, realtime: n.realtime}, nil
}

func (n *NullBackend) OpenOutput(f Format) (OutputDevice, error) {
	return &nullOutput{format: f, realtime: n.realtime}, nil
}

func (n *NullBackend) ListSources() ([]string, error) {
	return []string{"null:silence"}, nil
}

func (n *NullBackend) GetType() BackendType {
	return BackendTypeNull
}

type nullInput struct {
	format   Format
	realtime bool
	closed   atomic.Bool
}

func (d *nullInput) Read(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}
	n := d.format.AlignDown(len(p))
	clear(p[:n])
	if d.realtime {
		time.Sleep(d.format.Duration(int64(n)))
	}
	return n, nil
}

func (d *nullInput) Close() error {
	d.closed.Store(true)
	return nil
}

type nullOutput struct {
	format   Format
	realtime bool
	closed   atomic.Bool
}

func (d *nullOutput) Write(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, ErrDeviceClosed
	}
	if d.realtime {
		time.Sleep(d.format.Duration(int64(len(p))))
	}
	return len(p), nil
}

func (d *nullOutput) Drain() error {
	return nil
}

func (d *nullOutput) Close() error {
	d.closed.Store(true)
	return nil
}
