package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/pcmrecorder/internal/audio"
)

// fakeBackend hands out pre-built devices
type fakeBackend struct {
	input     audio.InputDevice
	output    audio.OutputDevice
	inputErr  error
	outputErr error
}

func (b *fakeBackend) OpenInput(audio.Format) (audio.InputDevice, error) {
	if b.inputErr != nil {
		return nil, b.inputErr
	}
	return b.input, nil
}

func (b *fakeBackend) OpenOutput(audio.Format) (audio.OutputDevice, error) {
	if b.outputErr != nil {
		return nil, b.outputErr
	}
	return b.output, nil
}

func (b *fakeBackend) ListSources() ([]string, error) { return nil, nil }

func (b *fakeBackend) GetType() audio.BackendType { return audio.BackendTypeNull }

// scriptedInput answers the i-th Read (0 based) with script(i, p). Once the
// device is closed every Read fails with ErrDeviceClosed.
type scriptedInput struct {
	mu     sync.Mutex
	calls  int
	script func(call int, p []byte) (int, error)
	closed atomic.Bool
}

func (d *scriptedInput) Read(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, audio.ErrDeviceClosed
	}
	d.mu.Lock()
	call := d.calls
	d.calls++
	d.mu.Unlock()

	time.Sleep(time.Millisecond)
	return d.script(call, p)
}

func (d *scriptedInput) Close() error {
	d.closed.Store(true)
	return nil
}

// fullBuffers returns n full reads of 0x01 bytes followed by empty reads
func fullBuffers(n int) func(int, []byte) (int, error) {
	return func(call int, p []byte) (int, error) {
		if call >= n {
			return 0, nil
		}
		for i := range p {
			p[i] = 0x01
		}
		return len(p), nil
	}
}

var errXrun = errors.New("overrun")

// recordingOutput collects written bytes and can be slowed or broken
type recordingOutput struct {
	mu      sync.Mutex
	data    []byte
	delay   time.Duration
	failAt  int
	writes  int
	drained atomic.Bool
	closed  atomic.Bool
}

func (d *recordingOutput) Write(p []byte) (int, error) {
	if d.closed.Load() {
		return 0, audio.ErrDeviceClosed
	}
	d.mu.Lock()
	d.writes++
	writes := d.writes
	d.mu.Unlock()

	if d.failAt > 0 && writes >= d.failAt {
		return 0, audio.ErrDeviceClosed
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	d.data = append(d.data, p...)
	d.mu.Unlock()
	return len(p), nil
}

func (d *recordingOutput) Drain() error {
	d.drained.Store(true)
	return nil
}

func (d *recordingOutput) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *recordingOutput) bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...)
}
