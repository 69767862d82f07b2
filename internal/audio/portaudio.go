//go:build portaudio

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const portAudioFramesPerBuffer = 1024

// PortAudioBackend talks to the default PortAudio devices. It is only
// compiled with the portaudio build tag since it needs cgo and libportaudio.
type PortAudioBackend struct{}

func newPortAudioBackend() (Backend, error) {
	return &PortAudioBackend{}, nil
}

func (b *PortAudioBackend) OpenInput(f Format) (InputDevice, error) {
	if f.BytesPerSample != 2 {
		return nil, fmt.Errorf("portaudio backend supports 16-bit samples only")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]int16, portAudioFramesPerBuffer*f.Channels)
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), portAudioFramesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open mic: %v", ErrDeviceBusy, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start mic: %v", ErrDeviceBusy, err)
	}

	return &portAudioInput{stream: stream, buf: buf}, nil
}

func (b *PortAudioBackend) OpenOutput(f Format) (OutputDevice, error) {
	if f.BytesPerSample != 2 {
		return nil, fmt.Errorf("portaudio backend supports 16-bit samples only")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	buf := make([]int16, portAudioFramesPerBuffer*f.Channels)
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), portAudioFramesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open speaker: %v", ErrDeviceBusy, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start speaker: %v", ErrDeviceBusy, err)
	}

	return &portAudioOutput{stream: stream, buf: buf}, nil
}

func (b *PortAudioBackend) ListSources() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}

	var sources []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			sources = append(sources, d.Name)
		}
	}
	return sources, nil
}

func (b *PortAudioBackend) GetType() BackendType {
	return BackendTypePortAudio
}

type portAudioInput struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	pending []byte
	closed  bool
}

func (d *portAudioInput) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}

	if len(d.pending) == 0 {
		if err := d.stream.Read(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrDeviceClosed, err)
		}
		out := make([]byte, len(d.buf)*2)
		for i, s := range d.buf {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		d.pending = out
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *portAudioInput) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.stream.Stop()
	d.stream.Close()
	return portaudio.Terminate()
}

type portAudioOutput struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	filled int
	odd    []byte
	closed bool
}

func (d *portAudioOutput) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDeviceClosed
	}

	data := p
	if len(d.odd) > 0 {
		data = append(d.odd, p...)
		d.odd = nil
	}

	for len(data) >= 2 {
		d.buf[d.filled] = int16(binary.LittleEndian.Uint16(data))
		d.filled++
		data = data[2:]
		if d.filled == len(d.buf) {
			if err := d.flush(); err != nil {
				return 0, err
			}
		}
	}
	if len(data) > 0 {
		d.odd = append(d.odd, data...)
	}
	return len(p), nil
}

func (d *portAudioOutput) flush() error {
	if err := d.stream.Write(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceClosed, err)
	}
	d.filled = 0
	return nil
}

// Drain pads the last partial buffer with silence and plays it
func (d *portAudioOutput) Drain() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || d.filled == 0 {
		return nil
	}
	clear(d.buf[d.filled:])
	return d.flush()
}

func (d *portAudioOutput) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.stream.Stop()
	d.stream.Close()
	return portaudio.Terminate()
}
