package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by WrapWAV
const WAVHeaderSize = 44

const wavPCMFormat = 1

// WrapWAV copies the headerless PCM payload from src into dst, preceded by a
// canonical 44-byte WAV header describing f. The header sizes are patched on
// completion, so dst must be seekable.
func WrapWAV(dst io.WriteSeeker, src io.Reader, f Format) (int64, error) {
	if f.BytesPerSample != 2 {
		return 0, fmt.Errorf("unsupported sample size for WAV wrap: %d bytes", f.BytesPerSample)
	}

	enc := wav.NewEncoder(dst, f.SampleRate, f.BitDepth(), f.Channels, wavPCMFormat)
	bufFormat := &goaudio.Format{
		SampleRate:  f.SampleRate,
		NumChannels: f.Channels,
	}

	raw := make([]byte, f.BufferSize(32*1024))
	ints := &goaudio.IntBuffer{
		Format:         bufFormat,
		SourceBitDepth: f.BitDepth(),
	}

	var total int64
	pending := 0
	wroteAny := false
	for {
		n, readErr := src.Read(raw[pending:])
		n += pending
		aligned := f.AlignDown(n)

		if aligned > 0 {
			samples := aligned / f.BytesPerSample
			if cap(ints.Data) < samples {
				ints.Data = make([]int, samples)
			}
			ints.Data = ints.Data[:samples]
			for i := 0; i < samples; i++ {
				ints.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
			}
			if err := enc.Write(ints); err != nil {
				return total, fmt.Errorf("failed to write WAV samples: %w", err)
			}
			wroteAny = true
			total += int64(aligned)
		}

		// keep a dangling partial frame for the next read
		pending = copy(raw, raw[aligned:n])

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return total, fmt.Errorf("failed to read PCM payload: %w", readErr)
		}
	}

	if !wroteAny {
		// the encoder only emits its header on the first Write
		ints.Data = ints.Data[:0]
		if err := enc.Write(ints); err != nil {
			return 0, fmt.Errorf("failed to write WAV header: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return total, fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return total, nil
}

// WrapWAVFile writes a WAV copy of the PCM file at srcPath to dstPath
func WrapWAVFile(srcPath, dstPath string, f Format) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create WAV file: %w", err)
	}

	n, err := WrapWAV(dst, src, f)
	if closeErr := dst.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dstPath)
		return 0, err
	}
	return n, nil
}
