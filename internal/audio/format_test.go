package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRates(t *testing.T) {
	f := PCM16Mono44k

	assert.Equal(t, 2, f.FrameSize())
	assert.Equal(t, 88200, f.ByteRate())
	assert.Equal(t, 16, f.BitDepth())
}

func TestFormatDuration(t *testing.T) {
	f := PCM16Mono44k

	assert.Equal(t, time.Second, f.Duration(88200))
	assert.Equal(t, 500*time.Millisecond, f.Duration(44100))
	assert.Equal(t, time.Duration(0), f.Duration(0))
	assert.Equal(t, time.Duration(0), f.Duration(-4))
}

func TestFormatAlignment(t *testing.T) {
	f := PCM16Mono44k

	assert.Equal(t, 4096, f.AlignDown(4097))
	assert.Equal(t, 0, f.AlignDown(1))
	assert.Equal(t, 4096, f.BufferSize(4097))
	assert.Equal(t, 2, f.BufferSize(1))
	assert.Equal(t, 2, f.BufferSize(0))
}
