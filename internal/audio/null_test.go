package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullBackend_InputProducesAlignedSilence(t *testing.T) {
	b := NewNullBackend(false)

	in, err := b.OpenInput(PCM16Mono44k)
	require.NoError(t, err)

	buf := []byte{1, 2, 3, 4, 5}
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 5}, buf)

	require.NoError(t, in.Close())
	_, err = in.Read(buf)
	assert.True(t, errors.Is(err, ErrDeviceClosed))
}

func TestNullBackend_OutputDiscards(t *testing.T) {
	b := NewNullBackend(false)

	out, err := b.OpenOutput(PCM16Mono44k)
	require.NoError(t, err)

	n, err := out.Write(make([]byte, 100))
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.NoError(t, out.Drain())

	require.NoError(t, out.Close())
	_, err = out.Write([]byte{0, 0})
	assert.ErrorIs(t, err, ErrDeviceClosed)
}

func TestNullBackend_Type(t *testing.T) {
	b := NewNullBackend(false)
	assert.Equal(t, BackendTypeNull, b.GetType())

	sources, err := b.ListSources()
	require.NoError(t, err)
	assert.NotEmpty(t, sources)
}
