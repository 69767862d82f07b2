package apperr

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs_MatchesKindOnly(t *testing.T) {
	err := New(KindAlreadyActive, "start capture", nil)

	assert.True(t, errors.Is(err, ErrAlreadyActive))
	assert.False(t, errors.Is(err, ErrNotActive))

	wrapped := fmt.Errorf("service: %w", err)
	assert.True(t, errors.Is(wrapped, ErrAlreadyActive))
	assert.Equal(t, KindAlreadyActive, KindOf(wrapped))
}

func TestErrorUnwrap_ExposesCause(t *testing.T) {
	err := New(KindFileNotFound, "start playback", os.ErrNotExist)

	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.True(t, errors.Is(err, ErrFileNotFound))
	assert.Contains(t, err.Error(), "start playback")
	assert.Contains(t, err.Error(), "FileNotFound")
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Nothing to stop", Message(New(KindNotActive, "stop capture", nil)))
	assert.Equal(t, "Microphone permission was denied", Message(fmt.Errorf("x: %w", ErrPermissionDenied)))
	assert.Contains(t, Message(errors.New("boom")), "boom")
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}
