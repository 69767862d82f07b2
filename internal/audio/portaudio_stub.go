//go:build !portaudio

package audio

import "fmt"

func newPortAudioBackend() (Backend, error) {
	return nil, fmt.Errorf("portaudio backend not compiled in (rebuild with -tags portaudio)")
}
