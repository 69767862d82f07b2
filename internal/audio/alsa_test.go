package audio

import (
	"strings"
	"testing"
)

func TestParseALSADeviceList(t *testing.T) {
	output := `null
    Discard all samples (playback) or generate zero samples (capture)
default
    Default ALSA Output
hw:CARD=PCH,DEV=0
    HDA Intel PCH, ALC3246 Analog
    Direct hardware device without any conversions
`
	devices := parseALSADeviceList(output)

	expected := []string{"null", "default", "hw:CARD=PCH,DEV=0"}
	if len(devices) != len(expected) {
		t.Fatalf("Expected %d devices, got %d: %v", len(expected), len(devices), devices)
	}
	for i, d := range expected {
		if devices[i] != d {
			t.Errorf("Device %d: expected %s, got %s", i, d, devices[i])
		}
	}
}

func TestALSAArgs(t *testing.T) {
	got := strings.Join(alsaArgs(PCM16Mono44k, "hw:1"), " ")
	want := "-q -t raw -f S16_LE -r 44100 -c 1 -D hw:1 -"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
