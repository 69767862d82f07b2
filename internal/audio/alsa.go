package audio

import (
	"fmt"
	"os/exec"
	"strings"
)

// ALSABackend records with arecord and plays with aplay
type ALSABackend struct {
	inputDevice  string
	outputDevice string
}

func NewALSABackend(inputDevice, outputDevice string) *ALSABackend {
	return &ALSABackend{
		inputDevice:  inputDevice,
		outputDevice: outputDevice,
	}
}

func (a *ALSABackend) OpenInput(f Format) (InputDevice, error) {
	return startProcessInput("arecord", alsaArgs(f, a.inputDevice), f)
}

func (a *ALSABackend) OpenOutput(f Format) (OutputDevice, error) {
	return startProcessOutput("aplay", alsaArgs(f, a.outputDevice))
}

// ListSources returns PCM capture device names reported by arecord -L
func (a *ALSABackend) ListSources() ([]string, error) {
	output, err := exec.Command("arecord", "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list ALSA devices: %w", err)
	}
	return parseALSADeviceList(string(output)), nil
}

func (a *ALSABackend) GetType() BackendType {
	return BackendTypeALSA
}

// parseALSADeviceList keeps the unindented lines of arecord -L output;
// indented lines are descriptions.
func parseALSADeviceList(output string) []string {
	var devices []string
	for _, line := range strings.Split(output, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		devices = append(devices, strings.TrimSpace(line))
	}
	return devices
}

func alsaArgs(f Format, device string) []string {
	args := []string{
		"-q",
		"-t", "raw",
		"-f", fmt.Sprintf("S%d_LE", f.BitDepth()),
		"-r", fmt.Sprintf("%d", f.SampleRate),
		"-c", fmt.Sprintf("%d", f.Channels),
	}
	if device != "" {
		args = append(args, "-D", device)
	}
	return append(args, "-")
}
