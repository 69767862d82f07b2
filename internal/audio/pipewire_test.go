package audio

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePortList(t *testing.T) {
	output := `Output ports:
alsa_input.usb-mic:capture_MONO
  Chrome:output_FL

system:capture_1
`
	ports := parsePortList(output)

	expected := []string{"alsa_input.usb-mic:capture_MONO", "Chrome:output_FL", "system:capture_1"}
	if len(ports) != len(expected) {
		t.Fatalf("Expected %d ports, got %d: %v", len(expected), len(ports), ports)
	}
	for i, port := range expected {
		if ports[i] != port {
			t.Errorf("Port %d: expected %s, got %s", i, port, ports[i])
		}
	}
}

func TestValidateNode_Success(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL", "system:capture_1"}

	if err := validateNodeInList("system:capture_1", mockPorts); err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidateNode_NodeNameMatchesPort(t *testing.T) {
	mockPorts := []string{"alsa_input.usb-mic:capture_MONO"}

	if err := validateNodeInList("alsa_input.usb-mic", mockPorts); err != nil {
		t.Errorf("Expected node name to match its port, got: %v", err)
	}
}

func TestValidateNode_NotFound(t *testing.T) {
	mockPorts := []string{"Chrome:output_FL"}

	err := validateNodeInList("nonexistent", mockPorts)
	if err == nil {
		t.Fatal("Expected error for nonexistent node")
	}
	if !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected ErrDeviceBusy, got: %v", err)
	}
}

func TestValidateNode_DuplicateDetection(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Chrome:output_FL",
		"Chrome-2:output_FL", // different instance
	}

	err := validateNodeInList("Chrome:output_FL", mockPorts)
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestValidateNode_Empty(t *testing.T) {
	if err := validateNodeInList("", []string{}); err != nil {
		t.Errorf("Expected no error for empty target, got: %v", err)
	}
}

func TestFindPortDuplicates_NoDuplicates(t *testing.T) {
	mockPorts := []string{
		"Chrome:output_FL",
		"Firefox:output_FL",
		"system:capture_1",
	}

	duplicates := findPortDuplicatesInList("Chrome:output_FL", mockPorts)

	if len(duplicates) != 1 {
		t.Errorf("Expected 1 match (itself), got %d: %v", len(duplicates), duplicates)
	}
}

func TestPipewireArgs(t *testing.T) {
	args := pipewireArgs(PCM16Mono44k, "")
	got := strings.Join(args, " ")
	if got != "--format=s16 --rate=44100 --channels=1 -" {
		t.Errorf("Unexpected args without target: %s", got)
	}

	args = pipewireArgs(PCM16Mono44k, "mic")
	got = strings.Join(args, " ")
	if got != "--format=s16 --rate=44100 --channels=1 --target=mic -" {
		t.Errorf("Unexpected args with target: %s", got)
	}
}
