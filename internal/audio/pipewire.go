package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// PipeWire manages PipeWire port queries
type PipeWire struct{}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{}
}

// ListPorts returns all output (source) ports known to PipeWire
func (pw *PipeWire) ListPorts() ([]string, error) {
	cmd := exec.Command("pw-link", "-o")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}

	return parsePortList(string(output)), nil
}

// parsePortList extracts port names from pw-link output
func parsePortList(output string) []string {
	lines := strings.Split(output, "\n")
	var ports []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}

	return ports
}

// ValidateNode checks that a capture target exists in the current graph
func (pw *PipeWire) ValidateNode(node string) error {
	if node == "" {
		return nil
	}

	ports, err := pw.ListPorts()
	if err != nil {
		return err
	}

	return validateNodeInList(node, ports)
}

// validateNodeInList reports whether node (a node name or a full
// "node:port" name) appears in ports, and whether it is ambiguous
func validateNodeInList(node string, ports []string) error {
	if node == "" {
		return nil
	}

	matches := findPortDuplicatesInList(node, ports)
	if len(matches) > 1 {
		return fmt.Errorf("duplicate sources detected for '%s': %v", node, matches)
	}
	if len(matches) == 1 {
		return nil
	}

	for _, port := range ports {
		if portNode(port) == node {
			return nil
		}
	}

	return fmt.Errorf("%w: PipeWire node not found: %s", ErrDeviceBusy, node)
}

// findPortDuplicatesInList finds all ports with exactly the same name
func findPortDuplicatesInList(portName string, allPorts []string) []string {
	var duplicates []string
	for _, port := range allPorts {
		if port == portName {
			duplicates = append(duplicates, port)
		}
	}

	return duplicates
}

// portNode returns the node part of a "node:port" name
func portNode(port string) string {
	if i := strings.LastIndex(port, ":"); i > 0 {
		return port[:i]
	}
	return port
}

// PipeWireBackend records with pw-record and plays with pw-play
type PipeWireBackend struct {
	pipewire     *PipeWire
	inputTarget  string
	outputTarget string
}

func NewPipeWireBackend(inputTarget, outputTarget string) *PipeWireBackend {
	return &PipeWireBackend{
		pipewire:     NewPipeWire(),
		inputTarget:  inputTarget,
		outputTarget: outputTarget,
	}
}

// OpenInput starts pw-record writing raw PCM to stdout
func (p *PipeWireBackend) OpenInput(f Format) (InputDevice, error) {
	if err := p.pipewire.ValidateNode(p.inputTarget); err != nil {
		slog.Debug("PipeWire input target validation failed", "target", p.inputTarget, "error", err)
		return nil, err
	}
	return startProcessInput("pw-record", pipewireArgs(f, p.inputTarget), f)
}

// OpenOutput starts pw-play reading raw PCM from stdin
func (p *PipeWireBackend) OpenOutput(f Format) (OutputDevice, error) {
	return startProcessOutput("pw-play", pipewireArgs(f, p.outputTarget))
}

// ListSources returns available PipeWire source ports
func (p *PipeWireBackend) ListSources() ([]string, error) {
	return p.pipewire.ListPorts()
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

func pipewireArgs(f Format, target string) []string {
	args := []string{
		fmt.Sprintf("--format=s%d", f.BitDepth()),
		fmt.Sprintf("--rate=%d", f.SampleRate),
		fmt.Sprintf("--channels=%d", f.Channels),
	}
	if target != "" {
		args = append(args, "--target="+target)
	}
	return append(args, "-")
}
