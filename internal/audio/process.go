package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// how long an output process must survive after start to count as acquired
	outputStartupGrace = 150 * time.Millisecond
	processStopTimeout = 5 * time.Second
)

// tailBuffer keeps the last few KB a subprocess wrote to stderr
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - 4096; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}

// processInput captures PCM from the stdout of a recorder process such as
// pw-record or arecord.
type processInput struct {
	name      string
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *tailBuffer
	primed    []byte
	closeOnce sync.Once
	closeErr  error
}

// startProcessInput runs the recorder and reads the first frame before
// returning, so a busy or missing device fails here rather than in the
// capture loop.
func startProcessInput(name string, args []string, f Format) (*processInput, error) {
	cmd := exec.Command(name, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	slog.Debug("Starting capture process", "command", name+" "+strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &processInput{
		name:   name,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}

	prime := make([]byte, f.FrameSize())
	if _, err := io.ReadFull(stdout, prime); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: %s exited: %s", ErrDeviceBusy, name, stderr.String())
	}
	p.primed = prime

	return p, nil
}

func (p *processInput) Read(b []byte) (int, error) {
	if len(p.primed) > 0 {
		n := copy(b, p.primed)
		p.primed = p.primed[n:]
		return n, nil
	}

	n, err := p.stdout.Read(b)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return n, fmt.Errorf("%w: %s stopped: %s", ErrDeviceClosed, p.name, p.stderr.String())
		}
		return n, err
	}
	return n, nil
}

func (p *processInput) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = stopProcess(p.cmd, p.name)
	})
	return p.closeErr
}

// processOutput renders PCM by writing it to the stdin of a player process
// such as pw-play or aplay.
type processOutput struct {
	name      string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    *tailBuffer
	exited    chan struct{}
	waitErr   error
	closeOnce sync.Once
}

func startProcessOutput(name string, args []string) (*processOutput, error) {
	cmd := exec.Command(name, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	slog.Debug("Starting playback process", "command", name+" "+strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &processOutput{
		name:   name,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		exited: make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	select {
	case <-p.exited:
		return nil, fmt.Errorf("%w: %s exited: %s", ErrDeviceBusy, name, stderr.String())
	case <-time.After(outputStartupGrace):
	}

	return p, nil
}

func (p *processOutput) Write(b []byte) (int, error) {
	select {
	case <-p.exited:
		return 0, fmt.Errorf("%w: %s stopped: %s", ErrDeviceClosed, p.name, p.stderr.String())
	default:
	}

	n, err := p.stdin.Write(b)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrDeviceClosed, err)
	}
	return n, nil
}

// Drain closes the player's stdin and waits for it to finish playing
func (p *processOutput) Drain() error {
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close %s stdin: %w", p.name, err)
	}

	select {
	case <-p.exited:
	case <-time.After(processStopTimeout):
		slog.Warn("Playback process did not drain within timeout", "process", p.name)
		return fmt.Errorf("%s did not finish playing within %s", p.name, processStopTimeout)
	}

	if p.waitErr != nil {
		return fmt.Errorf("%s failed: %w", p.name, p.waitErr)
	}
	return nil
}

// Close stops playback immediately
func (p *processOutput) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		select {
		case <-p.exited:
			return
		default:
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-p.exited
	})
	return nil
}

// stopProcess interrupts cmd and waits for it, killing it after a timeout
func stopProcess(cmd *exec.Cmd, name string) error {
	if cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt, falling back to kill", "process", name, "error", err)
		cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// interrupted recorders exit non-zero
				slog.Debug("Capture process exited after interrupt", "process", name, "state", exitErr.String())
				return nil
			}
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return nil

	case <-time.After(processStopTimeout):
		slog.Warn("Process did not exit within timeout, force killing", "process", name)
		cmd.Process.Kill()
		<-done
		return nil
	}
}
