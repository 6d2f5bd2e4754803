// Package sink manages the external player process that renders the paced
// audio stream.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotRunning is returned when writing to a sink that has no live process.
	ErrNotRunning = errors.New("sink process is not running")
	// ErrEmptyCommand is returned when the player command is blank.
	ErrEmptyCommand = errors.New("player command is empty")
)

// Sink renders audio bytes. Implementations must detect death of the
// underlying renderer so the playback loop can respawn it.
type Sink interface {
	Start() error
	Write(chunk []byte) error
	Running() bool
	Stop()
}

// Process runs the configured player command as a child process and feeds it
// audio over stdin.
type Process struct {
	command string
	logger  *logrus.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
}

// NewProcess creates a process sink for a shell-style command line, e.g.
// "ffplay -nodisp -loglevel quiet -". The first field is the binary, the rest
// are arguments.
func NewProcess(command string, logger *logrus.Logger) *Process {
	return &Process{
		command: command,
		logger:  logger,
	}
}

// Start spawns the player process and wires its stdin. Stderr is pumped to
// the log at debug level. Calling Start on a running sink restarts it.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.stopLocked()
	}

	fields := strings.Fields(p.command)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}

	cmd := exec.Command(fields[0], fields[1:]...) // #nosec G204 - command comes from configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.running = true

	go p.logStderr(stderr)
	go p.watch(cmd)

	p.logger.WithField("pid", cmd.Process.Pid).Debug("Player process started")
	return nil
}

// watch waits for the process to exit and flips the running flag so Running
// reflects the death promptly.
func (p *Process) watch(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	// Only clear state if this is still the current process; Stop or a
	// restart may already have moved on.
	if p.cmd == cmd {
		p.running = false
		p.cmd = nil
		p.stdin = nil
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.WithError(err).Debug("Player process exited")
	}
}

func (p *Process) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.WithField("player", scanner.Text()).Debug("Player output")
	}
}

// Write sends one chunk to the player's stdin.
func (p *Process) Write(chunk []byte) error {
	p.mu.Lock()
	stdin := p.stdin
	running := p.running
	p.mu.Unlock()

	if !running || stdin == nil {
		return ErrNotRunning
	}
	if _, err := stdin.Write(chunk); err != nil {
		return fmt.Errorf("failed to write to player: %w", err)
	}
	return nil
}

// Running reports whether the player process is alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop terminates the player process. It is safe to call repeatedly and on a
// sink that never started.
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Process) stopLocked() {
	if p.cmd == nil {
		return
	}
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
	p.stdin = nil
	p.running = false
}
