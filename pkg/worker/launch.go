package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
)

// ReadyPrefix starts the line a worker prints on stdout once it accepts
// calls. The rest of the line is the socket path.
const ReadyPrefix = "READY "

// DefaultReadyTimeout bounds the wait for the ready line.
const DefaultReadyTimeout = 30 * time.Second

// WriteReady prints the ready line for socketPath.
func WriteReady(w io.Writer, socketPath string) error {
	_, err := fmt.Fprintf(w, "%s%s\n", ReadyPrefix, socketPath)
	return err
}

// LaunchConfig describes a worker process.
type LaunchConfig struct {
	// Path is the worker executable.
	Path string
	Args []string

	// Env is appended to the environment of the current process.
	Env []string

	// ReadyTimeout bounds the wait for the ready line.
	// Default: 30s
	ReadyTimeout time.Duration

	// Stderr receives the worker's stderr. Default: os.Stderr.
	Stderr io.Writer
}

// Process is a running worker.
type Process struct {
	cmd        *exec.Cmd
	socketPath string
	done       chan struct{}
	err        error
}

// Launch starts a worker and returns once it printed its ready line. A
// worker that exits or stays silent past the ready timeout is reported as an
// error and killed.
func Launch(ctx context.Context, config LaunchConfig) (*Process, error) {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}

	cmd := exec.Command(config.Path, config.Args...)
	cmd.Env = append(os.Environ(), config.Env...)
	cmd.Stderr = config.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	ready := make(chan string, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		signalled := false
		for scanner.Scan() {
			line := scanner.Text()
			if !signalled {
				if path, ok := strings.CutPrefix(line, ReadyPrefix); ok {
					signalled = true
					ready <- strings.TrimSpace(path)
					continue
				}
			}
			logger.Debug("Worker output", "pid", cmd.Process.Pid, "line", line)
		}
		// Wait closes the pipe, so it runs only after stdout is drained.
		p.err = cmd.Wait()
		close(p.done)
	}()

	timer := time.NewTimer(config.ReadyTimeout)
	defer timer.Stop()

	select {
	case path := <-ready:
		p.socketPath = path
		logger.Info("Worker ready", "pid", cmd.Process.Pid, logger.KeyAddress, path)
		return p, nil
	case <-p.done:
		return nil, fmt.Errorf("worker exited before becoming ready: %w", exitError(p.err))
	case <-timer.C:
		p.kill()
		return nil, fmt.Errorf("worker not ready after %s", config.ReadyTimeout)
	case <-ctx.Done():
		p.kill()
		return nil, ctx.Err()
	}
}

func exitError(err error) error {
	if err == nil {
		return errors.New("exit status 0")
	}
	return err
}

func (p *Process) kill() {
	_ = p.cmd.Process.Kill()
	<-p.done
}

// SocketPath is the path announced in the ready line.
func (p *Process) SocketPath() string { return p.socketPath }

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed when the process exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Stop sends SIGTERM and waits for the process to exit. It kills the process
// if ctx expires first.
func (p *Process) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal worker: %w", err)
	}

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		p.kill()
		return fmt.Errorf("worker killed after shutdown timeout: %w", ctx.Err())
	}
}
