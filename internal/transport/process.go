package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const readyPollInterval = 50 * time.Millisecond

// process is an agent this client launched
type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

func (p *process) running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// SetBinaryPath sets the binary Start launches, typically once it has been
// downloaded
func (c *Client) SetBinaryPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.BinaryPath = path
}

// BinaryPath returns the binary Start launches
func (c *Client) BinaryPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.BinaryPath
}

// Start makes sure an agent is listening. A reachable socket is used as is;
// otherwise the configured binary is launched when Launch is set and Start
// waits up to StartTimeout for its socket.
func (c *Client) Start(ctx context.Context) error {
	if c.Reachable(ctx) {
		c.logger.Debug("agent already listening")
		return nil
	}
	if !c.opts.Launch {
		return ErrLaunchDisabled
	}

	c.mu.Lock()
	if c.opts.BinaryPath == "" {
		c.mu.Unlock()
		return fmt.Errorf("launch agent: no binary configured")
	}
	proc := c.proc
	if proc == nil || !proc.running() {
		var err error
		proc, err = c.launch()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.proc = proc
	}
	c.mu.Unlock()

	return c.waitReady(ctx, proc)
}

func (c *Client) launch() (*process, error) {
	if c.endpoint.IsUnix() {
		if err := os.MkdirAll(filepath.Dir(c.endpoint.Address), 0o755); err != nil {
			return nil, fmt.Errorf("launch agent: %w", err)
		}
	}

	args := []string{"start"}
	if c.endpoint.IsUnix() {
		args = append(args, "--socket", c.endpoint.Address)
	} else {
		args = append(args, "--tcp", c.endpoint.Address)
	}
	args = append(args, "--log-level", c.opts.AgentLogLevel)

	// not tied to a context: the agent outlives the call that starts it
	cmd := exec.Command(c.opts.BinaryPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch agent: %w", err)
	}

	proc := &process{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		close(proc.exited)
	}()

	c.logger.Info("launched agent",
		zap.String("binary", c.opts.BinaryPath),
		zap.Int("pid", cmd.Process.Pid),
	)
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(Event{Type: EventLaunched, Detail: c.opts.BinaryPath})
	}
	return proc, nil
}

func (c *Client) waitReady(ctx context.Context, proc *process) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if c.Reachable(ctx) {
			return nil
		}
		select {
		case <-proc.exited:
			return fmt.Errorf("%w: agent exited: %v", ErrAgentNotReady, proc.err)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrAgentNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}

// OwnsProcess reports whether this client launched a still-running agent
func (c *Client) OwnsProcess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proc != nil && c.proc.running()
}

// StopProcess terminates the agent this client launched and removes its
// socket file. It returns ErrProcessNotOwned for agents started elsewhere.
func (c *Client) StopProcess(ctx context.Context) error {
	c.mu.Lock()
	proc := c.proc
	c.proc = nil
	c.mu.Unlock()

	if proc == nil {
		return ErrProcessNotOwned
	}

	if proc.running() {
		if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.logger.Warn("signal agent", zap.Error(err))
		}

		grace := time.NewTimer(c.opts.StartTimeout)
		defer grace.Stop()
		select {
		case <-proc.exited:
		case <-grace.C:
			_ = proc.cmd.Process.Kill()
			<-proc.exited
		case <-ctx.Done():
			_ = proc.cmd.Process.Kill()
			<-proc.exited
		}
	}

	if c.endpoint.IsUnix() {
		if err := os.Remove(c.endpoint.Address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("remove agent socket", zap.Error(err))
		}
	}

	c.logger.Info("stopped agent", zap.Int("pid", proc.cmd.Process.Pid))
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(Event{Type: EventStopped, Detail: proc.cmd.Path})
	}
	return nil
}
