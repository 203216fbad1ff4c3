// Package process runs the external build and publish toolchains: it spawns
// them, streams their merged output line by line, and stops them with a
// graceful-then-forced escalation.
package process

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

	"github.com/creack/pty"
	"github.com/juju/clock"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

// Command is one toolchain invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is added to the service's own environment.
	Env []string
}

// String renders the command line shell-quoted, for logs.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Result describes how a process ended.
type Result struct {
	ExitCode    int
	Termination TerminationState
}

// Success is true for a zero exit without a stop request.
func (r Result) Success() bool {
	return r.ExitCode == 0 && r.Termination == NotRequested
}

// Runner starts commands. Output of stdout and stderr is merged, either
// through a pseudo terminal or a shared pipe.
type Runner struct {
	usePTY bool
	clock  clock.Clock
	logger zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(usePTY bool, clk clock.Clock, logger zerolog.Logger) *Runner {
	return &Runner{
		usePTY: usePTY,
		clock:  clk,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Start launches c and calls onLine for every output line, in order, from a
// single goroutine. All lines are delivered before the process is reported
// as done.
func (r *Runner) Start(c Command, onLine func(string)) (*Process, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var out io.ReadCloser
	if r.usePTY {
		cmd.Env = append(cmd.Env, "TERM=xterm-256color")
		// pty.Start puts the child in its own session, so its pid is also
		// its process group id.
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start %s: %w", c.Name, err)
		}
		out = ptmx
	} else {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("create pipe: %w", err)
		}
		cmd.Stdout = pw
		cmd.Stderr = pw
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			pr.Close()
			pw.Close()
			return nil, fmt.Errorf("start %s: %w", c.Name, err)
		}
		pw.Close()
		out = pr
	}

	p := &Process{
		cmd:     cmd,
		clock:   r.clock,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  r.logger.With().Int("pid", cmd.Process.Pid).Logger(),
	}
	p.logger.Debug().Str("command", c.String()).Msg("process started")
	go p.stream(out, onLine)
	return p, nil
}

// Process is a started toolchain process.
type Process struct {
	cmd    *exec.Cmd
	clock  clock.Clock
	logger zerolog.Logger
	term   Termination

	done     chan struct{}
	stopped  chan struct{}
	exitCode int
}

func (p *Process) stream(out io.ReadCloser, onLine func(string)) {
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(strings.TrimRight(scanner.Text(), "\r"))
		}
	}
	// A pty reports EIO once the child has exited.
	out.Close()

	err := p.cmd.Wait()
	p.exitCode = 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
		} else {
			p.exitCode = 1
		}
	}
	p.logger.Debug().Int("exit_code", p.exitCode).Msg("process exited")
	close(p.done)
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether Done is closed.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits or ctx ends.
func (p *Process) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		state := p.term.State()
		if state != NotRequested {
			<-p.stopped
			state = p.term.State()
		}
		return Result{ExitCode: p.exitCode, Termination: state}, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("waiting for pid %d: %w", p.Pid(), ctx.Err())
	}
}

// Termination returns the stop state.
func (p *Process) Termination() TerminationState { return p.term.State() }

// Stop asks the process group to exit with SIGTERM and escalates to SIGKILL
// after grace. A second call waits for the first to finish and returns the
// same final state.
func (p *Process) Stop(grace time.Duration) TerminationState {
	if err := p.term.To(Requested); err != nil {
		<-p.stopped
		return p.term.State()
	}
	defer close(p.stopped)

	if p.Exited() {
		_ = p.term.To(Terminated)
		return Terminated
	}

	_ = p.term.To(Terminating)
	p.signal(syscall.SIGTERM)
	if grace > 0 {
		select {
		case <-p.done:
			_ = p.term.To(Terminated)
			return Terminated
		case <-p.clock.After(grace):
		}
	}

	p.logger.Warn().Dur("grace", grace).Msg("process did not exit in time, killing")
	p.signal(syscall.SIGKILL)
	<-p.done
	_ = p.term.To(ForceKilled)
	return ForceKilled
}

// Kill sends SIGKILL without a grace period.
func (p *Process) Kill() TerminationState {
	return p.Stop(0)
}

func (p *Process) signal(sig syscall.Signal) {
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Debug().Err(err).Msg("signalling process group failed, signalling process")
		_ = p.cmd.Process.Signal(sig)
	}
}
