// Package process spawns and stops the external processes driven by the
// adapter: GDB itself and the remote debug server used for target launches.
//
// A Manager owns at most one process at a time. Start never blocks on the
// child's output, readiness detection is left to whoever reads the Handle's
// streams. Stop is bounded: it settles on the process exit or on the stop
// timeout, whichever comes first, and exactly once.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/go-delve/gdbtarget/pkg/logflags"
)

// DefaultStopTimeout is how long Stop waits for the process to exit after
// asking it to terminate.
const DefaultStopTimeout = 1000 * time.Millisecond

var (
	// ErrStopTimeout is returned by Stop when the process did not exit
	// within the stop timeout.
	ErrStopTimeout = errors.New("timed out waiting for process to exit")

	// ErrAlreadyStarted is returned by Start when the manager already owns
	// a running process.
	ErrAlreadyStarted = errors.New("process already started")
)

// Spec describes a process to spawn.
type Spec struct {
	// Path is the executable, looked up in PATH when it has no separator.
	Path string
	// Args are the arguments, not including the executable.
	Args []string
	// Dir is the working directory, empty for the current one.
	Dir string
	// Env is the complete environment, nil to inherit ours.
	Env []string
}

// Handle is a live external process. Its standard streams are plain pipes
// that stay readable after the process exits until all output is drained.
type Handle struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd      *exec.Cmd
	exited   *atomic.Bool
	exitCode int
	waitErr  error
	done     chan struct{}
}

// Pid returns the process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Exited returns a channel closed once the process has exited.
func (h *Handle) Exited() <-chan struct{} {
	return h.done
}

// HasExited returns true if the exit of the process has been observed.
func (h *Handle) HasExited() bool {
	return h.exited.Load()
}

// ExitCode returns the exit code of the process and true once the process
// has exited. A process killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// start spawns cmd with piped stdio. The pipes are created here rather
// than with cmd.StdoutPipe so that cmd.Wait does not close them under a
// reader that has not drained them yet.
func start(cmd *exec.Cmd) (*Handle, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, err
	}
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		closeAll(inR, inW, outR, outW, errR, errW)
		return nil, err
	}
	// The child owns its copies now.
	closeAll(inR, outW, errW)

	h := &Handle{
		Stdin:  inW,
		Stdout: outR,
		Stderr: errR,
		cmd:    cmd,
		exited: atomic.NewBool(false),
		done:   make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		h.exitCode = cmd.ProcessState.ExitCode()
		h.exited.Store(true)
		close(h.done)
	}()
	return h, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// terminateProcess asks p to exit. Replaced in tests.
var terminateProcess = terminate

// Manager spawns a single process and stops it within a bounded time.
type Manager struct {
	// StopTimeout bounds Stop, DefaultStopTimeout when zero.
	StopTimeout time.Duration

	name string
	log  *logrus.Entry

	mu     sync.Mutex
	handle *Handle
}

// NewManager returns a Manager for processes described as name in logs
// and errors.
func NewManager(name string) *Manager {
	return &Manager{
		name: name,
		log:  logflags.ProcessLogger().WithField("process", name),
	}
}

// Start spawns the process described by spec and returns immediately. The
// context only guards the spawn, the process outlives it.
func (m *Manager) Start(ctx context.Context, spec Spec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil && !m.handle.HasExited() {
		return nil, ErrAlreadyStarted
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.SysProcAttr = backgroundSysProcAttr()

	h, err := start(cmd)
	if err != nil {
		return nil, fmt.Errorf("could not start %s: %w", m.name, err)
	}
	m.log.Debugf("started %s %q (pid %d) in %q", spec.Path, spec.Args, h.Pid(), spec.Dir)
	m.handle = h
	return h, nil
}

// Handle returns the process owned by the manager, nil if there is none.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Stop terminates the process. It returns immediately if there is no
// process or it already exited, otherwise it waits for the exit for at
// most StopTimeout and returns ErrStopTimeout if the process is still
// running after that.
func (m *Manager) Stop() error {
	h := m.Handle()
	if h == nil {
		return nil
	}
	if h.HasExited() {
		m.release(h)
		return nil
	}

	if err := terminateProcess(h.cmd.Process); err != nil {
		select {
		case <-h.done:
			m.release(h)
			return nil
		default:
		}
		return fmt.Errorf("could not terminate %s (pid %d): %w", m.name, h.Pid(), err)
	}

	timeout := m.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	select {
	case <-h.done:
		timer.Stop()
		m.log.Debugf("%s (pid %d) exited", m.name, h.Pid())
		m.release(h)
		return nil
	case <-timer.C:
		return fmt.Errorf("%s (pid %d): %w", m.name, h.Pid(), ErrStopTimeout)
	}
}

// Kill forcibly kills the process without waiting.
func (m *Manager) Kill() error {
	h := m.Handle()
	if h == nil || h.HasExited() {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (m *Manager) release(h *Handle) {
	m.mu.Lock()
	if m.handle == h {
		m.handle = nil
	}
	m.mu.Unlock()
}
