// Package gdb runs GDB in machine interface mode and the debug server a
// target launch connects it to.
package gdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/gdbtarget/pkg/logflags"
	"github.com/go-delve/gdbtarget/pkg/mi"
	"github.com/go-delve/gdbtarget/pkg/process"
)

// DefaultGDB is the debugger spawned when the launch configuration names
// none.
const DefaultGDB = "gdb"

// Config describes how to spawn GDB.
type Config struct {
	// GDB is the executable, DefaultGDB when empty.
	GDB string
	// Args are appended after --interpreter=mi2.
	Args []string
	// Cwd is the working directory of GDB.
	Cwd string
	// Environment is applied on top of ours, a nil value removes a variable.
	Environment map[string]*string
	// StopTimeout bounds the termination of GDB.
	StopTimeout time.Duration
}

// Backend is a running GDB.
type Backend interface {
	// Conn is the MI command channel.
	Conn() *mi.Conn
	// Version is the version reported by gdb --version.
	Version() string
	// Stop asks GDB to exit and terminates it if it does not.
	Stop() error
}

// Server is a running debug server.
type Server interface {
	Start(ctx context.Context, cfg *process.ServerLaunchConfig) (*process.Handle, error)
	Stop() error
}

// Factory creates the processes of a session.
type Factory interface {
	NewBackend(ctx context.Context, cfg Config, handler mi.Handler) (Backend, error)
	NewServer(stopTimeout time.Duration) Server
}

// DefaultFactory spawns executables found on the file system.
type DefaultFactory struct{}

// NewBackend spawns GDB.
func (DefaultFactory) NewBackend(ctx context.Context, cfg Config, handler mi.Handler) (Backend, error) {
	return Spawn(ctx, cfg, handler)
}

// NewServer returns a ServerManager.
func (DefaultFactory) NewServer(stopTimeout time.Duration) Server {
	sm := process.NewServerManager()
	sm.StopTimeout = stopTimeout
	return sm
}

// Process is a GDB process driven through its standard streams.
type Process struct {
	conn    *mi.Conn
	version string
	manager *process.Manager
	log     *logrus.Entry
}

// Spawn starts GDB, checks its version and enables asynchronous execution.
// Records that are not command results, including GDB's standard error
// as log stream records, are passed to handler.
func Spawn(ctx context.Context, cfg Config, handler mi.Handler) (*Process, error) {
	gdb := cfg.GDB
	if gdb == "" {
		gdb = DefaultGDB
	}
	version, err := Version(ctx, gdb)
	if err != nil {
		return nil, err
	}

	p := &Process{
		version: version,
		manager: process.NewManager("gdb"),
		log:     logflags.MILogger(),
	}
	p.manager.StopTimeout = cfg.StopTimeout
	h, err := p.manager.Start(ctx, process.Spec{
		Path: gdb,
		Args: append([]string{"--interpreter=mi2"}, cfg.Args...),
		Dir:  cfg.Cwd,
		Env:  process.MergeEnv(os.Environ(), cfg.Environment),
	})
	if err != nil {
		return nil, err
	}
	p.conn = mi.NewConn(h.Stdout, h.Stdin, handler)
	go func() {
		s := bufio.NewScanner(h.Stderr)
		for s.Scan() {
			if handler != nil {
				handler(&mi.Record{Kind: mi.LogStream, Token: -1, Text: s.Text() + "\n"})
			}
		}
	}()

	if err := p.conn.GdbSet(ctx, "mi-async", "on"); err != nil {
		p.Stop()
		return nil, fmt.Errorf("could not initialize %s: %w", gdb, err)
	}
	p.log.Debugf("gdb %s started (pid %d)", version, h.Pid())
	return p, nil
}

// Conn returns the MI channel.
func (p *Process) Conn() *mi.Conn { return p.conn }

// Version returns the GDB version.
func (p *Process) Version() string { return p.version }

// Stop sends -gdb-exit and waits for GDB to go away, terminating it if it
// does not within the stop timeout.
func (p *Process) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), process.DefaultStopTimeout)
	defer cancel()
	if err := p.conn.GdbExit(ctx); err != nil && !errors.Is(err, mi.ErrClosed) {
		p.log.Debugf("-gdb-exit: %v", err)
	}
	p.conn.Close()
	return p.manager.Stop()
}

// Version runs gdb --version and returns the version number from the
// first line of its output.
func Version(ctx context.Context, gdb string) (string, error) {
	out, err := exec.CommandContext(ctx, gdb, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("could not run %s: %w", gdb, err)
	}
	v := ParseVersion(string(out))
	if v == "" {
		return "", fmt.Errorf("could not determine version of %s", gdb)
	}
	return v, nil
}

// ParseVersion extracts the version number from gdb --version output,
// for example "13.2" from "GNU gdb (Arm GNU Toolchain 12.3.Rel1) 13.2".
func ParseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if f != "" && f[0] >= '0' && f[0] <= '9' {
			return f
		}
	}
	return ""
}
