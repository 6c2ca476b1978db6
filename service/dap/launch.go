package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/google/go-dap"
	"go.uber.org/atomic"

	"github.com/go-delve/gdbtarget/pkg/disasm"
	"github.com/go-delve/gdbtarget/pkg/gdb"
	"github.com/go-delve/gdbtarget/pkg/process"
)

func (s *Session) onLaunchRequest(request *dap.LaunchRequest) {
	if s.backend != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch",
			"debug session already in progress - use remote attach mode to connect to a server with an active debug session")
		return
	}

	var args LaunchConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", fmt.Sprintf("invalid debug configuration - %v", err))
		return
	}
	if err := s.applyDefaults(&args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}

	if err := s.start(&args.LaunchAttachCommonConfig, args.Program, args.Arguments, false); err != nil {
		s.stopProcesses()
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}

	// Notify the client that the debugger is ready to start accepting
	// configuration requests for setting breakpoints, etc. The client
	// will end the configuration sequence with 'configurationDone'.
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.LaunchResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onAttachRequest(request *dap.AttachRequest) {
	if s.backend != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", "debug session already in progress")
		return
	}

	var args AttachConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", fmt.Sprintf("invalid debug configuration - %v", err))
		return
	}
	if args.Target == nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", "'target' is required to attach")
		return
	}
	if err := s.applyDefaults(&args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}

	if err := s.start(&args.LaunchAttachCommonConfig, args.Program, nil, true); err != nil {
		s.stopProcesses()
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}

	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.AttachResponse{Response: *newResponse(request.Request)})
}

// applyDefaults fills the arguments the client left out from the user's
// configuration file.
func (s *Session) applyDefaults(args *LaunchAttachCommonConfig) error {
	d := s.config.Defaults
	if d == nil {
		return nil
	}
	if args.GDB == "" {
		args.GDB = d.GDB
	}
	if args.GDBArguments == nil {
		argv, err := d.GDBArgv()
		if err != nil {
			return fmt.Errorf("invalid gdb-args in configuration file: %v", err)
		}
		args.GDBArguments = argv
	}
	if args.HardwareBreakpoint == nil && d.HardwareBreakpoint {
		hw := true
		args.HardwareBreakpoint = &hw
	}
	if t := args.Target; t != nil {
		if t.Server == "" {
			t.Server = d.Server
		}
		if t.ServerParameters == nil {
			argv, err := d.ServerArgv()
			if err != nil {
				return fmt.Errorf("invalid server-args in configuration file: %v", err)
			}
			t.ServerParameters = argv
		}
	}
	return nil
}

// start brings up the debug server for target launches, spawns GDB and
// loads and connects the program.
func (s *Session) start(args *LaunchAttachCommonConfig, program string, programArgs []string, attach bool) error {
	ctx := s.ctx
	t := args.Target
	s.args.attach = attach
	s.args.target = t
	s.args.hardwareBreakpoint = args.HardwareBreakpoint != nil && *args.HardwareBreakpoint

	if t != nil && !attach {
		if err := s.startServer(ctx, args, program); err != nil {
			return err
		}
	}

	backend, err := s.factory.NewBackend(ctx, gdb.Config{
		GDB:         args.GDB,
		Args:        args.GDBArguments,
		Cwd:         args.Cwd,
		Environment: args.Environment,
		StopTimeout: s.stopTimeout,
	}, s.handleRecord)
	if err != nil {
		return fmt.Errorf("could not start gdb: %v", err)
	}
	s.backend = backend
	s.engine = disasm.New(backend.Conn())
	go s.watchBackend(backend)
	s.log.Debugf("gdb %s started", backend.Version())

	conn := backend.Conn()
	if program != "" {
		if err := conn.FileExecAndSymbols(ctx, program); err != nil {
			return err
		}
	}

	if t == nil {
		if args.Cwd != "" {
			if err := conn.EnvironmentCd(ctx, args.Cwd); err != nil {
				return err
			}
		}
		if len(programArgs) > 0 {
			if err := conn.ExecArguments(ctx, programArgs...); err != nil {
				return err
			}
		}
	} else if len(t.ConnectCommands) > 0 {
		for _, cmd := range t.ConnectCommands {
			if err := conn.SendCommand(ctx, cmd); err != nil {
				return err
			}
		}
	} else {
		params, err := t.connectParameters()
		if err != nil {
			return err
		}
		if err := conn.TargetSelect(ctx, t.targetType(), params...); err != nil {
			return err
		}
	}

	for _, cmd := range args.InitCommands {
		if err := conn.SendCommand(ctx, cmd); err != nil {
			return err
		}
	}

	if t != nil && t.UART != nil {
		if err := s.uart.Initialize(ctx, *t.UART, t.Host); err != nil {
			// The session is usable without the UART output.
			s.sendOutput("stderr", fmt.Sprintf("invalid uart configuration: %v\n", err))
		}
	}
	return nil
}

// startServer spawns the debug server and waits until it reports the port
// it listens on.
func (s *Session) startServer(ctx context.Context, args *LaunchAttachCommonConfig, program string) error {
	t := args.Target
	expr := t.ServerPortRegExp
	if expr == "" {
		expr = DefaultServerPortRegExp
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid serverPortRegExp: %v", err)
	}

	server := s.factory.NewServer(s.stopTimeout)
	h, err := server.Start(ctx, &process.ServerLaunchConfig{
		Program:     program,
		Cwd:         args.Cwd,
		Environment: args.Environment,
		Target: process.ServerTarget{
			Server:           t.Server,
			ServerParameters: t.ServerParameters,
			Cwd:              t.Cwd,
			Environment:      t.Environment,
		},
	})
	if err != nil {
		return fmt.Errorf("could not start debug server: %v", err)
	}
	s.server = server

	portc := make(chan string, 1)
	found := atomic.NewBool(false)
	forward := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			s.sendOutput("server", line+"\n")
			if found.Load() {
				continue
			}
			if m := re.FindStringSubmatch(line); m != nil && found.CompareAndSwap(false, true) {
				port := m[0]
				if len(m) > 1 {
					port = m[1]
				}
				portc <- port
			}
		}
	}
	go forward(h.Stdout)
	go forward(h.Stderr)

	select {
	case port := <-portc:
		if t.Port == "" {
			t.Port = port
		}
	case <-h.Exited():
		select {
		case port := <-portc:
			if t.Port == "" {
				t.Port = port
			}
		default:
			code, _ := h.ExitCode()
			return fmt.Errorf("debug server exited with code %d before accepting connections", code)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if t.ServerStartupDelay > 0 {
		timer := time.NewTimer(time.Duration(t.ServerStartupDelay) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// watchBackend reports the end of the session when GDB goes away.
func (s *Session) watchBackend(b gdb.Backend) {
	<-b.Conn().Done()
	if err := b.Conn().Err(); err != nil {
		s.log.Debugf("gdb connection: %v", err)
	}
	s.sendTerminatedEvent()
}

func (s *Session) sendTerminatedEvent() {
	if s.terminated.CompareAndSwap(false, true) {
		s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	}
}

func (s *Session) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToConfigure, "Failed to configure", "no debug session")
		return
	}
	conn := s.backend.Conn()
	s.frameHandles.reset()
	var err error
	switch {
	case s.args.attach:
		// The target is left halted, tell the client where.
		s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
		s.sendEntryStop()
		return
	case s.args.target != nil:
		err = conn.ExecContinue(s.ctx, 0)
	default:
		err = conn.ExecRun(s.ctx)
	}
	if err != nil {
		s.sendErrorResponse(request.Request, FailedToConfigure, "Failed to configure", err.Error())
		return
	}
	s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
}

// sendEntryStop sends a stopped event for the current thread of a halted
// target.
func (s *Session) sendEntryStop() {
	threads, current, err := s.backend.Conn().ThreadInfo(s.ctx)
	if err != nil || len(threads) == 0 {
		return
	}
	if current == 0 {
		current = threads[0].ID
	}
	for _, t := range threads {
		if t.ID == current && t.State != "stopped" {
			return
		}
	}
	s.send(&dap.StoppedEvent{
		Event: *newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            "entry",
			ThreadId:          current,
			AllThreadsStopped: true,
		},
	})
}

// errUARTClose is reported when the UART connection could not be closed
// on disconnect.
var errUARTClose = errors.New("failed to close uart connection")

// stopProcesses stops GDB and, when the session owns it, the debug server.
// Stop timeouts are logged only.
func (s *Session) stopProcesses() {
	if s.backend != nil {
		if err := s.backend.Stop(); err != nil {
			s.log.Warnf("gdb: %v", err)
		}
		s.backend = nil
	}
	if s.server != nil {
		if s.args.target == nil || s.args.target.killServer() {
			if err := s.server.Stop(); err != nil {
				if errors.Is(err, process.ErrStopTimeout) {
					s.log.Warnf("debug server did not stop in time: %v", err)
				} else {
					s.log.Warnf("debug server: %v", err)
				}
			}
		}
		s.server = nil
	}
}

// shutdown ends the session: the UART connection first, then GDB, then the
// debug server. Only the UART close failure is returned, everything is
// stopped regardless. It is only called from the reading goroutine.
func (s *Session) shutdown() error {
	s.shutdownOnce.Do(func() {
		// GDB goes away on purpose, the client must not see terminated.
		s.terminated.Store(true)
		if err := s.uart.Close(); err != nil {
			s.shutdownErr = fmt.Errorf("%w: %v", errUARTClose, err)
		}
		s.stopProcesses()
		s.cancel()
	})
	return s.shutdownErr
}

func (s *Session) onDisconnectRequest(request *dap.DisconnectRequest) {
	if err := s.shutdown(); err != nil {
		s.sendErrorResponse(request.Request, FailedToDisconnect, "Failed to disconnect", err.Error())
		return
	}
	s.send(&dap.DisconnectResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onTerminateRequest(request *dap.TerminateRequest) {
	s.terminated.Store(true)
	s.stopProcesses()
	s.send(&dap.TerminateResponse{Response: *newResponse(request.Request)})
	s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
}
