// Package dap implements VSCode's Debug Adaptor Protocol (DAP) on top of
// GDB's machine interface. The adapter serves a single client for a single
// debug session: it spawns GDB, optionally a debug server GDB connects
// to, and captures the target's UART output.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/go-delve/gdbtarget/pkg/disasm"
	"github.com/go-delve/gdbtarget/pkg/gdb"
	"github.com/go-delve/gdbtarget/pkg/logflags"
	"github.com/go-delve/gdbtarget/pkg/process"
	"github.com/go-delve/gdbtarget/pkg/uart"
	"github.com/go-delve/gdbtarget/service"
)

// Server implements a DAP server that can accept a single client for
// a single debug session. It does not support restarting.
// The server operates via two goroutines:
// (1) Main goroutine where the server is created via NewServer(),
// started via Run() and stopped via Stop().
// (2) Run goroutine started from Run() that accepts a client connection,
// reads, decodes and processes each request, issuing commands to GDB
// and sending back events and responses.
type Server struct {
	// config is all the information necessary to start the debugger and server.
	config *service.Config
	// listener is used to accept the client connection.
	listener net.Listener
	// stopTriggered is closed when the server is Stop()-ed.
	stopTriggered chan struct{}
	// done is closed when the run goroutine returns.
	done chan struct{}
	// log is used for structured logging.
	log *logrus.Entry

	sessionMu sync.Mutex
	session   *Session

	disconnectOnce sync.Once
}

// NewServer creates a new DAP Server. It takes an opened Listener
// via config and assumes its ownership. config.DisconnectChan has to be set;
// it will be closed by the server when the client disconnects or requests
// shutdown. Once DisconnectChan is closed, Server.Stop() must be called.
func NewServer(config *service.Config) *Server {
	logger := logflags.DAPLogger()
	if config.Listener.Addr().Network() != "stdio" {
		logflags.WriteDAPListeningMessage(config.Listener.Addr().String())
	}
	logger.Debug("DAP server pid = ", os.Getpid())
	return &Server{
		config:        config,
		listener:      config.Listener,
		stopTriggered: make(chan struct{}),
		done:          make(chan struct{}),
		log:           logger,
	}
}

// Stop stops the DAP server, closes the listener and the client connection
// and waits for the session to stop GDB, the debug server and the UART
// connection. This method mustn't be called more than once.
func (s *Server) Stop() {
	s.listener.Close()
	close(s.stopTriggered)

	s.sessionMu.Lock()
	if s.session != nil {
		s.session.Close()
	}
	s.sessionMu.Unlock()
	<-s.done
}

// signalDisconnect closes config.DisconnectChan if not nil, which
// signals that the client disconnected or there was a client
// connection failure. Since the server currently services only one
// client, this can be used as a signal to the entire server via
// Stop(). The function can be called multiple times.
func (s *Server) signalDisconnect() {
	s.disconnectOnce.Do(func() {
		if s.config.DisconnectChan != nil {
			close(s.config.DisconnectChan)
		}
	})
}

// Run launches a new goroutine where it accepts a client connection
// and starts processing requests from it. Use Stop() to close connection.
// The server does not support multiple clients, serially or in parallel.
// GDB won't be started until launch/attach request is received.
func (s *Server) Run() {
	go func() {
		defer close(s.done)
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopTriggered:
			default:
				s.log.Errorf("Error accepting client connection: %s\n", err)
			}
			s.signalDisconnect()
			return
		}
		s.sessionMu.Lock()
		select {
		case <-s.stopTriggered:
			s.sessionMu.Unlock()
			conn.Close()
			return
		default:
		}
		s.session = NewSession(conn, s.config)
		s.sessionMu.Unlock()

		s.session.ServeDAPCodec()
		s.signalDisconnect()
	}()
}

// Session is an abstraction for serving and shutting down
// a DAP debug session with a pre-connected client.
type Session struct {
	config *service.Config

	// conn is the accepted client connection.
	conn io.ReadWriteCloser
	// reader is used to read requests from the connection.
	reader *bufio.Reader
	// sendingMu synchronizes writing to conn: responses are written by
	// the reading goroutine, events also by the MI reader and the UART
	// listeners.
	sendingMu sync.Mutex
	// log is used for structured logging.
	log *logrus.Entry

	// ctx is canceled when the session is closed, failing requests that
	// wait for GDB or the debug server.
	ctx    context.Context
	cancel context.CancelFunc

	factory     gdb.Factory
	resolver    gdb.BreakpointOptionsResolver
	stopTimeout time.Duration

	// The fields below are only accessed from the reading goroutine.

	backend gdb.Backend
	server  gdb.Server
	uart    *uart.Bridge
	engine  *disasm.Engine
	args    launchAttachArgs

	sourceBreakpoints      map[string][]string
	functionBreakpoints    []string
	instructionBreakpoints []string
	frameHandles           *frameHandlesMap

	// terminated is set once the terminated event was sent, or when it
	// must not be sent anymore.
	terminated *atomic.Bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// launchAttachArgs captures arguments from launch/attach request that
// impact handling of subsequent requests.
type launchAttachArgs struct {
	// attach is set for attach requests.
	attach bool
	// target is the remote target, nil for native debugging.
	target *TargetConfig
	// hardwareBreakpoint selects hardware breakpoints by default.
	hardwareBreakpoint bool
	// stackTraceDepth is the maximum length of the returned list of stack frames.
	stackTraceDepth int
}

// newBridge creates the UART bridge of a session.
var newBridge = uart.New

// defaultArgs are the arguments of a session before launch or attach.
var defaultArgs = launchAttachArgs{
	stackTraceDepth: 50,
}

// NewSession creates a new DAP session for the client on conn.
func NewSession(conn io.ReadWriteCloser, config *service.Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		config:            config,
		conn:              conn,
		log:               logflags.DAPLogger(),
		ctx:               ctx,
		cancel:            cancel,
		factory:           config.Factory,
		resolver:          config.BreakpointOptions,
		stopTimeout:       process.DefaultStopTimeout,
		args:              defaultArgs,
		sourceBreakpoints: make(map[string][]string),
		frameHandles:      newFrameHandlesMap(),
		terminated:        atomic.NewBool(false),
	}
	if s.factory == nil {
		s.factory = gdb.DefaultFactory{}
	}
	if s.resolver == nil {
		s.resolver = gdb.DefaultBreakpointOptions{}
	}
	if config.Defaults != nil {
		s.stopTimeout = config.Defaults.StopTimeoutDuration(process.DefaultStopTimeout)
	}
	s.uart = newBridge(s.sendOutput)
	return s
}

// Close cancels pending requests and closes the client connection, which
// ends ServeDAPCodec. It can be called from any goroutine.
func (s *Session) Close() {
	s.cancel()
	s.conn.Close()
}

// ServeDAPCodec reads and decodes requests from the client
// until it encounters an error or EOF. It then stops GDB, the debug
// server and the UART connection, unless a disconnect request did it.
func (s *Session) ServeDAPCodec() {
	defer func() {
		s.shutdown()
		s.conn.Close()
	}()
	s.reader = bufio.NewReader(s.conn)
	for {
		request, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			if derr, ok := err.(*dap.DecodeProtocolMessageFieldError); ok {
				// A request or event this adapter has no decoding support for.
				s.sendUnsupportedDecodeResponse(derr)
				continue
			}
			if err != io.EOF && s.ctx.Err() == nil {
				s.log.Error("DAP error: ", err)
			}
			return
		}
		s.handleRequest(request)

		if _, ok := request.(*dap.DisconnectRequest); ok {
			return
		}
	}
}

func (s *Session) handleRequest(request dap.Message) {
	defer func() {
		// In case a handler panics, we catch the panic and send an error response
		// back to the client.
		if ierr := recover(); ierr != nil {
			s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("%v", ierr))
		}
	}()

	jsonmsg, _ := json.Marshal(request)
	s.log.Debug("[<- from client]", string(jsonmsg))

	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request)
	case *dap.AttachRequest:
		s.onAttachRequest(request)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.TerminateRequest:
		s.onTerminateRequest(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		s.onSetFunctionBreakpointsRequest(request)
	case *dap.SetInstructionBreakpointsRequest:
		s.onSetInstructionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		s.onContinueRequest(request)
	case *dap.NextRequest:
		s.onNextRequest(request)
	case *dap.StepInRequest:
		s.onStepInRequest(request)
	case *dap.StepOutRequest:
		s.onStepOutRequest(request)
	case *dap.PauseRequest:
		s.onPauseRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.DisassembleRequest:
		s.onDisassembleRequest(request)
	case *dap.RestartRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ScopesRequest:
		// Variables are shown through evaluate only.
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.VariablesRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SetVariableRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SetExpressionRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.StepBackRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ReverseContinueRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.RestartFrameRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.GotoRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SourceRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.TerminateThreadsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.StepInTargetsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.GotoTargetsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.CompletionsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ExceptionInfoRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.LoadedSourcesRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.DataBreakpointInfoRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SetDataBreakpointsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ReadMemoryRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.CancelRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.BreakpointLocationsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ModulesRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	default:
		// This is a DAP message that go-dap has a struct for, so
		// decoding succeeded, but this function does not know how
		// to handle.
		s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("Unable to process %#v\n", request))
	}
}

func (s *Session) send(message dap.Message) {
	jsonmsg, _ := json.Marshal(message)
	s.log.Debug("[-> to client]", string(jsonmsg))
	s.sendingMu.Lock()
	defer s.sendingMu.Unlock()
	if err := dap.WriteProtocolMessage(s.conn, message); err != nil {
		s.log.Debug("failed to send: ", err)
	}
}

// sendOutput sends an output event. It is safe to call from any goroutine.
func (s *Session) sendOutput(category, output string) {
	s.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body: dap.OutputEventBody{
			Category: category,
			Output:   output,
		},
	})
}

func (s *Session) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsInstructionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsDisassembleRequest = true
	response.Body.SupportsSteppingGranularity = true
	response.Body.SupportsTerminateRequest = true
	response.Body.SupportsSetVariable = false
	response.Body.SupportsRestartRequest = false
	response.Body.SupportsStepBack = false
	response.Body.SupportsSetExpression = false
	response.Body.SupportsLoadedSourcesRequest = false
	response.Body.SupportsReadMemoryRequest = false
	response.Body.SupportsCancelRequest = false
	s.send(response)
}

func (s *Session) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	// Unlike what DAP documentation claims, this request is always sent
	// even though we specified no filters at initialization. Handle as no-op.
	s.send(&dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)})
}

// debugging reports whether GDB was started by a launch or attach request.
func (s *Session) debugging() bool {
	return s.backend != nil
}

func (s *Session) onContinueRequest(request *dap.ContinueRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToContinue, "Unable to continue", "no debug session")
		return
	}
	s.frameHandles.reset()
	if err := s.backend.Conn().ExecContinue(s.ctx, 0); err != nil {
		s.sendErrorResponse(request.Request, FailedToContinue, "Unable to continue", err.Error())
		return
	}
	response := &dap.ContinueResponse{Response: *newResponse(request.Request)}
	response.Body.AllThreadsContinued = true
	s.send(response)
}

// step runs one of the MI stepping commands for a next, stepIn or stepOut
// request.
func (s *Session) step(request dap.Request, threadID int, stepFn func(context.Context, int) error, response dap.Message) {
	if !s.debugging() {
		s.sendErrorResponse(request, FailedToStep, "Unable to step", "no debug session")
		return
	}
	s.frameHandles.reset()
	if err := stepFn(s.ctx, threadID); err != nil {
		s.sendErrorResponse(request, FailedToStep, "Unable to step", err.Error())
		return
	}
	s.send(response)
}

func (s *Session) onNextRequest(request *dap.NextRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToStep, "Unable to step", "no debug session")
		return
	}
	conn := s.backend.Conn()
	fn := conn.ExecNext
	if request.Arguments.Granularity == "instruction" {
		fn = conn.ExecNextInstruction
	}
	s.step(request.Request, request.Arguments.ThreadId, fn, &dap.NextResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onStepInRequest(request *dap.StepInRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToStep, "Unable to step", "no debug session")
		return
	}
	conn := s.backend.Conn()
	fn := conn.ExecStep
	if request.Arguments.Granularity == "instruction" {
		fn = conn.ExecStepInstruction
	}
	s.step(request.Request, request.Arguments.ThreadId, fn, &dap.StepInResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onStepOutRequest(request *dap.StepOutRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToStep, "Unable to step", "no debug session")
		return
	}
	s.step(request.Request, request.Arguments.ThreadId, s.backend.Conn().ExecFinish, &dap.StepOutResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onPauseRequest(request *dap.PauseRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, FailedToPause, "Unable to pause", "no debug session")
		return
	}
	if err := s.backend.Conn().ExecInterrupt(s.ctx, 0); err != nil {
		s.sendErrorResponse(request.Request, FailedToPause, "Unable to pause", err.Error())
		return
	}
	s.send(&dap.PauseResponse{Response: *newResponse(request.Request)})
}

func (s *Session) onThreadsRequest(request *dap.ThreadsRequest) {
	response := &dap.ThreadsResponse{Response: *newResponse(request.Request)}
	response.Body.Threads = []dap.Thread{}
	if !s.debugging() {
		s.send(response)
		return
	}
	threads, _, err := s.backend.Conn().ThreadInfo(s.ctx)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", err.Error())
		return
	}
	for _, t := range threads {
		name := t.Name
		if name == "" {
			name = t.TargetID
		}
		response.Body.Threads = append(response.Body.Threads, dap.Thread{Id: t.ID, Name: name})
	}
	s.send(response)
}

func (s *Session) onStackTraceRequest(request *dap.StackTraceRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", "no debug session")
		return
	}
	start := request.Arguments.StartFrame
	levels := s.args.stackTraceDepth
	if request.Arguments.Levels > 0 {
		levels = request.Arguments.Levels
	}
	threadID := request.Arguments.ThreadId

	frames, err := s.backend.Conn().StackListFrames(s.ctx, threadID, start, start+levels-1)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", err.Error())
		return
	}

	response := &dap.StackTraceResponse{Response: *newResponse(request.Request)}
	response.Body.StackFrames = make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		name := f.Func
		if name == "" {
			name = "??"
		}
		frame := dap.StackFrame{
			Id:                          s.frameHandles.create(frameRef{threadID: threadID, level: f.Level}),
			Name:                        name,
			Line:                        f.Line,
			InstructionPointerReference: f.Addr,
		}
		if f.File != "" || f.Fullname != "" {
			frame.Source = &dap.Source{Name: f.File, Path: f.Fullname}
		}
		response.Body.StackFrames[i] = frame
	}
	if len(frames) < levels {
		response.Body.TotalFrames = start + len(frames)
	}
	s.send(response)
}

func (s *Session) onEvaluateRequest(request *dap.EvaluateRequest) {
	expr := request.Arguments.Expression
	if request.Arguments.Context == "repl" && isAdapterCommand(expr) {
		out, err := s.adapterCommand(expr)
		if err != nil {
			s.sendErrorResponse(request.Request, UnableToRunCommand, "Unable to run command", err.Error())
			return
		}
		response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
		response.Body.Result = out
		s.send(response)
		return
	}
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", "no debug session")
		return
	}

	response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
	if len(expr) > 0 && expr[0] == '>' {
		// Passed to GDB as typed, output arrives as console output events.
		if err := s.backend.Conn().SendCommand(s.ctx, expr[1:]); err != nil {
			s.sendErrorResponse(request.Request, UnableToRunCommand, "Unable to run command", err.Error())
			return
		}
		s.send(response)
		return
	}

	threadID, level := 0, 0
	if request.Arguments.FrameId > 0 {
		ref, ok := s.frameHandles.get(request.Arguments.FrameId)
		if !ok {
			s.sendErrorResponse(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression",
				fmt.Sprintf("unknown frame id %d", request.Arguments.FrameId))
			return
		}
		threadID, level = ref.threadID, ref.level
	}
	value, err := s.backend.Conn().DataEvaluateExpression(s.ctx, expr, threadID, level)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", err.Error())
		return
	}
	response.Body.Result = value
	s.send(response)
}

// disassembleResponse is the response to a disassemble request. It
// carries the presentation hint marking instructions that could not be
// read.
type disassembleResponse struct {
	dap.Response
	Body disassembleResponseBody `json:"body"`
}

type disassembleResponseBody struct {
	Instructions []disassembledInstruction `json:"instructions"`
}

type disassembledInstruction struct {
	Address          string      `json:"address"`
	InstructionBytes string      `json:"instructionBytes,omitempty"`
	Instruction      string      `json:"instruction"`
	Symbol           string      `json:"symbol,omitempty"`
	Location         *dap.Source `json:"location,omitempty"`
	Line             int         `json:"line,omitempty"`
	PresentationHint string      `json:"presentationHint,omitempty"`
}

func (s *Session) onDisassembleRequest(request *dap.DisassembleRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToDisassemble, "Unable to disassemble", "no debug session")
		return
	}
	args := request.Arguments
	list, err := s.engine.Disassemble(s.ctx, args.MemoryReference, args.Offset, args.InstructionOffset, args.InstructionCount)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToDisassemble, "Unable to disassemble", err.Error())
		return
	}

	response := &disassembleResponse{Response: *newResponse(request.Request)}
	response.Body.Instructions = make([]disassembledInstruction, len(list))
	for i, insn := range list {
		di := disassembledInstruction{
			Address:          insn.Address,
			InstructionBytes: insn.InstructionBytes,
			Instruction:      insn.Instruction,
			Symbol:           insn.Symbol,
			Line:             insn.Line,
		}
		if insn.Location != nil {
			di.Location = &dap.Source{Name: insn.Location.Name, Path: insn.Location.Path}
		}
		if insn.Invalid {
			di.PresentationHint = "invalid"
		}
		response.Body.Instructions[i] = di
	}
	s.send(response)
}

func (s *Session) sendErrorResponse(request dap.Request, id int, summary, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.Command = request.Command
	er.RequestSeq = request.Seq
	er.Success = false
	er.Message = summary
	er.Body.Error = &dap.ErrorMessage{
		Id:       id,
		Format:   fmt.Sprintf("%s: %s", summary, details),
		ShowUser: true,
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

// sendInternalErrorResponse sends an "internal error" response back to the client.
// We only take a seq here because we don't want to make assumptions about the
// kind of message received by the server that this error is a reply to.
func (s *Session) sendInternalErrorResponse(seq int, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.RequestSeq = seq
	er.Success = false
	er.Message = "Internal Error"
	er.Body.Error = &dap.ErrorMessage{
		Id:     InternalError,
		Format: fmt.Sprintf("%s: %s", er.Message, details),
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func (s *Session) sendUnsupportedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, UnsupportedCommand, "Unsupported command",
		fmt.Sprintf("cannot process %q request", request.Command))
}

func (s *Session) sendUnsupportedDecodeResponse(err *dap.DecodeProtocolMessageFieldError) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.RequestSeq = err.Seq
	er.Success = false
	er.Message = "Unsupported command"
	er.Body.Error = &dap.ErrorMessage{
		Id:     UnsupportedCommand,
		Format: fmt.Sprintf("%s: %s", er.Message, err.Error()),
	}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
