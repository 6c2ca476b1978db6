package dap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-dap"

	"github.com/go-delve/gdbtarget/pkg/disasm"
	"github.com/go-delve/gdbtarget/pkg/mi"
)

func (s *Session) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "no debug session")
		return
	}
	path := request.Arguments.Source.Path
	if path == "" {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "empty file path")
		return
	}

	// All breakpoints of the file are replaced.
	if err := s.backend.Conn().BreakDelete(s.ctx, s.sourceBreakpoints[path]...); err != nil {
		s.log.Debugf("deleting breakpoints of %s: %v", path, err)
	}
	delete(s.sourceBreakpoints, path)

	var numbers []string
	response := &dap.SetBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		loc := mi.BreakpointLocation{Source: path, Line: want.Line}
		bp, number := s.insertBreakpoint(loc, want.Condition, want.HitCondition)
		if bp.Line == 0 {
			bp.Line = want.Line
		}
		if number != "" {
			numbers = append(numbers, number)
		}
		response.Body.Breakpoints[i] = bp
	}
	if len(numbers) > 0 {
		s.sourceBreakpoints[path] = numbers
	}
	s.send(response)
}

func (s *Session) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "no debug session")
		return
	}
	if err := s.backend.Conn().BreakDelete(s.ctx, s.functionBreakpoints...); err != nil {
		s.log.Debugf("deleting function breakpoints: %v", err)
	}
	s.functionBreakpoints = nil

	response := &dap.SetFunctionBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		if strings.TrimSpace(want.Name) == "" {
			response.Body.Breakpoints[i] = dap.Breakpoint{Message: "empty function name"}
			continue
		}
		bp, number := s.insertBreakpoint(mi.BreakpointLocation{Function: want.Name}, want.Condition, want.HitCondition)
		if number != "" {
			s.functionBreakpoints = append(s.functionBreakpoints, number)
		}
		response.Body.Breakpoints[i] = bp
	}
	s.send(response)
}

func (s *Session) onSetInstructionBreakpointsRequest(request *dap.SetInstructionBreakpointsRequest) {
	if !s.debugging() {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "no debug session")
		return
	}
	if err := s.backend.Conn().BreakDelete(s.ctx, s.instructionBreakpoints...); err != nil {
		s.log.Debugf("deleting instruction breakpoints: %v", err)
	}
	s.instructionBreakpoints = nil

	response := &dap.SetInstructionBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		addr := want.InstructionReference
		if want.Offset != 0 {
			if a, err := disasm.OffsetAddress(addr, int64(want.Offset)); err == nil {
				addr = a
			} else {
				addr = fmt.Sprintf("(%s)+%d", addr, want.Offset)
			}
		}
		bp, number := s.insertBreakpoint(mi.BreakpointLocation{Address: addr}, want.Condition, want.HitCondition)
		if number != "" {
			s.instructionBreakpoints = append(s.instructionBreakpoints, number)
		}
		response.Body.Breakpoints[i] = bp
	}
	s.send(response)
}

// insertBreakpoint inserts one breakpoint with the options the resolver
// picks for it. A failure only affects this breakpoint, it is reported as
// unverified with the reason as message. The GDB breakpoint number is
// returned for inserted breakpoints.
func (s *Session) insertBreakpoint(loc mi.BreakpointLocation, condition, hitCondition string) (dap.Breakpoint, string) {
	opts := mi.BreakInsertOptions{
		Hardware:  s.args.hardwareBreakpoint,
		Pending:   loc.Address == "",
		Condition: condition,
	}
	if hitCondition != "" {
		n, err := strconv.Atoi(strings.TrimSpace(hitCondition))
		if err != nil || n < 1 {
			return dap.Breakpoint{Message: fmt.Sprintf("invalid hit condition %q", hitCondition)}, ""
		}
		opts.IgnoreCount = n - 1
	}

	opts, err := s.resolver.Resolve(s.ctx, loc, opts)
	if err != nil {
		s.log.Debugf("breakpoint options of %s: %v", loc, err)
		return dap.Breakpoint{Message: err.Error()}, ""
	}
	inserted, err := s.backend.Conn().BreakInsert(s.ctx, loc, opts)
	if err != nil {
		return dap.Breakpoint{Message: err.Error()}, ""
	}

	bp := dap.Breakpoint{
		Id:       atoi(inserted.Number),
		Verified: true,
		Line:     inserted.Line,
	}
	switch inserted.Addr {
	case "<PENDING>":
		bp.Verified = false
		bp.Message = "pending"
	case "<MULTIPLE>", "":
	default:
		bp.InstructionReference = inserted.Addr
	}
	return bp, inserted.Number
}
