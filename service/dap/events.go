package dap

import (
	"strconv"

	"github.com/google/go-dap"

	"github.com/go-delve/gdbtarget/pkg/mi"
)

// handleRecord turns the records GDB sends on its own into events. It runs
// on the MI reader goroutine.
func (s *Session) handleRecord(rec *mi.Record) {
	switch rec.Kind {
	case mi.ConsoleStream:
		s.sendOutput("console", rec.Text)
	case mi.TargetStream:
		s.sendOutput("stdout", rec.Text)
	case mi.LogStream:
		s.sendOutput("log", rec.Text)
	case mi.ExecAsync:
		switch rec.Class {
		case "stopped":
			s.onStopped(rec.Results)
		case "running":
			e := &dap.ContinuedEvent{Event: *newEvent("continued")}
			if id := rec.Results.Str("thread-id"); id == "all" || id == "" {
				e.Body.AllThreadsContinued = true
			} else {
				e.Body.ThreadId = atoi(id)
			}
			s.send(e)
		}
	case mi.NotifyAsync:
		switch rec.Class {
		case "thread-created":
			s.sendThreadEvent("started", rec.Results.Str("id"))
		case "thread-exited":
			s.sendThreadEvent("exited", rec.Results.Str("id"))
		}
	}
}

func (s *Session) sendThreadEvent(reason, id string) {
	s.send(&dap.ThreadEvent{
		Event: *newEvent("thread"),
		Body:  dap.ThreadEventBody{Reason: reason, ThreadId: atoi(id)},
	})
}

func (s *Session) onStopped(results mi.Tuple) {
	reason := results.Str("reason")
	switch reason {
	case "exited-normally", "exited", "exited-signalled":
		// exit-code is printed in octal.
		code, _ := strconv.ParseInt(results.Str("exit-code"), 8, 64)
		s.send(&dap.ExitedEvent{
			Event: *newEvent("exited"),
			Body:  dap.ExitedEventBody{ExitCode: int(code)},
		})
		s.sendTerminatedEvent()
		return
	}

	e := &dap.StoppedEvent{Event: *newEvent("stopped")}
	e.Body.Reason = stopReason(reason, results.Str("signal-name"))
	e.Body.ThreadId = atoi(results.Str("thread-id"))
	e.Body.AllThreadsStopped = results.Str("stopped-threads") == "all"
	switch reason {
	case "breakpoint-hit":
		if id, err := strconv.Atoi(results.Str("bkptno")); err == nil {
			e.Body.HitBreakpointIds = []int{id}
		}
	case "signal-received":
		e.Body.Description = results.Str("signal-meaning")
		e.Body.Text = results.Str("signal-name")
	}
	s.send(e)
}

// stopReason maps the reason of a *stopped record to a stopped event
// reason.
func stopReason(reason, signal string) string {
	switch reason {
	case "breakpoint-hit":
		return "breakpoint"
	case "watchpoint-trigger", "read-watchpoint-trigger", "access-watchpoint-trigger":
		return "data breakpoint"
	case "end-stepping-range", "function-finished", "location-reached":
		return "step"
	case "signal-received":
		if signal == "SIGINT" || signal == "SIGTRAP" || signal == "0" {
			return "pause"
		}
		return "exception"
	case "":
		return "entry"
	}
	return reason
}
