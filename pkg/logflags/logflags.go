// Package logflags configures the per-layer loggers used by gdbtarget.
//
// Every layer of the adapter (the DAP server, the GDB/MI wire, the process
// managers and the UART bridge) gets its own logrus entry tagged with a
// "layer" field. Layers that were not selected with --log-output only log
// errors.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var any = false
var dap = false
var miWire = false
var processes = false
var uart = false

var logOut io.WriteCloser

// Fields is a set of log fields attached to every entry of a logger.
type Fields map[string]interface{}

var textFormatterInstance = &textFormatter{}

// textFormatter prints entries as "<time> <level> layer=<layer> <msg>"
// which keeps the wire logs readable when piped to a file.
type textFormatter struct{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(entry.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(entry.Level.String()))
	for k, v := range entry.Data {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if !strings.HasSuffix(entry.Message, "\n") {
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func makeLogger(level logrus.Level, fields Fields) *logrus.Entry {
	logger := logrus.New()
	logger.Level = level
	if logOut != nil {
		logger.Out = logOut
		logger.Formatter = textFormatterInstance
	} else {
		logger.Out = colorable.NewColorableStderr()
		logger.Formatter = &logrus.TextFormatter{
			DisableColors: !isatty.IsTerminal(os.Stderr.Fd()),
			FullTimestamp: true,
		}
	}
	return logger.WithFields(logrus.Fields(fields))
}

func makeFlaggableLogger(flag bool, fields Fields) *logrus.Entry {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Any returns true if any logging is enabled.
func Any() bool {
	return any
}

// DAP returns true if the DAP messages exchanged with the client should be
// logged.
func DAP() bool {
	return dap
}

// DAPLogger returns a logger for the DAP server.
func DAPLogger() *logrus.Entry {
	return makeFlaggableLogger(dap, Fields{"layer": "dap"})
}

// MIWire returns true if every GDB/MI line sent to and received from GDB
// should be logged.
func MIWire() bool {
	return miWire
}

// MILogger returns a logger for the GDB/MI channel.
func MILogger() *logrus.Entry {
	return makeFlaggableLogger(miWire, Fields{"layer": "mi"})
}

// Processes returns true if process management should be logged.
func Processes() bool {
	return processes
}

// ProcessLogger returns a logger for the GDB and server process managers.
func ProcessLogger() *logrus.Entry {
	return makeFlaggableLogger(processes, Fields{"layer": "process"})
}

// UART returns true if the UART bridge should log.
func UART() bool {
	return uart
}

// UARTLogger returns a logger for the UART bridge.
func UARTLogger() *logrus.Entry {
	return makeFlaggableLogger(uart, Fields{"layer": "uart"})
}

// WriteDAPListeningMessage writes the "DAP server listening" message in dap mode.
func WriteDAPListeningMessage(addr string) {
	writeListeningMessage("DAP", addr)
}

func writeListeningMessage(server string, addr string) {
	msg := fmt.Sprintf("%s server listening at: %s", server, addr)
	if logOut != nil {
		fmt.Fprintln(logOut, msg)
	} else {
		fmt.Println(msg)
	}
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets debugger flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "gdbtarget-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logOut != nil {
		log.SetOutput(logOut)
	}
	any = true
	if logstr == "" {
		logstr = "dap"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "dap":
			dap = true
		case "mi":
			miWire = true
		case "process":
			processes = true
		case "uart":
			uart = true
		default:
			return fmt.Errorf("unknown log output %q", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
