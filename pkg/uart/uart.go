// Package uart forwards the text a target prints on its UART, read from a
// serial device or from a TCP socket, to the client's output.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/go-delve/gdbtarget/pkg/logflags"
)

// Output categories.
const (
	CategorySerial = "Serial Port"
	CategorySocket = "Socket"
)

// eol is the line terminator of the host.
var eol = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// OutputFunc delivers a piece of output to the client. It is called from
// the listener goroutines.
type OutputFunc func(category, output string)

// SerialPort is the part of a serial port used by the bridge.
type SerialPort interface {
	io.Reader
	io.Closer
}

// closeTimeout bounds how long Close waits for the listener to finish.
var closeTimeout = time.Second

// ErrAlreadyInitialized is returned by Initialize on a bridge that is
// already listening.
var ErrAlreadyInitialized = errors.New("uart already initialized")

// Bridge captures the output of one serial device or TCP socket.
type Bridge struct {
	output OutputFunc
	log    *logrus.Entry

	// OpenSerial opens a serial device, serial.Open by default.
	OpenSerial func(path string, mode *serial.Mode) (SerialPort, error)
	// Dial connects a socket, net.Dialer.DialContext by default.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	closing *atomic.Bool

	mu      sync.Mutex
	started bool
	source  string
	current io.Closer
	cancel  context.CancelFunc
	g       *errgroup.Group
}

// New returns a bridge sending its output to output.
func New(output OutputFunc) *Bridge {
	var d net.Dialer
	return &Bridge{
		output: output,
		log:    logflags.UARTLogger(),
		OpenSerial: func(path string, mode *serial.Mode) (SerialPort, error) {
			return serial.Open(path, mode)
		},
		Dial:    d.DialContext,
		closing: atomic.NewBool(false),
	}
}

// Initialize starts listening according to cfg. Connection problems are
// reported as output, the returned error is for invalid configurations
// only. host overrides localhost as the socket host.
func (b *Bridge) Initialize(ctx context.Context, cfg Config, host string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyInitialized
	}
	b.started = true

	// Listeners outlive the request that started them.
	lctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.g, lctx = errgroup.WithContext(lctx)

	if cfg.SerialPort != "" {
		if cfg.SocketPort != "" {
			b.log.Warnf("both serialPort and socketPort configured, using serial port %s", cfg.SerialPort)
		}
		switch strings.ToUpper(cfg.HandshakingMethod) {
		case "XON/XOFF":
			b.log.Warnf("XON/XOFF handshaking is not supported, %s opened without flow control", cfg.SerialPort)
		case "RTS/CTS":
			// go.bug.st/serial only sets the initial modem lines.
			b.log.Warnf("RTS/CTS flow control is not supported, %s opened with RTS and DTR raised", cfg.SerialPort)
		}
		b.source = "serial port " + cfg.SerialPort
		b.g.Go(func() error { return b.serveSerial(cfg) })
		return nil
	}
	if host == "" {
		host = "localhost"
	}
	b.source = "tcp port " + net.JoinHostPort(host, string(cfg.SocketPort))
	b.g.Go(func() error { return b.serveSocket(lctx, string(cfg.SocketPort), host) })
	return nil
}

// Close closes the open connection and waits, at most closeTimeout, for
// the listener to report the closure. The error of closing the device is
// returned as is.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.started || b.closing.Load() {
		b.mu.Unlock()
		return nil
	}
	b.closing.Store(true)
	c := b.current
	b.cancel()
	b.mu.Unlock()

	var closeErr error
	if c != nil {
		closeErr = c.Close()
	}

	done := make(chan error, 1)
	go func() { done <- b.g.Wait() }()
	timer := time.NewTimer(closeTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			b.log.Debugf("uart listener: %v", err)
		}
	case <-timer.C:
		b.log.Warnf("uart listener did not stop within %v", closeTimeout)
	}
	return closeErr
}

// Status describes the connection of the bridge.
func (b *Bridge) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case !b.started:
		return "not configured"
	case b.closing.Load():
		return "closed"
	case b.current == nil:
		return b.source + " not connected"
	}
	return "listening on " + b.source
}

// attach records c as the open connection, unless Close was called.
func (b *Bridge) attach(c io.Closer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing.Load() {
		return false
	}
	b.current = c
	return true
}

func (b *Bridge) detach() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
}

func (b *Bridge) serveSerial(cfg Config) error {
	mode, err := cfg.serialMode()
	if err != nil {
		return err
	}
	port, err := b.OpenSerial(cfg.SerialPort, mode)
	if err != nil {
		b.output(CategorySerial, fmt.Sprintf("error on serial port connection - %v%s", err, eol))
		return err
	}
	if !b.attach(port) {
		port.Close()
		return nil
	}
	b.output(CategorySerial, "listening on serial port "+cfg.SerialPort+eol)

	f := newLineFramer(cfg.terminator())
	buf := make([]byte, 1024)
	for {
		n, err := port.Read(buf)
		for _, line := range f.Write(buf[:n]) {
			b.output(CategorySerial, line+eol)
		}
		if err == nil {
			continue
		}
		var streamErr error
		if !b.closing.Load() {
			if err != io.EOF {
				streamErr = err
				b.output(CategorySerial, fmt.Sprintf("error on serial port connection - %v%s", err, eol))
			}
			b.detach()
			port.Close()
		}
		if rest := f.Flush(); rest != "" {
			b.output(CategorySerial, rest+eol)
		}
		b.output(CategorySerial, "closing serial port connection"+eol)
		return streamErr
	}
}

func (b *Bridge) serveSocket(ctx context.Context, port, host string) error {
	conn, err := b.Dial(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		if b.closing.Load() {
			return nil
		}
		b.output(CategorySocket, fmt.Sprintf("error on socket connection - %v%s", err, eol))
		return err
	}
	if !b.attach(conn) {
		conn.Close()
		return nil
	}
	b.output(CategorySocket, "listening on tcp port "+port+eol)

	f := newLineFramer("\n")
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		for _, line := range f.Write(buf[:n]) {
			b.output(CategorySocket, line+"\n")
		}
		if err == nil {
			continue
		}
		var streamErr error
		if !b.closing.Load() {
			if err != io.EOF {
				streamErr = err
				b.output(CategorySocket, fmt.Sprintf("error on socket connection - %v%s", err, eol))
			}
			b.detach()
			conn.Close()
		}
		if rest := f.Flush(); rest != "" {
			b.output(CategorySocket, rest+eol)
		}
		b.output(CategorySocket, "closing socket connection"+eol)
		return streamErr
	}
}
