package uart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type output struct {
	category string
	text     string
}

type recorder struct {
	mu  sync.Mutex
	out []output
}

func (r *recorder) record(category, text string) {
	r.mu.Lock()
	r.out = append(r.out, output{category, text})
	r.mu.Unlock()
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s []string
	for _, o := range r.out {
		s = append(s, o.text)
	}
	return s
}

func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.texts()) >= n }, 5*time.Second, 5*time.Millisecond, "got %q", r.texts())
	return r.texts()
}

func listen(t *testing.T) (net.Listener, Port) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, Port(strconv.Itoa(l.Addr().(*net.TCPAddr).Port))
}

func TestSocketLines(t *testing.T) {
	l, port := listen(t)
	rec := &recorder{}
	b := New(rec.record)

	require.NoError(t, b.Initialize(context.Background(), Config{SocketPort: port}, "127.0.0.1"))
	conn, err := l.Accept()
	require.NoError(t, err)

	texts := rec.waitFor(t, 1)
	assert.Equal(t, "listening on tcp port "+string(port)+eol, texts[0])

	_, err = io.WriteString(conn, "abc\nd")
	require.NoError(t, err)
	rec.waitFor(t, 2)
	// No output for a line before its terminator arrives.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.texts(), 2)

	_, err = io.WriteString(conn, "ef\nparti")
	require.NoError(t, err)
	_, err = io.WriteString(conn, "al")
	require.NoError(t, err)
	rec.waitFor(t, 3)
	require.NoError(t, conn.Close())

	texts = rec.waitFor(t, 5)
	assert.Equal(t, []string{
		"listening on tcp port " + string(port) + eol,
		"abc\n",
		"def\n",
		"partial" + eol,
		"closing socket connection" + eol,
	}, texts)
	for _, o := range rec.out {
		assert.Equal(t, CategorySocket, o.category)
	}
	assert.NoError(t, b.Close())
}

func TestSocketClose(t *testing.T) {
	l, port := listen(t)
	rec := &recorder{}
	b := New(rec.record)

	require.NoError(t, b.Initialize(context.Background(), Config{SocketPort: port}, ""))
	conn, err := l.Accept()
	require.NoError(t, err)
	defer conn.Close()
	rec.waitFor(t, 1)

	require.NoError(t, b.Close())
	assert.Equal(t, []string{"listening on tcp port " + string(port) + eol, "closing socket connection" + eol}, rec.texts())
	assert.NoError(t, b.Close())
}

func TestSocketConnectError(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	b.Dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	require.NoError(t, b.Initialize(context.Background(), Config{SocketPort: "4444"}, ""))
	texts := rec.waitFor(t, 1)
	assert.Equal(t, "error on socket connection - connection refused"+eol, texts[0])
	assert.NoError(t, b.Close())
}

func TestSocketDefaultHost(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	addrc := make(chan string, 1)
	b.Dial = func(_ context.Context, _, addr string) (net.Conn, error) {
		addrc <- addr
		return nil, errors.New("refused")
	}
	require.NoError(t, b.Initialize(context.Background(), Config{SocketPort: "4444"}, ""))
	assert.Equal(t, "localhost:4444", <-addrc)
	b.Close()
}

// fakePort is a serial port fed through a pipe.
type fakePort struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	closeErr error
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Close() error {
	if p.closeErr != nil {
		return p.closeErr
	}
	return p.r.Close()
}

func TestSerialLines(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	port := newFakePort()
	var gotMode *serial.Mode
	b.OpenSerial = func(path string, mode *serial.Mode) (SerialPort, error) {
		assert.Equal(t, "/dev/ttyUSB0", path)
		gotMode = mode
		return port, nil
	}

	cfg := Config{SerialPort: "/dev/ttyUSB0", EOLCharacter: "CRLF", Parity: "even"}
	require.NoError(t, b.Initialize(context.Background(), cfg, ""))
	rec.waitFor(t, 1)
	assert.Equal(t, &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.EvenParity, StopBits: serial.OneStopBit}, gotMode)

	_, err := io.WriteString(port.w, "boot ok\r\nvalue=1\nstill\r\nhalf")
	require.NoError(t, err)
	rec.waitFor(t, 3)

	require.NoError(t, b.Close())
	assert.Equal(t, []string{
		"listening on serial port /dev/ttyUSB0" + eol,
		"boot ok" + eol,
		"value=1\nstill" + eol,
		"half" + eol,
		"closing serial port connection" + eol,
	}, rec.texts())
	for _, o := range rec.out {
		assert.Equal(t, CategorySerial, o.category)
	}
}

func TestSerialOpenError(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) {
		return nil, errors.New("no such file or directory")
	}
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "/dev/missing"}, ""))
	texts := rec.waitFor(t, 1)
	assert.Equal(t, []string{"error on serial port connection - no such file or directory" + eol}, texts)
	assert.NoError(t, b.Close())
}

func TestSerialStreamError(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	port := newFakePort()
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return port, nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "/dev/ttyACM0"}, ""))
	rec.waitFor(t, 1)

	port.w.CloseWithError(errors.New("device disconnected"))
	texts := rec.waitFor(t, 3)
	assert.Equal(t, []string{
		"listening on serial port /dev/ttyACM0" + eol,
		"error on serial port connection - device disconnected" + eol,
		"closing serial port connection" + eol,
	}, texts)
	assert.NoError(t, b.Close())
}

func TestSerialPeerClose(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	port := newFakePort()
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return port, nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "/dev/ttyACM0"}, ""))
	rec.waitFor(t, 1)

	_, err := io.WriteString(port.w, "line\ntail")
	require.NoError(t, err)
	require.NoError(t, port.w.Close())

	// The end of the stream is not an error and flushes the partial line.
	texts := rec.waitFor(t, 4)
	assert.Equal(t, []string{
		"listening on serial port /dev/ttyACM0" + eol,
		"line" + eol,
		"tail" + eol,
		"closing serial port connection" + eol,
	}, texts)
	assert.Equal(t, "serial port /dev/ttyACM0 not connected", b.Status())
	assert.NoError(t, b.Close())
}

func TestSerialCloseError(t *testing.T) {
	rec := &recorder{}
	b := New(rec.record)
	port := newFakePort()
	port.closeErr = errors.New("port busy")
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return port, nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "COM3"}, ""))
	rec.waitFor(t, 1)

	// The device ends the stream while Close waits for the listener.
	go func() {
		time.Sleep(20 * time.Millisecond)
		port.w.Close()
	}()
	assert.EqualError(t, b.Close(), "port busy")
	assert.Equal(t, []string{
		"listening on serial port COM3" + eol,
		"closing serial port connection" + eol,
	}, rec.texts())
}

func TestCloseWaitIsBounded(t *testing.T) {
	old := closeTimeout
	closeTimeout = 50 * time.Millisecond
	defer func() { closeTimeout = old }()

	b := New(func(string, string) {})
	port := newFakePort()
	port.closeErr = errors.New("port busy")
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return port, nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "COM3"}, ""))
	require.Eventually(t, func() bool { return b.Status() == "listening on serial port COM3" }, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	assert.EqualError(t, b.Close(), "port busy")
	assert.True(t, time.Since(start) < 5*time.Second, "Close blocked")
	port.w.Close()
}

func TestHandshakingWarnings(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"XON/XOFF", "XON/XOFF handshaking is not supported, COM3 opened without flow control"},
		{"rts/cts", "RTS/CTS flow control is not supported, COM3 opened with RTS and DTR raised"},
		{"none", ""},
	}
	for _, tt := range tests {
		logger, hook := logrustest.NewNullLogger()
		b := New(func(string, string) {})
		b.log = logrus.NewEntry(logger)
		b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return newFakePort(), nil }
		require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "COM3", HandshakingMethod: tt.method}, ""))
		if tt.want == "" {
			assert.Empty(t, hook.AllEntries(), tt.method)
		} else {
			require.NotNil(t, hook.LastEntry(), tt.method)
			assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
			assert.Equal(t, tt.want, hook.LastEntry().Message)
		}
		assert.NoError(t, b.Close())
	}
}

func TestInitializeTwice(t *testing.T) {
	b := New(func(string, string) {})
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return newFakePort(), nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "COM3"}, ""))
	assert.ErrorIs(t, b.Initialize(context.Background(), Config{SerialPort: "COM3"}, ""), ErrAlreadyInitialized)
	assert.NoError(t, b.Close())
}

func TestStatus(t *testing.T) {
	b := New(func(string, string) {})
	assert.Equal(t, "not configured", b.Status())

	port := newFakePort()
	b.OpenSerial = func(string, *serial.Mode) (SerialPort, error) { return port, nil }
	require.NoError(t, b.Initialize(context.Background(), Config{SerialPort: "COM3"}, ""))
	require.Eventually(t, func() bool { return b.Status() == "listening on serial port COM3" }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	assert.Equal(t, "closed", b.Status())
}

func TestCloseWithoutInitialize(t *testing.T) {
	assert.NoError(t, New(func(string, string) {}).Close())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantErr bool
	}{
		{Config{}, true},
		{Config{SocketPort: "3456"}, false},
		{Config{SerialPort: "COM1"}, false},
		{Config{SerialPort: "COM1", StopBits: 1.5, Parity: "mark", HandshakingMethod: "RTS/CTS", EOLCharacter: "LF"}, false},
		{Config{SerialPort: "COM1", StopBits: 3}, true},
		{Config{SerialPort: "COM1", Parity: "sometimes"}, true},
		{Config{SerialPort: "COM1", HandshakingMethod: "DTR/DSR"}, true},
		{Config{SerialPort: "COM1", EOLCharacter: "CR"}, true},
	}
	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.wantErr {
			assert.Error(t, err, "%+v", tt.cfg)
		} else {
			assert.NoError(t, err, "%+v", tt.cfg)
		}
	}
}

func TestSerialMode(t *testing.T) {
	cfg := Config{SerialPort: "COM1", BaudRate: 9600, CharacterSize: 7, StopBits: 2, Parity: "odd", HandshakingMethod: "RTS/CTS"}
	mode, err := cfg.serialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate:          9600,
		DataBits:          7,
		Parity:            serial.OddParity,
		StopBits:          serial.TwoStopBits,
		InitialStatusBits: &serial.ModemOutputBits{RTS: true, DTR: true},
	}, mode)
}

func TestConfigUnmarshal(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"socketPort": 3456}`), &cfg))
	assert.Equal(t, Port("3456"), cfg.SocketPort)

	require.NoError(t, json.Unmarshal([]byte(`{"socketPort": "3457"}`), &cfg))
	assert.Equal(t, Port("3457"), cfg.SocketPort)

	require.NoError(t, json.Unmarshal([]byte(`{"serialPort": "/dev/ttyACM0", "baudRate": 921600, "stopBits": 1.5, "eolCharacter": "CRLF"}`), &cfg))
	assert.Equal(t, 921600, cfg.BaudRate)
	assert.Equal(t, 1.5, cfg.StopBits)
	assert.Equal(t, "\r\n", cfg.terminator())

	assert.Error(t, json.Unmarshal([]byte(`{"socketPort": true}`), &cfg))
}
