package service

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ListenerPipe returns a full-duplex in-memory connection, like net.Pipe.
// One end of the connection is returned as a net.Listener whose first
// Accept returns it.
func ListenerPipe() (net.Listener, net.Conn) {
	conn0, conn1 := net.Pipe()
	return newPreconnectedListener(conn0), conn1
}

// StdioListener returns a net.Listener accepting a single connection that
// reads from r and writes to w, typically the standard streams of an
// adapter started by its client.
func StdioListener(r io.ReadCloser, w io.WriteCloser) net.Listener {
	return newPreconnectedListener(&stdioConn{r: r, w: w})
}

// preconnectedListener satisfies the net.Listener interface by accepting a
// single pre-established connection.
// The first call to Accept will return the conn field, any subsequent call
// will block until the listener is closed.
type preconnectedListener struct {
	accepted bool
	conn     net.Conn
	closech  chan struct{}
	closeMu  sync.Mutex
	acceptMu sync.Mutex
}

func newPreconnectedListener(conn net.Conn) *preconnectedListener {
	return &preconnectedListener{conn: conn, closech: make(chan struct{})}
}

// Accept returns the pre-established connection the first time it's called,
// it blocks until the listener is closed on every subsequent call.
func (l *preconnectedListener) Accept() (net.Conn, error) {
	l.acceptMu.Lock()
	defer l.acceptMu.Unlock()
	if !l.accepted {
		l.accepted = true
		return l.conn, nil
	}
	l.closeMu.Lock()
	ch := l.closech
	l.closeMu.Unlock()
	if ch != nil {
		<-ch
	}
	return nil, errors.New("accept failed: listener closed")
}

// Close closes the listener.
func (l *preconnectedListener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closech == nil {
		return nil
	}
	close(l.closech)
	l.closech = nil
	return nil
}

// Addr returns the listener's network address.
func (l *preconnectedListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

type stdioAddr struct{}

func (stdioAddr) Network() string { return "stdio" }
func (stdioAddr) String() string  { return "stdio" }

// stdioConn is a net.Conn over a pair of streams. Deadlines are not
// supported.
type stdioConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (c *stdioConn) Read(b []byte) (int, error)  { return c.r.Read(b) }
func (c *stdioConn) Write(b []byte) (int, error) { return c.w.Write(b) }

func (c *stdioConn) Close() error {
	werr := c.w.Close()
	if err := c.r.Close(); err != nil {
		return err
	}
	return werr
}

func (c *stdioConn) LocalAddr() net.Addr  { return stdioAddr{} }
func (c *stdioConn) RemoteAddr() net.Addr { return stdioAddr{} }

func (c *stdioConn) SetDeadline(time.Time) error      { return nil }
func (c *stdioConn) SetReadDeadline(time.Time) error  { return nil }
func (c *stdioConn) SetWriteDeadline(time.Time) error { return nil }
