package mi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/gdbtarget/pkg/logflags"
)

// ErrClosed is returned for commands issued on, or pending at the time
// of, a closed connection.
var ErrClosed = errors.New("MI connection closed")

const wireMaxLen = 120

// Error is a ^error result record.
type Error struct {
	Command string
	Msg     string
	Code    string
}

func (err *Error) Error() string {
	return err.Msg
}

// Handler receives every record that is not the result of a command.
// It is called from the reading goroutine and must not call Exec.
type Handler func(*Record)

// Conn is a command channel to a GDB process. Commands are strictly
// serialized: Exec holds the channel from the write of a command until its
// result record is received.
type Conn struct {
	w       io.Writer
	closer  io.Closer
	handler Handler
	log     *logrus.Entry

	execMu sync.Mutex

	mu      sync.Mutex
	token   int
	pending map[int]chan *Record
	closed  bool
	done    chan struct{}
	err     error
}

// NewConn returns a connection reading records from r and writing
// commands to w. If w is an io.Closer it is closed by Close. handler may
// be nil.
func NewConn(r io.Reader, w io.Writer, handler Handler) *Conn {
	c := &Conn{
		w:       w,
		handler: handler,
		log:     logflags.MILogger(),
		pending: make(map[int]chan *Record),
		done:    make(chan struct{}),
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

// Done returns a channel closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection was closed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Exec sends a command and waits for its result record. A ^error result
// is returned as *Error along with the record.
func (c *Conn) Exec(ctx context.Context, cmd string, args ...string) (*Record, error) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.token++
	tok := c.token
	ch := make(chan *Record, 1)
	c.pending[tok] = ch
	c.mu.Unlock()

	line := fmt.Sprintf("%d%s", tok, cmd)
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	c.logWire("<- ", line)
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		c.forget(tok)
		return nil, fmt.Errorf("could not send %s: %w", cmd, err)
	}

	select {
	case rec := <-ch:
		return result(cmd, rec)
	case <-c.done:
		select {
		case rec := <-ch:
			return result(cmd, rec)
		default:
		}
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(tok)
		return nil, ctx.Err()
	}
}

func result(cmd string, rec *Record) (*Record, error) {
	if rec.Class == "error" {
		return rec, &Error{Command: cmd, Msg: rec.Results.Str("msg"), Code: rec.Results.Str("code")}
	}
	return rec, nil
}

func (c *Conn) forget(tok int) {
	c.mu.Lock()
	delete(c.pending, tok)
	c.mu.Unlock()
}

// Close closes the write side and fails pending commands with ErrClosed.
func (c *Conn) Close() error {
	var err error
	if c.closer != nil {
		err = c.closer.Close()
	}
	c.shutdown(ErrClosed)
	return err
}

func (c *Conn) shutdown(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = reason
	c.pending = nil
	close(c.done)
}

func (c *Conn) readLoop(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if err == io.EOF {
				err = ErrClosed
			}
			c.shutdown(err)
			return
		}
	}
}

func (c *Conn) dispatch(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	c.logWire("-> ", line)
	rec, err := ParseRecord(line)
	if err != nil {
		c.log.Errorf("skipping record: %v", err)
		return
	}
	if rec.Kind == ResultRecord && rec.Token >= 0 {
		c.mu.Lock()
		ch, ok := c.pending[rec.Token]
		delete(c.pending, rec.Token)
		c.mu.Unlock()
		if ok {
			ch <- rec
			return
		}
	}
	if rec.Kind == Prompt {
		return
	}
	if c.handler != nil {
		c.handler(rec)
	}
}

func (c *Conn) logWire(dir, line string) {
	if !logflags.MIWire() {
		return
	}
	if len(line) > wireMaxLen {
		c.log.Debugf("%s%s...", dir, line[:wireMaxLen])
		return
	}
	c.log.Debugf("%s%s", dir, line)
}
