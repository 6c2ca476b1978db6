// Package mi speaks the GDB machine interface: it parses the records GDB
// prints in --interpreter=mi mode and serializes commands over its
// standard streams.
package mi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// RecordKind is the kind of an output record.
type RecordKind uint8

const (
	// ResultRecord is the reply to a command: ^done, ^running, ^error...
	ResultRecord RecordKind = iota
	// ExecAsync is an execution state change: *stopped, *running.
	ExecAsync
	// StatusAsync is progress information of a slow operation.
	StatusAsync
	// NotifyAsync is a notification: =thread-created, =breakpoint-modified...
	NotifyAsync
	// ConsoleStream is CLI output meant for the user.
	ConsoleStream
	// TargetStream is output of the debugged program.
	TargetStream
	// LogStream is GDB's internal log output.
	LogStream
	// Prompt is the (gdb) line terminating a batch of output.
	Prompt
)

func (k RecordKind) String() string {
	switch k {
	case ResultRecord:
		return "result"
	case ExecAsync:
		return "exec"
	case StatusAsync:
		return "status"
	case NotifyAsync:
		return "notify"
	case ConsoleStream:
		return "console"
	case TargetStream:
		return "target"
	case LogStream:
		return "log"
	case Prompt:
		return "prompt"
	}
	return "unknown"
}

// Value is one of string, Tuple or List.
type Value interface{}

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Tuple is an ordered {name=value,...} sequence.
type Tuple []Result

// List is a [...] sequence. Its elements are values, or Result for lists
// of name=value pairs.
type List []Value

// Get returns the value of the first field called name.
func (t Tuple) Get(name string) (Value, bool) {
	for _, r := range t {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// Str returns the field called name if it is a string.
func (t Tuple) Str(name string) string {
	v, _ := t.Get(name)
	s, _ := v.(string)
	return s
}

// Tuple returns the field called name if it is a tuple.
func (t Tuple) Tuple(name string) Tuple {
	v, _ := t.Get(name)
	r, _ := v.(Tuple)
	return r
}

// List returns the field called name if it is a list.
func (t Tuple) List(name string) List {
	v, _ := t.Get(name)
	r, _ := v.(List)
	return r
}

// Values returns the elements of l with the names of name=value elements
// dropped.
func (l List) Values() []Value {
	r := make([]Value, len(l))
	for i, v := range l {
		if res, ok := v.(Result); ok {
			v = res.Value
		}
		r[i] = v
	}
	return r
}

// Tuples returns the tuple elements of l.
func (l List) Tuples() []Tuple {
	var r []Tuple
	for _, v := range l.Values() {
		if t, ok := v.(Tuple); ok {
			r = append(r, t)
		}
	}
	return r
}

// Record is one line of MI output.
type Record struct {
	Kind RecordKind
	// Token is the command token echoed by GDB, -1 when absent.
	Token int
	// Class is the result or async class (done, error, stopped...).
	Class string
	// Results holds the name=value pairs following the class.
	Results Tuple
	// Text is the decoded payload of a stream record.
	Text string
}

// ErrSyntax is wrapped by all parse errors.
var ErrSyntax = errors.New("malformed MI record")

// ParseRecord parses a single line of MI output, without its line
// terminator.
func ParseRecord(line string) (*Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "(gdb)" {
		return &Record{Kind: Prompt, Token: -1}, nil
	}
	p := &parser{s: line}
	rec, err := p.record()
	if err != nil {
		return nil, fmt.Errorf("%w: %v in %q", ErrSyntax, err, line)
	}
	return rec, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		if p.eof() {
			return fmt.Errorf("expected %q at end of line", c)
		}
		return fmt.Errorf("expected %q at offset %d, found %q", c, p.pos, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) record() (*Record, error) {
	rec := &Record{Token: -1}
	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if p.pos > start {
		tok, err := strconv.Atoi(p.s[start:p.pos])
		if err != nil {
			return nil, err
		}
		rec.Token = tok
	}
	if p.eof() {
		return nil, errors.New("missing record type")
	}

	c := p.s[p.pos]
	p.pos++
	switch c {
	case '^':
		rec.Kind = ResultRecord
	case '*':
		rec.Kind = ExecAsync
	case '+':
		rec.Kind = StatusAsync
	case '=':
		rec.Kind = NotifyAsync
	case '~', '@', '&':
		switch c {
		case '~':
			rec.Kind = ConsoleStream
		case '@':
			rec.Kind = TargetStream
		default:
			rec.Kind = LogStream
		}
		text, err := p.cstring()
		if err != nil {
			return nil, err
		}
		rec.Text = text
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown record type %q", c)
	}

	rec.Class = p.ident()
	if rec.Class == "" {
		return nil, errors.New("missing class")
	}
	for !p.eof() {
		if err := p.expect(','); err != nil {
			return nil, err
		}
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		rec.Results = append(rec.Results, r)
	}
	return rec, nil
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == '=' || c == ',' || c == '{' || c == '}' || c == '[' || c == ']' || c == '"' {
			break
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) result() (Result, error) {
	name := p.ident()
	if name == "" {
		return Result{}, fmt.Errorf("missing variable name at offset %d", p.pos)
	}
	if err := p.expect('='); err != nil {
		return Result{}, err
	}
	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	switch p.peek() {
	case '"':
		return p.cstring()
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", p.peek(), p.pos)
}

func (p *parser) tuple() (Tuple, error) {
	p.pos++
	t := Tuple{}
	if p.peek() == '}' {
		p.pos++
		return t, nil
	}
	for {
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		t = append(t, r)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return t, nil
	}
}

func (p *parser) list() (List, error) {
	p.pos++
	l := List{}
	if p.peek() == ']' {
		p.pos++
		return l, nil
	}
	for {
		var (
			v   Value
			err error
		)
		switch p.peek() {
		case '"', '{', '[':
			v, err = p.value()
		default:
			v, err = p.result()
		}
		if err != nil {
			return nil, err
		}
		l = append(l, v)
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return l, nil
	}
}

// cstring decodes a C string literal as GDB writes them.
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if p.eof() {
			return "", errors.New("unterminated string")
		}
		c := p.s[p.pos]
		p.pos++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", errors.New("unterminated escape")
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'v':
				b.WriteByte('\v')
			case 'e':
				b.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
					n = n*8 + int(p.s[p.pos]-'0')
					p.pos++
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

// Quote returns s as a C string literal suitable as a command argument.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
