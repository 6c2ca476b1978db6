package uart

import "bytes"

// lineFramer accumulates a byte stream and cuts it into lines at a
// terminator. A line is only produced once its terminator arrived.
type lineFramer struct {
	delim []byte
	buf   bytes.Buffer
}

func newLineFramer(delim string) *lineFramer {
	return &lineFramer{delim: []byte(delim)}
}

// Write appends p and returns the lines it completed, without their
// terminator.
func (f *lineFramer) Write(p []byte) []string {
	f.buf.Write(p)
	var lines []string
	for {
		data := f.buf.Bytes()
		i := bytes.Index(data, f.delim)
		if i < 0 {
			return lines
		}
		lines = append(lines, string(data[:i]))
		f.buf.Next(i + len(f.delim))
	}
}

// Flush returns and discards the unterminated remainder.
func (f *lineFramer) Flush() string {
	s := f.buf.String()
	f.buf.Reset()
	return s
}
