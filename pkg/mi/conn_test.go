package mi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGDB answers commands written to a Conn through reply, which returns
// the lines to print for a command line stripped of its token.
type fakeGDB struct {
	t       *testing.T
	conn    *Conn
	toGDB   *io.PipeReader
	fromGDB *io.PipeWriter
	reply   func(cmd string) []string

	mu       sync.Mutex
	commands []string
	records  []*Record
}

func newFakeGDB(t *testing.T, reply func(cmd string) []string) *fakeGDB {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	g := &fakeGDB{t: t, toGDB: cmdR, fromGDB: outW, reply: reply}
	g.conn = NewConn(outR, cmdW, func(rec *Record) {
		g.mu.Lock()
		g.records = append(g.records, rec)
		g.mu.Unlock()
	})
	go g.serve()
	t.Cleanup(func() {
		g.conn.Close()
		g.fromGDB.Close()
	})
	return g
}

func (g *fakeGDB) serve() {
	s := bufio.NewScanner(g.toGDB)
	for s.Scan() {
		line := s.Text()
		i := 0
		for i < len(line) && line[i] >= '0' && line[i] <= '9' {
			i++
		}
		tok, cmd := line[:i], line[i:]
		g.mu.Lock()
		g.commands = append(g.commands, cmd)
		g.mu.Unlock()
		for _, out := range g.reply(cmd) {
			out = strings.ReplaceAll(out, "TOKEN", tok)
			if _, err := io.WriteString(g.fromGDB, out+"\n"); err != nil {
				return
			}
		}
	}
}

func (g *fakeGDB) sent() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.commands...)
}

func (g *fakeGDB) received() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Record(nil), g.records...)
}

func TestExecDone(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`~"console text\n"`, `TOKEN^done,value="42"`, "(gdb) "}
	})
	v, err := g.conn.DataEvaluateExpression(context.Background(), "x", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "42", v)
	assert.Equal(t, []string{`-data-evaluate-expression "x"`}, g.sent())

	require.Eventually(t, func() bool { return len(g.received()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "console text\n", g.received()[0].Text)
}

func TestExecError(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`TOKEN^error,msg="No symbol table is loaded."`}
	})
	_, err := g.conn.Exec(context.Background(), "-break-insert", "main")
	var miErr *Error
	require.ErrorAs(t, err, &miErr)
	assert.Equal(t, "No symbol table is loaded.", miErr.Error())
	assert.Equal(t, "-break-insert", miErr.Command)
}

func TestExecSerialized(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	g := newFakeGDB(t, func(cmd string) []string {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return []string{`TOKEN^done`}
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.conn.Exec(context.Background(), fmt.Sprintf("-cmd%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, g.sent(), 10)
	assert.Equal(t, 1, maxInFlight)
}

func TestExecPendingFailsOnClose(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string { return nil })

	errc := make(chan error, 1)
	go func() {
		_, err := g.conn.Exec(context.Background(), "-exec-continue")
		errc <- err
	}()
	require.Eventually(t, func() bool { return len(g.sent()) == 1 }, time.Second, 5*time.Millisecond)

	// GDB goes away.
	g.fromGDB.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending command not failed")
	}
	<-g.conn.Done()

	_, err := g.conn.Exec(context.Background(), "-gdb-exit")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestExecContextCanceled(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		if cmd == "-slow" {
			return nil
		}
		return []string{`TOKEN^done`}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.conn.Exec(ctx, "-slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The channel is usable again.
	_, err = g.conn.Exec(context.Background(), "-fast")
	assert.NoError(t, err)
}

func TestAsyncRecordsForwarded(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`TOKEN^running`, `*running,thread-id="all"`, "(gdb) ", `*stopped,reason="end-stepping-range",thread-id="1"`}
	})
	require.NoError(t, g.conn.ExecNext(context.Background(), 1))
	assert.Equal(t, []string{"-exec-next --thread 1"}, g.sent())

	require.Eventually(t, func() bool { return len(g.received()) == 2 }, time.Second, 10*time.Millisecond)
	recs := g.received()
	assert.Equal(t, "running", recs[0].Class)
	assert.Equal(t, "stopped", recs[1].Class)
	assert.Equal(t, "end-stepping-range", recs[1].Results.Str("reason"))
}

func TestDataDisassemble(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`TOKEN^done,asm_insns=[src_and_asm_line={line="5",file="a.c",fullname="/src/a.c",line_asm_insn=[` +
			`{address="0x0000000000001000",func-name="main",offset="0",opcodes="55",inst="push   %rbp"},` +
			`{address="0x0000000000001001",func-name="main",offset="1",opcodes="48 89 e5",inst="mov    %rsp,%rbp"}]},` +
			`src_and_asm_line={line="6",file="a.c",fullname="/src/a.c",line_asm_insn=[` +
			`{address="0x0000000000001004",func-name="main",offset="4",opcodes="c3",inst="ret"}]}]`}
	})
	insns, err := g.conn.DataDisassemble(context.Background(), "(0x1000)-0", "(0x1000)+12")
	require.NoError(t, err)
	assert.Equal(t, []string{`-data-disassemble -s "(0x1000)-0" -e "(0x1000)+12" -- 5`}, g.sent())
	require.Len(t, insns, 3)
	assert.Equal(t, AsmInstruction{
		Address: "0x0000000000001001", FuncName: "main", Offset: "1", Opcodes: "48 89 e5",
		Inst: "mov    %rsp,%rbp", File: "a.c", Fullname: "/src/a.c", Line: 5,
	}, insns[1])
	assert.Equal(t, 6, insns[2].Line)
}

func TestDataDisassembleWithoutSource(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`TOKEN^done,asm_insns=[{address="0x10",func-name="f",offset="0",opcodes="90",inst="nop"}]`}
	})
	insns, err := g.conn.DataDisassemble(context.Background(), "0x10", "0x11")
	require.NoError(t, err)
	require.Len(t, insns, 1)
	assert.Equal(t, "nop", insns[0].Inst)
	assert.Zero(t, insns[0].Line)
}

func TestBreakInsertArgs(t *testing.T) {
	tests := []struct {
		loc  BreakpointLocation
		opts BreakInsertOptions
		want string
	}{
		{BreakpointLocation{Source: "/src/a.c", Line: 7}, BreakInsertOptions{}, `--source "/src/a.c" --line 7`},
		{BreakpointLocation{Source: "a.c", Line: 7}, BreakInsertOptions{Hardware: true, Pending: true}, `-h -f --source "a.c" --line 7`},
		{BreakpointLocation{Function: "main"}, BreakInsertOptions{Temporary: true}, `-t --function "main"`},
		{BreakpointLocation{Address: "0x8000"}, BreakInsertOptions{Condition: `i == 3`, IgnoreCount: 2}, `-c "i == 3" -i 2 *0x8000`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, strings.Join(BreakInsertArgs(tt.loc, tt.opts), " "))
	}
}

func TestBreakInsert(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		return []string{`TOKEN^done,bkpt={number="3",type="hw breakpoint",addr="0x08000120",func="main",file="main.c",fullname="/src/main.c",line="12"}`}
	})
	bp, err := g.conn.BreakInsert(context.Background(), BreakpointLocation{Source: "/src/main.c", Line: 12}, BreakInsertOptions{Hardware: true})
	require.NoError(t, err)
	assert.Equal(t, Breakpoint{Number: "3", Addr: "0x08000120", Func: "main", File: "main.c", Fullname: "/src/main.c", Line: 12}, bp)
}

func TestThreadInfoAndFrames(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string {
		switch {
		case cmd == "-thread-info":
			return []string{`TOKEN^done,threads=[{id="1",target-id="Thread 1",name="main",state="stopped"},{id="2",target-id="Thread 2",state="running"}],current-thread-id="1"`}
		case strings.HasPrefix(cmd, "-stack-list-frames"):
			return []string{`TOKEN^done,stack=[frame={level="0",addr="0x10",func="f",file="a.c",fullname="/a.c",line="3"},frame={level="1",addr="0x20",func="main"}]`}
		}
		return []string{`TOKEN^error,msg="unexpected"`}
	})
	threads, current, err := g.conn.ThreadInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, []Thread{{ID: 1, TargetID: "Thread 1", Name: "main", State: "stopped"}, {ID: 2, TargetID: "Thread 2", State: "running"}}, threads)

	frames, err := g.conn.StackListFrames(context.Background(), 1, 0, 19)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, Frame{Level: 0, Addr: "0x10", Func: "f", File: "a.c", Fullname: "/a.c", Line: 3}, frames[0])
	assert.Equal(t, 1, frames[1].Level)
	assert.Equal(t, "-stack-list-frames --thread 1 0 19", g.sent()[1])
}

func TestSendCommand(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string { return []string{`TOKEN^done`} })
	ctx := context.Background()
	require.NoError(t, g.conn.SendCommand(ctx, "  "))
	require.NoError(t, g.conn.SendCommand(ctx, "-gdb-set mi-async on"))
	require.NoError(t, g.conn.SendCommand(ctx, `monitor reset "halt"`))
	assert.Equal(t, []string{"-gdb-set mi-async on", `-interpreter-exec console "monitor reset \"halt\""`}, g.sent())
}

func TestExecArguments(t *testing.T) {
	g := newFakeGDB(t, func(cmd string) []string { return []string{`TOKEN^done`} })
	require.NoError(t, g.conn.ExecArguments(context.Background(), "plain", "with space", ""))
	assert.Equal(t, []string{`-exec-arguments plain "with space" ""`}, g.sent())
}
