package mi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AsmInstruction is one instruction of a -data-disassemble result.
type AsmInstruction struct {
	Address  string
	FuncName string
	Offset   string
	Opcodes  string
	Inst     string
	File     string
	Fullname string
	Line     int
}

// DataDisassemble disassembles the address range [start, end) in mode 5
// (raw opcodes with source lines). Both bounds are GDB expressions.
func (c *Conn) DataDisassemble(ctx context.Context, start, end string) ([]AsmInstruction, error) {
	rec, err := c.Exec(ctx, "-data-disassemble", "-s", Quote(start), "-e", Quote(end), "--", "5")
	if err != nil {
		return nil, err
	}
	return parseAsmInsns(rec.Results.List("asm_insns")), nil
}

func parseAsmInsns(insns List) []AsmInstruction {
	var r []AsmInstruction
	for _, v := range insns {
		res, named := v.(Result)
		if !named || res.Name != "src_and_asm_line" {
			// Without line information GDB lists the instructions directly.
			t, _ := v.(Tuple)
			if named {
				t, _ = res.Value.(Tuple)
			}
			if t != nil {
				r = append(r, asmInstruction(t, nil))
			}
			continue
		}
		src, _ := res.Value.(Tuple)
		for _, insn := range src.List("line_asm_insn").Tuples() {
			r = append(r, asmInstruction(insn, src))
		}
	}
	return r
}

func asmInstruction(insn, src Tuple) AsmInstruction {
	i := AsmInstruction{
		Address:  insn.Str("address"),
		FuncName: insn.Str("func-name"),
		Offset:   insn.Str("offset"),
		Opcodes:  insn.Str("opcodes"),
		Inst:     insn.Str("inst"),
	}
	if src != nil {
		i.File = src.Str("file")
		i.Fullname = src.Str("fullname")
		i.Line, _ = strconv.Atoi(src.Str("line"))
	}
	return i
}

// BreakpointLocation is where a breakpoint is inserted. Exactly one of
// Source (with Line), Function or Address is set.
type BreakpointLocation struct {
	Source   string
	Line     int
	Function string
	Address  string
}

func (loc BreakpointLocation) String() string {
	switch {
	case loc.Address != "":
		return "*" + loc.Address
	case loc.Function != "":
		return loc.Function
	default:
		return fmt.Sprintf("%s:%d", loc.Source, loc.Line)
	}
}

// BreakInsertOptions are the flags of -break-insert.
type BreakInsertOptions struct {
	Hardware    bool
	Temporary   bool
	Pending     bool
	Condition   string
	IgnoreCount int
}

// BreakInsertArgs returns the arguments of -break-insert for loc.
func BreakInsertArgs(loc BreakpointLocation, opts BreakInsertOptions) []string {
	var args []string
	if opts.Temporary {
		args = append(args, "-t")
	}
	if opts.Hardware {
		args = append(args, "-h")
	}
	if opts.Pending {
		args = append(args, "-f")
	}
	if opts.Condition != "" {
		args = append(args, "-c", Quote(opts.Condition))
	}
	if opts.IgnoreCount > 0 {
		args = append(args, "-i", strconv.Itoa(opts.IgnoreCount))
	}
	switch {
	case loc.Address != "":
		args = append(args, "*"+loc.Address)
	case loc.Function != "":
		args = append(args, "--function", Quote(loc.Function))
	default:
		args = append(args, "--source", Quote(loc.Source), "--line", strconv.Itoa(loc.Line))
	}
	return args
}

// Breakpoint is the bkpt tuple of a -break-insert result.
type Breakpoint struct {
	Number   string
	Addr     string
	Func     string
	File     string
	Fullname string
	Line     int
}

// BreakInsert inserts a breakpoint.
func (c *Conn) BreakInsert(ctx context.Context, loc BreakpointLocation, opts BreakInsertOptions) (Breakpoint, error) {
	rec, err := c.Exec(ctx, "-break-insert", BreakInsertArgs(loc, opts)...)
	if err != nil {
		return Breakpoint{}, err
	}
	bkpt := rec.Results.Tuple("bkpt")
	bp := Breakpoint{
		Number:   bkpt.Str("number"),
		Addr:     bkpt.Str("addr"),
		Func:     bkpt.Str("func"),
		File:     bkpt.Str("file"),
		Fullname: bkpt.Str("fullname"),
	}
	bp.Line, _ = strconv.Atoi(bkpt.Str("line"))
	return bp, nil
}

// BreakDelete deletes breakpoints by number.
func (c *Conn) BreakDelete(ctx context.Context, numbers ...string) error {
	if len(numbers) == 0 {
		return nil
	}
	_, err := c.Exec(ctx, "-break-delete", numbers...)
	return err
}

func threadArgs(threadID int) []string {
	if threadID <= 0 {
		return nil
	}
	return []string{"--thread", strconv.Itoa(threadID)}
}

// ExecRun starts the loaded program.
func (c *Conn) ExecRun(ctx context.Context) error {
	_, err := c.Exec(ctx, "-exec-run")
	return err
}

// ExecContinue resumes execution. A threadID of 0 means the current thread.
func (c *Conn) ExecContinue(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-continue", threadArgs(threadID)...)
	return err
}

// ExecNext steps over one source line.
func (c *Conn) ExecNext(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-next", threadArgs(threadID)...)
	return err
}

// ExecNextInstruction steps over one instruction.
func (c *Conn) ExecNextInstruction(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-next-instruction", threadArgs(threadID)...)
	return err
}

// ExecStep steps into one source line.
func (c *Conn) ExecStep(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-step", threadArgs(threadID)...)
	return err
}

// ExecStepInstruction steps into one instruction.
func (c *Conn) ExecStepInstruction(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-step-instruction", threadArgs(threadID)...)
	return err
}

// ExecFinish runs until the current function returns.
func (c *Conn) ExecFinish(ctx context.Context, threadID int) error {
	_, err := c.Exec(ctx, "-exec-finish", threadArgs(threadID)...)
	return err
}

// ExecInterrupt stops the running program.
func (c *Conn) ExecInterrupt(ctx context.Context, threadID int) error {
	args := threadArgs(threadID)
	if threadID <= 0 {
		args = []string{"--all"}
	}
	_, err := c.Exec(ctx, "-exec-interrupt", args...)
	return err
}

// Thread is an entry of the -thread-info result.
type Thread struct {
	ID       int
	TargetID string
	Name     string
	State    string
}

// ThreadInfo lists the threads and returns the current thread id.
func (c *Conn) ThreadInfo(ctx context.Context) ([]Thread, int, error) {
	rec, err := c.Exec(ctx, "-thread-info")
	if err != nil {
		return nil, 0, err
	}
	var threads []Thread
	for _, t := range rec.Results.List("threads").Tuples() {
		id, _ := strconv.Atoi(t.Str("id"))
		threads = append(threads, Thread{
			ID:       id,
			TargetID: t.Str("target-id"),
			Name:     t.Str("name"),
			State:    t.Str("state"),
		})
	}
	current, _ := strconv.Atoi(rec.Results.Str("current-thread-id"))
	return threads, current, nil
}

// Frame is an entry of the -stack-list-frames result.
type Frame struct {
	Level    int
	Addr     string
	Func     string
	File     string
	Fullname string
	Line     int
}

// StackListFrames lists the frames of a thread between low and high
// inclusive.
func (c *Conn) StackListFrames(ctx context.Context, threadID, low, high int) ([]Frame, error) {
	args := append(threadArgs(threadID), strconv.Itoa(low), strconv.Itoa(high))
	rec, err := c.Exec(ctx, "-stack-list-frames", args...)
	if err != nil {
		return nil, err
	}
	var frames []Frame
	for _, f := range rec.Results.List("stack").Tuples() {
		fr := Frame{
			Addr:     f.Str("addr"),
			Func:     f.Str("func"),
			File:     f.Str("file"),
			Fullname: f.Str("fullname"),
		}
		fr.Level, _ = strconv.Atoi(f.Str("level"))
		fr.Line, _ = strconv.Atoi(f.Str("line"))
		frames = append(frames, fr)
	}
	return frames, nil
}

// DataEvaluateExpression evaluates expr in the given thread and frame. A
// threadID of 0 uses the current context.
func (c *Conn) DataEvaluateExpression(ctx context.Context, expr string, threadID, frame int) (string, error) {
	args := threadArgs(threadID)
	if threadID > 0 {
		args = append(args, "--frame", strconv.Itoa(frame))
	}
	args = append(args, Quote(expr))
	rec, err := c.Exec(ctx, "-data-evaluate-expression", args...)
	if err != nil {
		return "", err
	}
	return rec.Results.Str("value"), nil
}

// TargetSelect connects to a target, for example "remote" "localhost:2331".
func (c *Conn) TargetSelect(ctx context.Context, typ string, params ...string) error {
	_, err := c.Exec(ctx, "-target-select", append([]string{typ}, params...)...)
	return err
}

// FileExecAndSymbols loads the program to debug.
func (c *Conn) FileExecAndSymbols(ctx context.Context, program string) error {
	_, err := c.Exec(ctx, "-file-exec-and-symbols", Quote(program))
	return err
}

// ExecArguments sets the arguments of the program.
func (c *Conn) ExecArguments(ctx context.Context, args ...string) error {
	if len(args) == 0 {
		return nil
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = Quote(a)
		}
		quoted[i] = a
	}
	_, err := c.Exec(ctx, "-exec-arguments", quoted...)
	return err
}

// EnvironmentCd sets the working directory of the program.
func (c *Conn) EnvironmentCd(ctx context.Context, dir string) error {
	_, err := c.Exec(ctx, "-environment-cd", Quote(dir))
	return err
}

// GdbSet sets a GDB variable, for example GdbSet(ctx, "mi-async", "on").
func (c *Conn) GdbSet(ctx context.Context, args ...string) error {
	_, err := c.Exec(ctx, "-gdb-set", args...)
	return err
}

// InterpreterExecConsole runs a CLI command. Its output arrives as console
// stream records through the connection handler.
func (c *Conn) InterpreterExecConsole(ctx context.Context, cmd string) error {
	_, err := c.Exec(ctx, "-interpreter-exec", "console", Quote(cmd))
	return err
}

// SendCommand runs a command line as typed by the user: MI commands
// (starting with '-') are sent verbatim, anything else goes through the
// console interpreter.
func (c *Conn) SendCommand(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "-") {
		_, err := c.Exec(ctx, line)
		return err
	}
	return c.InterpreterExecConsole(ctx, line)
}

// GdbExit asks GDB to exit.
func (c *Conn) GdbExit(ctx context.Context) error {
	_, err := c.Exec(ctx, "-gdb-exit")
	return err
}
