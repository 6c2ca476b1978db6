package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultRecord(t *testing.T) {
	rec, err := ParseRecord(`12^done,bkpt={number="1",type="breakpoint",addr="0x0000000000401136",func="main",file="hello.c",fullname="/tmp/hello.c",line="5",thread-groups=["i1"]}`)
	require.NoError(t, err)
	assert.Equal(t, ResultRecord, rec.Kind)
	assert.Equal(t, 12, rec.Token)
	assert.Equal(t, "done", rec.Class)

	bkpt := rec.Results.Tuple("bkpt")
	require.NotNil(t, bkpt)
	assert.Equal(t, "1", bkpt.Str("number"))
	assert.Equal(t, "/tmp/hello.c", bkpt.Str("fullname"))
	assert.Equal(t, List{"i1"}, bkpt.List("thread-groups"))
}

func TestParseErrorRecord(t *testing.T) {
	rec, err := ParseRecord(`3^error,msg="No symbol \"foo\" in current context.",code="undefined-command"` + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Class)
	assert.Equal(t, `No symbol "foo" in current context.`, rec.Results.Str("msg"))
	assert.Equal(t, "undefined-command", rec.Results.Str("code"))
}

func TestParseAsyncRecords(t *testing.T) {
	rec, err := ParseRecord(`*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x401136",func="main",args=[]},thread-id="1",stopped-threads="all"`)
	require.NoError(t, err)
	assert.Equal(t, ExecAsync, rec.Kind)
	assert.Equal(t, -1, rec.Token)
	assert.Equal(t, "stopped", rec.Class)
	assert.Equal(t, "breakpoint-hit", rec.Results.Str("reason"))
	assert.Equal(t, List{}, rec.Results.Tuple("frame").List("args"))

	rec, err = ParseRecord(`=thread-group-started,id="i1",pid="4242"`)
	require.NoError(t, err)
	assert.Equal(t, NotifyAsync, rec.Kind)
	assert.Equal(t, "4242", rec.Results.Str("pid"))

	rec, err = ParseRecord(`*running,thread-id="all"`)
	require.NoError(t, err)
	assert.Equal(t, "running", rec.Class)
}

func TestParseStreamRecords(t *testing.T) {
	tests := []struct {
		line string
		kind RecordKind
		text string
	}{
		{`~"GNU gdb (GDB) 13.2\n"`, ConsoleStream, "GNU gdb (GDB) 13.2\n"},
		{`@"target output"`, TargetStream, "target output"},
		{`&"warning: \"quoted\"\ttab\\\n"`, LogStream, "warning: \"quoted\"\ttab\\\n"},
		{`~"octal \303\251"`, ConsoleStream, "octal \u00e9"},
		{`~""`, ConsoleStream, ""},
	}
	for _, tt := range tests {
		rec, err := ParseRecord(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.kind, rec.Kind, tt.line)
		assert.Equal(t, tt.text, rec.Text, tt.line)
	}
}

func TestParsePrompt(t *testing.T) {
	rec, err := ParseRecord("(gdb) ")
	require.NoError(t, err)
	assert.Equal(t, Prompt, rec.Kind)
}

func TestParseResultList(t *testing.T) {
	rec, err := ParseRecord(`^done,asm_insns=[src_and_asm_line={line="5",file="a.c",line_asm_insn=[{address="0x10",inst="nop"},{address="0x11",inst="ret"}]}]`)
	require.NoError(t, err)
	insns := rec.Results.List("asm_insns")
	require.Len(t, insns, 1)
	res, ok := insns[0].(Result)
	require.True(t, ok)
	assert.Equal(t, "src_and_asm_line", res.Name)
	src := insns.Tuples()
	require.Len(t, src, 1)
	assert.Len(t, src[0].List("line_asm_insn").Tuples(), 2)
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		``,
		`^`,
		`^done,`,
		`^done,a=`,
		`^done,a="unterminated`,
		`^done,a={b="c"`,
		`^done,a=[1]`,
		`!what`,
	} {
		_, err := ParseRecord(line)
		assert.ErrorIs(t, err, ErrSyntax, "line %q", line)
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"plain"`, Quote("plain"))
	assert.Equal(t, `"C:\\path with space\\a.elf"`, Quote(`C:\path with space\a.elf`))
	assert.Equal(t, `"say \"hi\"\n"`, Quote("say \"hi\"\n"))

	// Quote and the parser agree.
	s := "a \"b\" \\ c\t\n"
	rec, err := ParseRecord("~" + Quote(s))
	require.NoError(t, err)
	assert.Equal(t, s, rec.Text)
}
