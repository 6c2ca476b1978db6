package gdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-delve/gdbtarget/pkg/mi"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		out  string
		want string
	}{
		{"GNU gdb (GDB) 13.2\nCopyright (C) 2023 Free Software Foundation, Inc.\n", "13.2"},
		{"GNU gdb (Arm GNU Toolchain 12.3.Rel1 (Build arm-12.35)) 13.2.90.20231008-git\n", "13.2.90.20231008-git"},
		{"GNU gdb (Ubuntu 12.1-0ubuntu1~22.04) 12.1", "12.1"},
		{"not a debugger\n", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseVersion(tt.out), tt.out)
	}
}

func TestVersionMissingExecutable(t *testing.T) {
	_, err := Version(context.Background(), "gdbtarget-no-such-gdb")
	assert.Error(t, err)
}

func TestResolvers(t *testing.T) {
	ctx := context.Background()
	loc := mi.BreakpointLocation{Source: "main.c", Line: 3}
	in := mi.BreakInsertOptions{Hardware: true, Condition: "x > 1"}

	out, err := DefaultBreakpointOptions{}.Resolve(ctx, loc, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out, err = HardwareBreakpointOptions{Hardware: false}.Resolve(ctx, loc, in)
	require.NoError(t, err)
	assert.False(t, out.Hardware)
	assert.Equal(t, "x > 1", out.Condition)

	out, err = HardwareBreakpointOptions{Hardware: true}.Resolve(ctx, loc, mi.BreakInsertOptions{})
	require.NoError(t, err)
	assert.True(t, out.Hardware)

	var r BreakpointOptionsResolver = ResolverFunc(func(_ context.Context, loc mi.BreakpointLocation, opts mi.BreakInsertOptions) (mi.BreakInsertOptions, error) {
		if loc.Line == 3 {
			return opts, errors.New("no breakpoints on line 3")
		}
		return opts, nil
	})
	_, err = r.Resolve(ctx, loc, in)
	assert.EqualError(t, err, "no breakpoints on line 3")
}
