package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMergeEnv(t *testing.T) {
	base := []string{"VAR1=base1", "VAR2=base2", "VAR3=base3"}
	launch := map[string]*string{
		"VAR2": strPtr("launch2"),
		"VAR3": nil,
		"VAR4": strPtr("launch4"),
	}
	target := map[string]*string{
		"VAR1": strPtr("target1"),
		"VAR4": nil,
		"VAR5": strPtr("target5"),
	}

	assert.Equal(t, []string{"VAR1=target1", "VAR2=launch2", "VAR5=target5"}, MergeEnv(base, launch, target))
	assert.Equal(t, []string{"VAR1=base1", "VAR2=launch2", "VAR4=launch4"}, MergeEnv(base, launch))
	assert.Equal(t, base, MergeEnv(base))
}

func TestMergeEnvReaddRemoved(t *testing.T) {
	got := MergeEnv([]string{"A=1", "B=2"}, map[string]*string{"A": nil}, map[string]*string{"A": strPtr("3")})
	assert.Equal(t, []string{"A=3", "B=2"}, got)
}

func TestMergeEnvValueWithEquals(t *testing.T) {
	got := MergeEnv([]string{"OPTS=a=b"})
	assert.Equal(t, []string{"OPTS=a=b"}, got)
}

func TestServerCwd(t *testing.T) {
	own, err := os.Getwd()
	require.NoError(t, err)

	dir := t.TempDir()
	program := filepath.Join(dir, "prog.elf")
	require.NoError(t, os.WriteFile(program, nil, 0o600))
	other := t.TempDir()
	missing := filepath.Join(dir, "missing")

	tests := []struct {
		name string
		cfg  ServerLaunchConfig
		want string
	}{
		{"target cwd first", ServerLaunchConfig{Program: program, Cwd: other, Target: ServerTarget{Cwd: dir}}, dir},
		{"launch cwd", ServerLaunchConfig{Program: program, Cwd: other}, other},
		{"program dir", ServerLaunchConfig{Program: program}, dir},
		{"missing program", ServerLaunchConfig{Program: filepath.Join(missing, "prog")}, own},
		{"nothing", ServerLaunchConfig{}, own},
		{"missing cwd", ServerLaunchConfig{Cwd: missing}, own},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ServerCwd(&tt.cfg))
		})
	}
}

func TestServerSpecDefaults(t *testing.T) {
	spec := ServerSpec(&ServerLaunchConfig{Program: "a.out"})
	assert.Equal(t, DefaultServer, spec.Path)
	assert.Equal(t, []string{"--once", ":0", "a.out"}, spec.Args)

	spec = ServerSpec(&ServerLaunchConfig{
		Program: "a.out",
		Target:  ServerTarget{Server: "JLinkGDBServer", ServerParameters: []string{"-port", "2331"}},
	})
	assert.Equal(t, "JLinkGDBServer", spec.Path)
	assert.Equal(t, []string{"-port", "2331"}, spec.Args)
}
