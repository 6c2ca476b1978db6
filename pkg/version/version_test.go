package version

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abc123"}
	assert.Equal(t, "Version: 1.2.3-rc1\nBuild: abc123", v.String())

	v.Metadata = ""
	assert.Equal(t, "Version: 1.2.3\nBuild: abc123", v.String())

	// The git ident placeholder is replaced.
	v.Build = "$Id$"
	assert.NotContains(t, v.String(), "$Id$")
}

func TestBuildInfo(t *testing.T) {
	info := BuildInfo()
	assert.True(t, strings.HasPrefix(info, "Go: "+runtime.Version()+" "+runtime.GOOS+"/"+runtime.GOARCH+"\n"), info)
	assert.Regexp(t, `(?m)^(Module: |Modules: not built in module mode)`, info)
}

func TestGDBMissing(t *testing.T) {
	line := GDB(context.Background(), "gdbtarget-no-such-gdb")
	assert.True(t, strings.HasPrefix(line, "GDB: gdbtarget-no-such-gdb unusable: "), line)
}
