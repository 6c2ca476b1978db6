// Package version describes the gdbtarget binary and the GDB it drives.
package version

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-delve/gdbtarget/pkg/gdb"
)

// Version represents the current version of gdbtarget.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// GDBTargetVersion is the current version of gdbtarget.
var GDBTargetVersion = Version{
	Major: "0", Minor: "3", Patch: "0", Metadata: "",
	Build: "$Id$",
}

func (v Version) String() string {
	if strings.HasPrefix(v.Build, "$Id$") {
		v.Build = vcsRevision()
	}
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

// vcsRevision is the commit the binary was built from, or "unknown" for
// builds without version control information.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, modified := "unknown", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if modified && rev != "unknown" {
		rev += "-dirty"
	}
	return rev
}

// gdbVersionTimeout bounds the run of gdb --version.
const gdbVersionTimeout = 5 * time.Second

// GDB describes the debugger at gdbPath, or why it cannot be used.
func GDB(ctx context.Context, gdbPath string) string {
	if gdbPath == "" {
		gdbPath = gdb.DefaultGDB
	}
	ctx, cancel := context.WithTimeout(ctx, gdbVersionTimeout)
	defer cancel()
	v, err := gdb.Version(ctx, gdbPath)
	if err != nil {
		return fmt.Sprintf("GDB: %s unusable: %v", gdbPath, err)
	}
	return fmt.Sprintf("GDB: %s %s", gdbPath, v)
}

// BuildInfo returns the Go toolchain and the modules the adapter was built
// with, replacements resolved.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		b.WriteString("Modules: not built in module mode\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Module: %s %s\n", info.Main.Path, info.Main.Version)
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		fmt.Fprintf(&b, "  %s %s\n", dep.Path, dep.Version)
	}
	return b.String()
}
