package main

import (
	"github.com/go-delve/gdbtarget/cmd/gdbtarget/cmds"
	"github.com/go-delve/gdbtarget/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.GDBTargetVersion.Build = Build
	}
	cmds.New().Execute()
}
