package process

import (
	"context"
	"os"
	"path/filepath"
)

// DefaultServer is the debug server spawned when the launch configuration
// names none.
const DefaultServer = "gdbserver"

// ServerTarget holds the server related part of a target launch.
type ServerTarget struct {
	// Server is the executable, DefaultServer when empty.
	Server string
	// ServerParameters replaces the default arguments when non-nil.
	ServerParameters []string
	// Cwd takes precedence over the launch working directory.
	Cwd string
	// Environment is applied on top of the launch environment.
	Environment map[string]*string
}

// ServerLaunchConfig is what ServerManager needs from a launch request.
type ServerLaunchConfig struct {
	Program     string
	Cwd         string
	Environment map[string]*string
	Target      ServerTarget
}

// ServerManager starts and stops the debug server of a target launch.
type ServerManager struct {
	*Manager
}

// NewServerManager returns a ServerManager.
func NewServerManager() *ServerManager {
	return &ServerManager{Manager: NewManager("debug server")}
}

// Start resolves the server command line and spawns it. Output is not
// read, the caller detects readiness from the returned streams.
func (sm *ServerManager) Start(ctx context.Context, cfg *ServerLaunchConfig) (*Handle, error) {
	return sm.Manager.Start(ctx, ServerSpec(cfg))
}

// ServerSpec resolves the process description of the server for cfg.
func ServerSpec(cfg *ServerLaunchConfig) Spec {
	exe := cfg.Target.Server
	if exe == "" {
		exe = DefaultServer
	}
	args := cfg.Target.ServerParameters
	if args == nil {
		args = []string{"--once", ":0", cfg.Program}
	}
	return Spec{
		Path: exe,
		Args: args,
		Dir:  ServerCwd(cfg),
		Env:  MergeEnv(os.Environ(), cfg.Environment, cfg.Target.Environment),
	}
}

// ServerCwd returns the working directory for the server: the target
// directory, then the launch directory, then the directory of the program
// if the program exists, then our own. A directory that does not exist
// resolves to our own.
func ServerCwd(cfg *ServerLaunchConfig) string {
	own, _ := os.Getwd()
	cwd := cfg.Target.Cwd
	if cwd == "" {
		cwd = cfg.Cwd
	}
	if cwd == "" {
		if cfg.Program != "" && exists(cfg.Program) {
			cwd = filepath.Dir(cfg.Program)
		} else {
			cwd = own
		}
	}
	if !exists(cwd) {
		return own
	}
	return cwd
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
