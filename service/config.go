package service

import (
	"net"

	"github.com/go-delve/gdbtarget/pkg/config"
	"github.com/go-delve/gdbtarget/pkg/gdb"
)

// Config provides the configuration to start the debug adapter and expose
// it with a service.
type Config struct {
	// Listener is used to serve requests, see StdioListener for clients
	// talking over the standard streams.
	Listener net.Listener

	// Factory spawns GDB and the debug server, gdb.DefaultFactory when nil.
	Factory gdb.Factory

	// BreakpointOptions decides the options of each inserted breakpoint,
	// gdb.DefaultBreakpointOptions when nil.
	BreakpointOptions gdb.BreakpointOptionsResolver

	// Defaults are the user's configured defaults for launch and attach
	// arguments. May be nil.
	Defaults *config.Config

	// DisconnectChan will be closed by the server when the client disconnects
	DisconnectChan chan<- struct{}
}
