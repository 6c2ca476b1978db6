package cmds

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-delve/gdbtarget/pkg/config"
	"github.com/go-delve/gdbtarget/pkg/gdb"
	"github.com/go-delve/gdbtarget/pkg/logflags"
	"github.com/go-delve/gdbtarget/pkg/version"
	"github.com/go-delve/gdbtarget/service"
	"github.com/go-delve/gdbtarget/service/dap"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// addr is the debugging server listen address, the standard streams
	// when empty.
	addr string
	// hardwareBreakpoint forces hardware breakpoints in every session.
	hardwareBreakpoint bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
	// loadConfigErr is reported once logging is set up.
	loadConfigErr error
)

const gdbtargetCommandLongDesc = `gdbtarget is a debug adapter for embedded and remote targets.

It speaks the Debug Adapter Protocol (DAP) to an editor and drives GDB through
its machine interface. For target launches it spawns a remote debug server
(gdbserver, JLinkGDBServer, pyocd, openocd...) and connects GDB to it; it can
also forward the output of the target's UART, read from a serial port or a TCP
socket, to the editor.

Defaults for the launch configurations are read from the configuration file,
see 'gdbtarget help config'.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf, loadConfigErr = config.LoadConfig()

	// Main gdbtarget root command.
	rootCommand = &cobra.Command{
		Use:   "gdbtarget",
		Short: "gdbtarget is a GDB debug adapter for embedded and remote targets.",
		Long:  gdbtargetCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'gdbtarget help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'gdbtarget help log').")

	// 'dap' subcommand.
	dapCommand := &cobra.Command{
		Use:   "dap",
		Short: "Starts a debug adapter communicating via Debug Adaptor Protocol (DAP).",
		Long: `Starts a debug adapter communicating via Debug Adaptor Protocol (DAP).

By default the adapter talks to its client over its standard input and output,
which is how editors start debug adapters. With --listen it serves a single
client connecting over TCP instead.

GDB is only started once the client sends a launch or attach request.
The adapter does not accept multiple client connections.`,
		Run: dapCmd,
	}
	dapCommand.Flags().StringVarP(&addr, "listen", "l", "", "Serve a TCP client on this address instead of the standard streams.")
	dapCommand.Flags().BoolVar(&hardwareBreakpoint, "hardware-breakpoints", false, "Insert every breakpoint as a hardware breakpoint, whatever the launch configuration says.")
	rootCommand.AddCommand(dapCommand)

	// 'version' subcommand.
	var versionVerbose = false
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gdbtarget Debug Adapter\n%s\n", version.GDBTargetVersion)
			var gdbPath string
			if conf != nil {
				gdbPath = conf.GDB
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			fmt.Println(version.GDB(ctx, gdbPath))
			if versionVerbose {
				fmt.Printf("Build Details: %s\n", version.BuildInfo())
			}
		},
		ValidArgsFunction: cobra.NoFileCompletions,
	}
	versionCommand.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	dap	Log all DAP messages
	mi	Log every command sent to GDB and every record it prints
	process	Log the start and stop of GDB and of the debug server
	uart	Log the UART connection

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "server listening at" message in dap
mode.`,
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Help about the configuration file.",
		Long: fmt.Sprintf(`The configuration file provides defaults for launch and attach requests.
It is a YAML file located at %s and is created with commented out
defaults the first time gdbtarget runs.

	gdb			GDB executable, "gdb" by default
	gdb-args		extra GDB arguments, split like a shell would
	server			debug server of target launches, "gdbserver" by default
	server-args		debug server arguments, split like a shell would
	stop-timeout		milliseconds to wait for GDB or the server to exit
	hardware-breakpoint	use hardware breakpoints by default`, configPath()),
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func configPath() string {
	p, err := config.GetConfigFilePath("config.yml")
	if err != nil {
		return "the gdbtarget configuration directory"
	}
	return p
}

func dapCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := logflags.Setup(log, logOutput, logDest); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		if loadConfigErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", loadConfigErr)
		}
		if len(args) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: program arguments ignored with dap; specify via launch/attach request instead\n")
		}

		listener, err := newListener(addr, os.Stdin, os.Stdout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "couldn't start listener: %s\n", err)
			return 1
		}
		disconnectChan := make(chan struct{})
		server := dap.NewServer(&service.Config{
			Listener:          listener,
			DisconnectChan:    disconnectChan,
			Factory:           gdb.DefaultFactory{},
			BreakpointOptions: breakpointOptions(hardwareBreakpoint),
			Defaults:          conf,
		})
		defer server.Stop()

		server.Run()
		waitForDisconnectSignal(disconnectChan)
		return 0
	}()
	os.Exit(status)
}

// newListener listens on addr, or serves the client on the standard
// streams when addr is empty.
func newListener(addr string, stdin io.ReadCloser, stdout io.WriteCloser) (net.Listener, error) {
	if addr == "" {
		return service.StdioListener(stdin, stdout), nil
	}
	return net.Listen("tcp", addr)
}

// breakpointOptions returns the resolver deciding the options of every
// inserted breakpoint. Without hardware the launch configuration decides.
func breakpointOptions(hardware bool) gdb.BreakpointOptionsResolver {
	if hardware {
		return gdb.HardwareBreakpointOptions{Hardware: true}
	}
	return gdb.DefaultBreakpointOptions{}
}

// waitForDisconnectSignal is a blocking function that waits for either
// a SIGINT (Ctrl-C) or SIGTERM (kill -15) OS signal or for disconnectChan
// to be closed by the server when the client disconnects.
func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	if runtime.GOOS == "windows" {
		// On windows Ctrl-C sent to inferior process is delivered
		// as SIGINT to gdbtarget. Ignore it instead of stopping the server
		// in order to be able to debug signal handlers.
		go func() {
			for range ch {
			}
		}()
		<-disconnectChan
	} else {
		select {
		case <-ch:
		case <-disconnectChan:
		}
	}
}
