package dap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-delve/gdbtarget/pkg/uart"
)

// DefaultServerPortRegExp finds the port in the output of gdbserver.
const DefaultServerPortRegExp = `Listening on port ([0-9]+)`

// LaunchConfig is the collection of launch request attributes recognized by
// the adapter.
type LaunchConfig struct {
	// Program is the executable to debug. For target launches it is also the
	// default argument of the debug server.
	Program string `json:"program,omitempty"`

	// Arguments of the debugged program, plain launches only.
	Arguments []string `json:"arguments,omitempty"`

	LaunchAttachCommonConfig
}

// AttachConfig is the collection of attach request attributes recognized by
// the adapter. Attaching never spawns a debug server, the target
// configuration names one that is already running.
type AttachConfig struct {
	// Program is loaded for its symbols when set.
	Program string `json:"program,omitempty"`

	LaunchAttachCommonConfig
}

// LaunchAttachCommonConfig is the attributes common in both launch/attach requests.
type LaunchAttachCommonConfig struct {
	// GDB executable. (Default: `gdb`)
	GDB string `json:"gdb,omitempty"`

	// Extra arguments passed to GDB after --interpreter=mi2.
	GDBArguments []string `json:"gdbArguments,omitempty"`

	// Working directory of GDB and the debugged program.
	Cwd string `json:"cwd,omitempty"`

	// Environment of GDB and the debug server. A null value removes a
	// variable.
	Environment map[string]*string `json:"environment,omitempty"`

	// Commands run after the program is loaded and the target connected.
	// Commands starting with '-' are MI commands, anything else goes to
	// the GDB console.
	InitCommands []string `json:"initCommands,omitempty"`

	// Insert hardware breakpoints instead of software ones.
	HardwareBreakpoint *bool `json:"hardwareBreakpoint,omitempty"`

	// Target selects a remote target. Without it the program is run
	// natively by GDB.
	Target *TargetConfig `json:"target,omitempty"`
}

// TargetConfig describes the remote target and the debug server that
// serves it.
type TargetConfig struct {
	// Type of the target, passed to -target-select. (Default: `remote`)
	Type string `json:"type,omitempty"`

	// Parameters of -target-select. (Default: `host:port`)
	Parameters []string `json:"parameters,omitempty"`

	// Host of the debug server and of the UART socket. (Default: `localhost`)
	Host string `json:"host,omitempty"`

	// Port of the debug server. Found in the server output with
	// ServerPortRegExp when empty.
	Port string `json:"port,omitempty"`

	// Debug server executable. (Default: `gdbserver`)
	Server string `json:"server,omitempty"`

	// Arguments of the debug server. (Default: `--once :0 <program>`)
	ServerParameters []string `json:"serverParameters,omitempty"`

	// Regular expression matched against the server output. Its first
	// group is the port. (Default: `Listening on port ([0-9]+)`)
	ServerPortRegExp string `json:"serverPortRegExp,omitempty"`

	// Milliseconds to wait after the port was found.
	ServerStartupDelay int `json:"serverStartupDelay,omitempty"`

	// Working directory of the debug server.
	Cwd string `json:"cwd,omitempty"`

	// Environment of the debug server, applied on top of the launch
	// environment.
	Environment map[string]*string `json:"environment,omitempty"`

	// Stop the debug server on disconnect. (Default: `true`)
	AutomaticallyKillServer *bool `json:"automaticallyKillServer,omitempty"`

	// Commands connecting GDB to the target, replacing -target-select.
	ConnectCommands []string `json:"connectCommands,omitempty"`

	// UART side channel of the target.
	UART *uart.Config `json:"uart,omitempty"`
}

// UnmarshalJSON accepts the port both as "2331" and 2331.
func (t *TargetConfig) UnmarshalJSON(data []byte) error {
	type tmpType TargetConfig
	var tmp struct {
		tmpType
		Port json.RawMessage `json:"port,omitempty"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*t = TargetConfig(tmp.tmpType)
	if len(tmp.Port) == 0 || string(tmp.Port) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(tmp.Port, &s); err == nil {
		t.Port = s
		return nil
	}
	var n int
	if err := json.Unmarshal(tmp.Port, &n); err != nil {
		return fmt.Errorf("cannot use %s as 'port' of type string", tmp.Port)
	}
	t.Port = strconv.Itoa(n)
	return nil
}

func (t *TargetConfig) targetType() string {
	if t.Type == "" {
		return "remote"
	}
	return t.Type
}

func (t *TargetConfig) host() string {
	if t.Host == "" {
		return "localhost"
	}
	return t.Host
}

func (t *TargetConfig) killServer() bool {
	return t.AutomaticallyKillServer == nil || *t.AutomaticallyKillServer
}

var errNoTargetPort = errors.New("target has neither 'parameters' nor 'port'")

// connectParameters returns the parameters of -target-select.
func (t *TargetConfig) connectParameters() ([]string, error) {
	if len(t.Parameters) > 0 {
		return t.Parameters, nil
	}
	if t.Port == "" {
		return nil, errNoTargetPort
	}
	return []string{t.host() + ":" + t.Port}, nil
}

// unmarshalLaunchAttachArgs wraps unmarshalling of launch/attach request's
// arguments attribute. Upon unmarshal failure, it returns an error massaged
// to be suitable for end-users.
func unmarshalLaunchAttachArgs(input json.RawMessage, config interface{}) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, config); err != nil {
		if uerr, ok := err.(*json.UnmarshalTypeError); ok {
			// Format json.UnmarshalTypeError error string in our own way. E.g.,
			//   "json: cannot unmarshal number into Go struct field LaunchConfig.program of type string"
			//   => "cannot unmarshal number into 'program' of type string"
			typ := uerr.Type.String()
			switch uerr.Field {
			case "environment", "target.environment":
				typ = "{string: string|null}"
			case "target":
				typ = "object"
			}
			return fmt.Errorf("cannot unmarshal %v into %q of type %v", uerr.Value, uerr.Field, typ)
		}
		return err
	}
	return nil
}
