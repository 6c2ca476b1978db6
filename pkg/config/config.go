package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path"
	"time"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".gdbtarget"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
// Every field is a default that launch and attach arguments can override.
type Config struct {
	// GDB is the GDB executable used when the launch configuration
	// does not name one.
	GDB string `yaml:"gdb,omitempty"`
	// GDBArgs are extra arguments passed to GDB, split with shell rules.
	GDBArgs string `yaml:"gdb-args,omitempty"`

	// Server is the remote debug server executable used for target launches.
	Server string `yaml:"server,omitempty"`
	// ServerArgs replaces the default server arguments, split with shell rules.
	ServerArgs string `yaml:"server-args,omitempty"`

	// StopTimeout is the number of milliseconds to wait for GDB or the
	// server to exit after being asked to terminate.
	StopTimeout *int `yaml:"stop-timeout,omitempty"`

	// HardwareBreakpoint selects hardware breakpoints by default.
	HardwareBreakpoint bool `yaml:"hardware-breakpoint"`
}

// GDBArgv returns GDBArgs split into an argument list.
func (c *Config) GDBArgv() ([]string, error) {
	return splitArgs(c.GDBArgs)
}

// ServerArgv returns ServerArgs split into an argument list, nil when unset.
func (c *Config) ServerArgv() ([]string, error) {
	return splitArgs(c.ServerArgs)
}

// StopTimeoutDuration returns the configured stop timeout or def.
func (c *Config) StopTimeoutDuration(def time.Duration) time.Duration {
	if c.StopTimeout == nil || *c.StopTimeout <= 0 {
		return def
	}
	return time.Duration(*c.StopTimeout) * time.Millisecond
}

func splitArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	v, err := argv.Argv(s,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", s)
	}
	return v[0], nil
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("error creating default config file: %v", err)
		}
	}
	defer f.Close()

	return readConfig(f)
}

func readConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for gdbtarget.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# GDB executable used when the launch configuration does not set "gdb".
# gdb: gdb

# Extra arguments passed to GDB after --interpreter=mi2.
# gdb-args: "--nx"

# Remote debug server started for target launches when "target.server" is unset.
# server: gdbserver

# Server arguments used when "target.serverParameters" is unset. The program
# path is not appended automatically when this is set.
# server-args: "--once :0"

# Milliseconds to wait for GDB or the server to exit when stopping them.
# stop-timeout: 1000

# Insert hardware breakpoints by default.
# hardware-breakpoint: false
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
