package dap

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-delve/gdbtarget/pkg/config"
)

// adapterCommandPrefix introduces commands that the adapter handles itself
// in the debug console instead of passing them to GDB.
const adapterCommandPrefix = "gdbtarget "

func isAdapterCommand(expr string) bool {
	return strings.HasPrefix(strings.TrimSpace(expr)+" ", adapterCommandPrefix)
}

// adapterCommand runs the command in expr, the prefix included.
func (s *Session) adapterCommand(expr string) (string, error) {
	cmdstr := strings.TrimPrefix(strings.TrimSpace(expr)+" ", adapterCommandPrefix)
	vals := config.Split2PartsBySpace(cmdstr)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = vals[1]
	}
	if cmdname == "" {
		cmdname = "help"
	}
	for _, cmd := range adapterCommands(s) {
		for _, alias := range cmd.aliases {
			if alias == cmdname {
				return cmd.cmdFn(args)
			}
		}
	}
	return "", errNoCmd
}

type cmdfunc func(args string) (string, error)

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

const (
	msgHelp = `Prints the help message.

	gdbtarget help [command]

Type "gdbtarget help" followed by the name of a command for more information about it.`

	msgDisassemble = `Disassembles instructions around an address.

	gdbtarget disassemble <address> [count]

Prints count instructions starting at address, 10 by default. A negative
count prints the instructions preceding address. Addresses that cannot be
read are listed as invalid.`

	msgUART = `Shows the state of the UART connection.

	gdbtarget uart`
)

// adapterCommands returns the list of commands handled by the adapter.
func adapterCommands(s *Session) []command {
	return []command{
		{aliases: []string{"help", "h"}, cmdFn: s.helpMessage, helpMsg: msgHelp},
		{aliases: []string{"disassemble", "disass"}, cmdFn: s.disassembleCommand, helpMsg: msgDisassemble},
		{aliases: []string{"uart"}, cmdFn: s.uartCommand, helpMsg: msgUART},
	}
}

var errNoCmd = errors.New("command not available")

func (s *Session) helpMessage(args string) (string, error) {
	var buf bytes.Buffer
	if args != "" {
		for _, cmd := range adapterCommands(s) {
			for _, alias := range cmd.aliases {
				if alias == args {
					return cmd.helpMsg, nil
				}
			}
		}
		return "", errNoCmd
	}

	fmt.Fprintln(&buf, "The following commands are available:")

	for _, cmd := range adapterCommands(s) {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(&buf, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(&buf, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}

	fmt.Fprintln(&buf)
	fmt.Fprintln(&buf, "Type 'gdbtarget help' followed by a command for full documentation.")
	fmt.Fprintln(&buf, "Expressions starting with '>' are passed to GDB as console commands.")
	return buf.String(), nil
}

func (s *Session) disassembleCommand(args string) (string, error) {
	if s.engine == nil {
		return "", errors.New("no debug session")
	}
	argv := config.SplitQuotedFields(args, '"')
	if len(argv) == 0 || len(argv) > 2 {
		return "", errors.New("wrong number of arguments: disassemble <address> [count]")
	}
	count := 10
	if len(argv) == 2 {
		n, err := strconv.Atoi(argv[1])
		if err != nil {
			return "", fmt.Errorf("invalid count %q", argv[1])
		}
		count = n
	}

	insns, err := s.engine.GetInstructions(s.ctx, argv[0], count)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, insn := range insns {
		if insn.Symbol != "" {
			fmt.Fprintf(&buf, "%s <%s>:\t%s\n", insn.Address, insn.Symbol, insn.Instruction)
		} else {
			fmt.Fprintf(&buf, "%s:\t%s\n", insn.Address, insn.Instruction)
		}
	}
	return buf.String(), nil
}

func (s *Session) uartCommand(args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("unexpected arguments %q", args)
	}
	return s.uart.Status(), nil
}
