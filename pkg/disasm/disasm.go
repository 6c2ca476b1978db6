// Package disasm reconstructs instruction listings of arbitrary length
// around a memory address from the variable-length ranges GDB
// disassembles.
package disasm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/gdbtarget/pkg/logflags"
	"github.com/go-delve/gdbtarget/pkg/mi"
)

// meanInstructionSize is the number of bytes per instruction assumed when
// sizing a fetch window.
const meanInstructionSize = 4

// placeholderStep is the address increment between padding instructions.
const placeholderStep = 2

// InvalidInstructionText is the text of padding instructions.
const InvalidInstructionText = "failed to retrieve instruction"

// ErrNoInstructions is returned when not a single instruction could be
// read.
var ErrNoInstructions = errors.New("Cannot retrieve instructions!")

// Location is the source file an instruction belongs to.
type Location struct {
	Name string
	Path string
}

// Instruction is a disassembled instruction, or a placeholder for one that
// could not be read when Invalid is set.
type Instruction struct {
	Address          string
	InstructionBytes string
	Instruction      string
	Symbol           string
	Location         *Location
	Line             int
	Invalid          bool
}

// Disassembler disassembles the memory between two address expressions.
// *mi.Conn implements it.
type Disassembler interface {
	DataDisassemble(ctx context.Context, start, end string) ([]mi.AsmInstruction, error)
}

// Engine answers disassembly requests. It keeps no state between calls.
type Engine struct {
	d   Disassembler
	log *logrus.Entry
}

// New returns an Engine reading memory through d.
func New(d Disassembler) *Engine {
	return &Engine{d: d, log: logflags.DAPLogger()}
}

// GetInstructions returns exactly |length| instructions in ascending
// address order: the ones starting at startAddress when length is
// positive, the ones preceding it when length is negative. Instructions
// that could not be read are replaced by invalid placeholders adjacent to
// the last one read. If the very first read fails its error is returned,
// if no instruction at all could be read ErrNoInstructions is.
func (e *Engine) GetInstructions(ctx context.Context, startAddress string, length int) ([]Instruction, error) {
	reverse := length < 0
	count := length
	if reverse {
		count = -length
	}

	var (
		list         []Instruction
		lower, upper int
	)
	for len(list) < count {
		remaining := count - len(list)
		if reverse {
			upper = lower
			lower -= remaining * meanInstructionSize
		} else {
			lower = upper
			upper += remaining * meanInstructionSize
		}
		insns, err := e.fetch(ctx, startAddress, lower, upper)
		if err != nil {
			if len(list) == 0 {
				return nil, err
			}
			e.log.Debugf("disassembly of %s stopped early: %v", startAddress, err)
			break
		}
		if len(insns) == 0 {
			break
		}
		if reverse {
			list = append(insns, list...)
		} else {
			list = append(list, insns...)
		}
	}

	if len(list) > count {
		if reverse {
			list = list[len(list)-count:]
		} else {
			list = list[:count]
		}
	}

	if missing := count - len(list); missing > 0 {
		if len(list) == 0 {
			return nil, ErrNoInstructions
		}
		if reverse {
			pad, err := placeholders(list[0].Address, missing, -placeholderStep)
			if err != nil {
				return nil, err
			}
			list = append(pad, list...)
		} else {
			pad, err := placeholders(list[len(list)-1].Address, missing, placeholderStep)
			if err != nil {
				return nil, err
			}
			list = append(list, pad...)
		}
	}
	return list, nil
}

// Disassemble serves a disassemble request: instructionCount instructions
// starting instructionOffset instructions away from memoryReference+offset.
func (e *Engine) Disassemble(ctx context.Context, memoryReference string, offset, instructionOffset, instructionCount int) ([]Instruction, error) {
	if instructionCount <= 0 {
		return []Instruction{}, nil
	}
	start := memoryReference
	if offset != 0 {
		if addr, err := OffsetAddress(memoryReference, int64(offset)); err == nil {
			start = addr
		} else {
			start = relative(memoryReference, offset)
		}
	}

	var list []Instruction
	if instructionOffset < 0 {
		back, err := e.GetInstructions(ctx, start, instructionOffset)
		if err != nil {
			return nil, err
		}
		if len(back) > instructionCount {
			back = back[:instructionCount]
		}
		list = back
	}
	if remaining := instructionCount - len(list); remaining > 0 {
		skip := 0
		if instructionOffset > 0 {
			skip = instructionOffset
		}
		fwd, err := e.GetInstructions(ctx, start, remaining+skip)
		if err != nil {
			return nil, err
		}
		list = append(list, fwd[skip:]...)
	}
	return list, nil
}

func (e *Engine) fetch(ctx context.Context, ref string, lower, upper int) ([]Instruction, error) {
	insns, err := e.d.DataDisassemble(ctx, relative(ref, lower), relative(ref, upper))
	if err != nil {
		return nil, err
	}
	r := make([]Instruction, 0, len(insns))
	for _, in := range insns {
		r = append(r, convert(in))
	}
	return r, nil
}

func convert(in mi.AsmInstruction) Instruction {
	insn := Instruction{
		Address:          in.Address,
		InstructionBytes: in.Opcodes,
		Instruction:      in.Inst,
		Line:             in.Line,
	}
	switch {
	case in.FuncName != "" && in.Offset != "":
		insn.Symbol = in.FuncName + "+" + in.Offset
	case in.FuncName != "":
		insn.Symbol = in.FuncName
	}
	if in.File != "" || in.Fullname != "" {
		insn.Location = &Location{Name: in.File, Path: in.Fullname}
	}
	return insn
}

// relative returns the expression for ref moved by offset bytes.
func relative(ref string, offset int) string {
	if offset < 0 {
		return fmt.Sprintf("(%s)-%d", ref, -offset)
	}
	return fmt.Sprintf("(%s)+%d", ref, offset)
}

func placeholders(from string, n, step int) ([]Instruction, error) {
	r := make([]Instruction, n)
	addr := from
	for i := 0; i < n; i++ {
		next, err := OffsetAddress(addr, int64(step))
		if err != nil {
			return nil, err
		}
		addr = next
		idx := i
		if step < 0 {
			idx = n - 1 - i
		}
		r[idx] = Instruction{Address: addr, Instruction: InvalidInstructionText, Invalid: true}
	}
	return r, nil
}

// OffsetAddress adds offset to a hexadecimal address, keeping at least the
// number of digits of addr. Addresses of any width are supported.
func OffsetAddress(addr string, offset int64) (string, error) {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	digits := addr[2:]
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok || digits == "" {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	v.Add(v, big.NewInt(offset))
	if v.Sign() < 0 {
		return "", fmt.Errorf("address %s%+d out of range", addr, offset)
	}
	return fmt.Sprintf("0x%0*x", len(digits), v), nil
}
