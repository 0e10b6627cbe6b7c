package classfile

import (
	"encoding/binary"
	"fmt"
)

// Opcodes that carry constant pool references or need special decoding.
const (
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIinc            = 0x84
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpWide            = 0xC4
	OpMultianewarray  = 0xC5
	OpGotoW           = 0xC8
	OpJsrW            = 0xC9
)

// Instruction is a decoded instruction. Index is the constant pool index
// for instructions that reference the pool, zero otherwise.
type Instruction struct {
	PC     int
	Opcode byte
	Index  uint16
}

// ReferencesPool reports whether the instruction's Index is meaningful.
func (in Instruction) ReferencesPool() bool {
	switch in.Opcode {
	case OpLdc, OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		return true
	}
	return false
}

// WalkCode decodes code and calls fn for every instruction in order.
func WalkCode(code []byte, fn func(Instruction) error) error {
	pc := 0
	for pc < len(code) {
		op := code[pc]
		n, err := instructionLength(code, pc)
		if err != nil {
			return err
		}
		if pc+n > len(code) {
			return fmt.Errorf("instruction 0x%02X at pc %d overruns code (%d bytes)", op, pc, len(code))
		}
		in := Instruction{PC: pc, Opcode: op}
		switch op {
		case OpLdc:
			in.Index = uint16(code[pc+1])
		default:
			if in.ReferencesPool() {
				in.Index = binary.BigEndian.Uint16(code[pc+1 : pc+3])
			}
		}
		if err := fn(in); err != nil {
			return err
		}
		pc += n
	}
	return nil
}

func instructionLength(code []byte, pc int) (int, error) {
	op := code[pc]
	switch {
	case op == OpBipush, op == OpLdc, op == OpNewarray,
		op >= 0x15 && op <= 0x19, // xload
		op >= 0x36 && op <= 0x3A, // xstore
		op == 0xA9:               // ret
		return 2, nil
	case op == OpSipush, op == OpLdcW, op == OpLdc2W, op == OpIinc,
		op >= 0x99 && op <= 0xA8, // if*, goto, jsr
		op >= OpGetstatic && op <= OpInvokestatic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof,
		op == 0xC6, op == 0xC7: // ifnull, ifnonnull
		return 3, nil
	case op == OpMultianewarray:
		return 4, nil
	case op == OpInvokeinterface, op == OpInvokedynamic, op == OpGotoW, op == OpJsrW:
		return 5, nil
	case op == OpTableswitch:
		base := pc + 1 + padding(pc)
		if base+12 > len(code) {
			return 0, fmt.Errorf("tableswitch at pc %d truncated", pc)
		}
		low := int32(binary.BigEndian.Uint32(code[base+4 : base+8]))
		high := int32(binary.BigEndian.Uint32(code[base+8 : base+12]))
		if high < low {
			return 0, fmt.Errorf("tableswitch at pc %d has high < low", pc)
		}
		entries := int64(high) - int64(low) + 1
		if entries > int64(len(code)-base-12)/4 {
			return 0, fmt.Errorf("tableswitch at pc %d truncated", pc)
		}
		return base + 12 + int(entries)*4 - pc, nil
	case op == OpLookupswitch:
		base := pc + 1 + padding(pc)
		if base+8 > len(code) {
			return 0, fmt.Errorf("lookupswitch at pc %d truncated", pc)
		}
		npairs := int32(binary.BigEndian.Uint32(code[base+4 : base+8]))
		if npairs < 0 {
			return 0, fmt.Errorf("lookupswitch at pc %d has negative npairs", pc)
		}
		if int64(npairs) > int64(len(code)-base-8)/8 {
			return 0, fmt.Errorf("lookupswitch at pc %d truncated", pc)
		}
		return base + 8 + int(npairs)*8 - pc, nil
	case op == OpWide:
		if pc+1 >= len(code) {
			return 0, fmt.Errorf("wide at pc %d truncated", pc)
		}
		if code[pc+1] == OpIinc {
			return 6, nil
		}
		return 4, nil
	case op <= OpJsrW:
		return 1, nil
	}
	return 0, fmt.Errorf("unknown opcode 0x%02X at pc %d", op, pc)
}

// padding returns the alignment bytes following a switch opcode at pc.
func padding(pc int) int {
	return (4 - (pc+1)%4) % 4
}
