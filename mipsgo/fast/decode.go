package fast

import "fmt"

// InstrClass identifies the instruction class of a decoded instruction.
// The trace recorder emits one selector column per class.
type InstrClass uint8

const (
	ClassALU      InstrClass = iota // register/immediate arithmetic, logic, compares, lui
	ClassShift                      // sll, srl, sra and variable variants
	ClassMulDiv                     // mult/multu/div/divu and HI/LO moves
	ClassCount                      // clz, clo
	ClassCondMove                   // movz, movn
	ClassBranch                     // beq, bne, blez, bgtz, bltz, bgez
	ClassJump                       // j, jal, jr, jalr
	ClassLoad                       // lb, lh, lwl, lw, lbu, lhu, lwr
	ClassStore                      // sb, sh, swl, sw, swr
	ClassAtomic                     // ll, sc
	ClassSyscall                    // syscall
	ClassNoop                       // sync

	NumInstrClasses = 12
)

func (c InstrClass) String() string {
	switch c {
	case ClassALU:
		return "alu"
	case ClassShift:
		return "shift"
	case ClassMulDiv:
		return "muldiv"
	case ClassCount:
		return "count"
	case ClassCondMove:
		return "condmove"
	case ClassBranch:
		return "branch"
	case ClassJump:
		return "jump"
	case ClassLoad:
		return "load"
	case ClassStore:
		return "store"
	case ClassAtomic:
		return "atomic"
	case ClassSyscall:
		return "syscall"
	case ClassNoop:
		return "noop"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Decoded is the exploded form of a 32-bit MIPS instruction.
// Fields that do not apply to the instruction type are zero.
type Decoded struct {
	Raw    uint32
	Class  InstrClass
	Opcode uint32 // top 6 bits
	Funct  uint32 // bottom 6 bits, SPECIAL/SPECIAL2 only
	Rs     uint32
	Rt     uint32
	Rd     uint32
	Shamt  uint32
	Imm    uint32 // bottom 16 bits, not extended
	Target uint32 // bottom 26 bits, J-type only
}

// SignExtImm returns the sign-extended 16-bit immediate.
func (d Decoded) SignExtImm() uint32 {
	return signExtend(d.Imm, 16)
}

func signExtend(dat uint32, idx uint32) uint32 {
	isSigned := (dat >> (idx - 1)) != 0
	signed := ((uint32(1) << (32 - idx)) - 1) << idx
	mask := (uint32(1) << idx) - 1
	if isSigned {
		return dat&mask | signed
	} else {
		return dat & mask
	}
}

// Decode classifies the instruction word, rejecting any encoding outside
// the supported opcode table. A nil error guarantees the execute switch
// has a defined effect for the result: nothing decodable silently no-ops.
func Decode(insn uint32) (Decoded, error) {
	d := Decoded{
		Raw:    insn,
		Opcode: insn >> 26,
		Rs:     (insn >> 21) & 0x1F,
		Rt:     (insn >> 16) & 0x1F,
		Rd:     (insn >> 11) & 0x1F,
		Shamt:  (insn >> 6) & 0x1F,
		Imm:    insn & 0xFFFF,
		Target: insn & 0x03FF_FFFF,
	}
	switch d.Opcode {
	case 0x00: // SPECIAL
		d.Funct = insn & 0x3F
		switch d.Funct {
		case 0x00, 0x02, 0x03, 0x04, 0x06, 0x07: // sll, srl, sra, sllv, srlv, srav
			d.Class = ClassShift
		case 0x08, 0x09: // jr, jalr
			d.Class = ClassJump
		case 0x0A, 0x0B: // movz, movn
			d.Class = ClassCondMove
		case 0x0C: // syscall
			d.Class = ClassSyscall
		case 0x0F: // sync
			d.Class = ClassNoop
		case 0x10, 0x11, 0x12, 0x13, 0x18, 0x19, 0x1A, 0x1B: // mfhi, mthi, mflo, mtlo, mult, multu, div, divu
			d.Class = ClassMulDiv
		case 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x2A, 0x2B: // add(u), sub(u), and, or, xor, nor, slt(u)
			d.Class = ClassALU
		default:
			return d, fmt.Errorf("%w: SPECIAL funct 0x%02x (insn %08x)", ErrInvalidInstruction, d.Funct, insn)
		}
	case 0x1C: // SPECIAL2
		d.Funct = insn & 0x3F
		switch d.Funct {
		case 0x02: // mul
			d.Class = ClassALU
		case 0x20, 0x21: // clz, clo
			d.Class = ClassCount
		default:
			return d, fmt.Errorf("%w: SPECIAL2 funct 0x%02x (insn %08x)", ErrInvalidInstruction, d.Funct, insn)
		}
	case 0x01: // REGIMM
		switch d.Rt {
		case 0x00, 0x01: // bltz, bgez
			d.Class = ClassBranch
		default:
			return d, fmt.Errorf("%w: REGIMM rt 0x%02x (insn %08x)", ErrInvalidInstruction, d.Rt, insn)
		}
	case 0x02, 0x03: // j, jal
		d.Class = ClassJump
	case 0x04, 0x05, 0x06, 0x07: // beq, bne, blez, bgtz
		d.Class = ClassBranch
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F: // addi(u), slti(u), andi, ori, xori, lui
		d.Class = ClassALU
	case 0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26: // lb, lh, lwl, lw, lbu, lhu, lwr
		d.Class = ClassLoad
	case 0x28, 0x29, 0x2A, 0x2B, 0x2E: // sb, sh, swl, sw, swr
		d.Class = ClassStore
	case 0x30: // ll
		d.Class = ClassAtomic
	case 0x38: // sc
		d.Class = ClassAtomic
	default:
		return d, fmt.Errorf("%w: opcode 0x%02x (insn %08x)", ErrInvalidInstruction, d.Opcode, insn)
	}
	return d, nil
}
