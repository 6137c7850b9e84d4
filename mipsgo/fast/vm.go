package fast

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zkmips-labs/obelisc/mipsgo/mips"
)

func (m *InstrumentedState) mipsStep() error {
	m.state.Step += 1

	// instruction fetch
	pc := m.state.PC
	if pc&3 != 0 {
		panic(fmt.Errorf("%w: instruction fetch at %08x", ErrUnalignedAccess, pc))
	}
	insn := m.state.Memory.GetMemory(pc)
	dec, err := Decode(insn)
	if err != nil {
		panic(err)
	}
	m.traceDecode(dec)

	opcode := dec.Opcode

	if opcode == 2 || opcode == 3 { // j/jal
		linkReg := uint32(0)
		if opcode == 3 {
			linkReg = mips.RegRA
		}
		// Take the top 4 bits of the next PC (its 256 MB region), and concatenate with the 26-bit offset
		target := (m.state.NextPC & 0xF0000000) | (dec.Target << 2)
		return m.handleJump(linkReg, target)
	}

	// register fetch
	rs := m.state.Registers[dec.Rs] // source register 1 value
	rt := uint32(0)                 // source register 2 / temp value
	rtReg := dec.Rt

	rdReg := rtReg
	if opcode == 0 || opcode == 0x1c {
		// R-type (stores rd)
		rt = m.state.Registers[rtReg]
		rdReg = dec.Rd
	} else if opcode < 0x20 {
		// rt is SignExtImm
		if opcode == 0xC || opcode == 0xD || opcode == 0xE {
			// ZeroExtImm for andi, ori, xori
			rt = dec.Imm
		} else {
			rt = dec.SignExtImm()
		}
	} else if opcode >= 0x28 || opcode == 0x22 || opcode == 0x26 {
		// store value with stores, and the partial destination word with lwl and lwr
		rt = m.state.Registers[rtReg]
		rdReg = rtReg
	}
	m.traceRegisters(rs, rt)

	if dec.Class == ClassBranch {
		return m.handleBranch(opcode, dec, rs)
	}

	storeAddr := ^uint32(0)
	// memory fetch (all I-type)
	// we do the load for stores too, since stores mask/modify the containing 4-byte word
	mem := uint32(0)
	if opcode >= 0x20 {
		// M[R[rs]+SignExtImm]
		rs += dec.SignExtImm()
		addr := rs & 0xFFFF_FFFC
		mem = m.state.Memory.GetMemory(addr)
		m.traceMemRead(addr, mem)
		if dec.Class == ClassStore || (dec.Opcode == 0x38) {
			storeAddr = addr
			// store opcodes don't write back to a register
			rdReg = 0
		}
	}

	// ALU
	val := execute(dec, rs, rt, mem)

	if opcode == 0 {
		switch dec.Class {
		case ClassJump: // jr/jalr
			linkReg := uint32(0)
			if dec.Funct == 9 {
				linkReg = rdReg
			}
			return m.handleJump(linkReg, rs)
		case ClassCondMove:
			if dec.Funct == 0xA { // movz
				return m.handleRd(rdReg, rs, rt == 0)
			}
			return m.handleRd(rdReg, rs, rt != 0) // movn
		case ClassSyscall:
			return m.handleSyscall()
		case ClassMulDiv:
			return m.handleHiLo(dec.Funct, rs, rt, rdReg)
		}
	}

	// store conditional: always succeeds (single-threaded), write 1 to rt
	if opcode == 0x38 && rtReg != 0 {
		m.state.Registers[rtReg] = 1
	}

	// write memory
	if storeAddr != ^uint32(0) {
		m.state.Memory.SetMemory(storeAddr, val)
		m.traceMemWrite(storeAddr, val)
	}

	// write back the value to the destination register
	return m.handleRd(rdReg, val, true)
}

func (m *InstrumentedState) handleSyscall() error {
	syscallNum := m.state.Registers[mips.RegV0]
	v0 := uint32(0)
	v1 := uint32(0)

	a0 := m.state.Registers[mips.RegA0]
	a1 := m.state.Registers[mips.RegA1]
	a2 := m.state.Registers[mips.RegA2]
	m.traceSyscall(syscallNum)

	switch syscallNum {
	case mips.SysMmap:
		sz := a1
		if sz&PageAddrMask != 0 { // adjust size to align with page size
			sz += PageSize - (sz & PageAddrMask)
		}
		if a0 == 0 {
			v0 = m.state.Heap
			m.state.Heap += sz
		} else {
			v0 = a0
		}
	case mips.SysBrk:
		v0 = 0x4000_0000 // fixed program break at 1 GiB
	case mips.SysClone: // no multi-threading, pretend the single thread is child 1
		v0 = 1
	case mips.SysExitGroup:
		m.state.Exited = true
		m.state.ExitCode = uint8(a0)
		return nil
	case mips.SysRead:
		// args: a0 = fd, a1 = addr, a2 = count
		// returns: v0 = read, v1 = err code
		switch a0 {
		case mips.FdStdin:
			// leave v0 and v1 zero: read nothing, no error
		case mips.FdPreimageRead: // pre-image oracle
			effAddr := a1 & 0xFFFF_FFFC
			mem := m.state.Memory.GetMemory(effAddr)
			m.traceMemRead(effAddr, mem)
			dat, datLen := m.readPreimage(m.state.PreimageKey, m.state.PreimageOffset)
			alignment := a1 & 3
			space := 4 - alignment
			if space < datLen {
				datLen = space
			}
			if a2 < datLen {
				datLen = a2
			}
			var outMem [4]byte
			binary.BigEndian.PutUint32(outMem[:], mem)
			copy(outMem[alignment:], dat[:datLen])
			m.state.Memory.SetMemory(effAddr, binary.BigEndian.Uint32(outMem[:]))
			m.traceMemWrite(effAddr, binary.BigEndian.Uint32(outMem[:]))
			m.state.PreimageOffset += datLen
			v0 = datLen
		case mips.FdHintRead:
			// hint response is ignored by the guest, just say we read it all
			v0 = a2
		default:
			v0 = ^uint32(0)
			v1 = mips.MipsEBADF
		}
	case mips.SysWrite:
		// args: a0 = fd, a1 = addr, a2 = count
		// returns: v0 = written, v1 = err code
		switch a0 {
		case mips.FdStdout:
			_, _ = io.Copy(m.stdOut, m.state.Memory.ReadMemoryRange(a1, a2))
			v0 = a2
		case mips.FdStderr:
			_, _ = io.Copy(m.stdErr, m.state.Memory.ReadMemoryRange(a1, a2))
			v0 = a2
		case mips.FdHintWrite:
			hintData, _ := io.ReadAll(m.state.Memory.ReadMemoryRange(a1, a2))
			m.state.LastHint = append(m.state.LastHint, hintData...)
			// forward each complete length-prefixed hint, keep incomplete data buffered
			for len(m.state.LastHint) >= 4 {
				hintLen := binary.BigEndian.Uint32(m.state.LastHint[:4])
				if hintLen > uint32(len(m.state.LastHint[4:])) {
					break
				}
				hint := m.state.LastHint[4 : 4+hintLen]
				m.state.LastHint = m.state.LastHint[4+hintLen:]
				m.preimageOracle.Hint(hint)
			}
			v0 = a2
		case mips.FdPreimageWrite:
			effAddr := a1 & 0xFFFF_FFFC
			mem := m.state.Memory.GetMemory(effAddr)
			m.traceMemRead(effAddr, mem)
			key := m.state.PreimageKey
			alignment := a1 & 3
			space := 4 - alignment
			if space < a2 {
				a2 = space
			}
			copy(key[:], key[a2:]) // shift, making space for new key bytes at the end
			var tmp [4]byte
			binary.BigEndian.PutUint32(tmp[:], mem)
			copy(key[32-a2:], tmp[alignment:])
			m.state.PreimageKey = key
			m.state.PreimageOffset = 0
			v0 = a2
		default:
			v0 = ^uint32(0)
			v1 = mips.MipsEBADF
		}
	case mips.SysFcntl:
		// args: a0 = fd, a1 = cmd
		if a1 == 3 { // F_GETFL: get file descriptor flags
			switch a0 {
			case mips.FdStdin, mips.FdPreimageRead, mips.FdHintRead:
				v0 = 0 // O_RDONLY
			case mips.FdStdout, mips.FdStderr, mips.FdPreimageWrite, mips.FdHintWrite:
				v0 = 1 // O_WRONLY
			default:
				v0 = ^uint32(0)
				v1 = mips.MipsEBADF
			}
		} else {
			v0 = ^uint32(0)
			v1 = mips.MipsEINVAL // cmd not recognized by this kernel
		}
	default:
		panic(fmt.Errorf("%w: %d", ErrInvalidSyscall, syscallNum))
	}

	m.state.Registers[mips.RegV0] = v0
	m.state.Registers[mips.RegA3] = v1
	m.state.PC = m.state.NextPC
	m.state.NextPC = m.state.NextPC + 4
	return nil
}

func (m *InstrumentedState) handleBranch(opcode uint32, dec Decoded, rs uint32) error {
	if m.state.NextPC != m.state.PC+4 {
		panic(fmt.Errorf("%w: branch in delay slot at %08x", ErrInvalidInstruction, m.state.PC))
	}
	shouldBranch := false
	switch opcode {
	case 4, 5: // beq/bne
		rt := m.state.Registers[dec.Rt]
		shouldBranch = (rs == rt && opcode == 4) || (rs != rt && opcode == 5)
	case 6: // blez
		shouldBranch = int32(rs) <= 0
	case 7: // bgtz
		shouldBranch = int32(rs) > 0
	case 1: // REGIMM
		if dec.Rt == 0 { // bltz
			shouldBranch = int32(rs) < 0
		} else { // bgez
			shouldBranch = int32(rs) >= 0
		}
	}

	prevPC := m.state.PC
	m.state.PC = m.state.NextPC // execute the delay slot first
	if shouldBranch {
		// then continue with the instruction the branch jumps to
		m.state.NextPC = prevPC + 4 + (dec.SignExtImm() << 2)
	} else {
		m.state.NextPC = m.state.NextPC + 4
	}
	return nil
}

func (m *InstrumentedState) handleHiLo(fun uint32, rs uint32, rt uint32, storeReg uint32) error {
	val := uint32(0)
	switch fun {
	case 0x10: // mfhi
		val = m.state.HI
	case 0x11: // mthi
		m.state.HI = rs
	case 0x12: // mflo
		val = m.state.LO
	case 0x13: // mtlo
		m.state.LO = rs
	case 0x18: // mult
		acc := uint64(int64(int32(rs)) * int64(int32(rt)))
		m.state.HI = uint32(acc >> 32)
		m.state.LO = uint32(acc)
	case 0x19: // multu
		acc := uint64(rs) * uint64(rt)
		m.state.HI = uint32(acc >> 32)
		m.state.LO = uint32(acc)
	case 0x1A: // div
		if rt == 0 {
			panic(fmt.Errorf("%w: division by zero", ErrInvalidInstruction))
		}
		m.state.HI = uint32(int32(rs) % int32(rt))
		m.state.LO = uint32(int32(rs) / int32(rt))
	case 0x1B: // divu
		if rt == 0 {
			panic(fmt.Errorf("%w: division by zero", ErrInvalidInstruction))
		}
		m.state.HI = rs % rt
		m.state.LO = rs / rt
	}

	if storeReg != 0 {
		m.state.Registers[storeReg] = val
	}
	m.state.PC = m.state.NextPC
	m.state.NextPC = m.state.NextPC + 4
	return nil
}

func (m *InstrumentedState) handleJump(linkReg uint32, dest uint32) error {
	if m.state.NextPC != m.state.PC+4 {
		panic(fmt.Errorf("%w: jump in delay slot at %08x", ErrInvalidInstruction, m.state.PC))
	}
	prevPC := m.state.PC
	m.state.PC = m.state.NextPC
	m.state.NextPC = dest
	if linkReg != 0 {
		// the link register points to the instruction after the delay slot
		m.state.Registers[linkReg] = prevPC + 8
	}
	return nil
}

func (m *InstrumentedState) handleRd(storeReg uint32, val uint32, conditional bool) error {
	if storeReg >= 32 {
		panic(fmt.Errorf("%w: invalid register %d", ErrInvalidInstruction, storeReg))
	}
	if storeReg != 0 && conditional {
		m.state.Registers[storeReg] = val
	}
	m.state.PC = m.state.NextPC
	m.state.NextPC = m.state.NextPC + 4
	return nil
}

// execute computes the ALU result of the decoded instruction.
// Arithmetic wraps two's-complement modulo 2**32. For loads the result is
// the register write-back value, for stores the full word to write back to
// memory (unaffected bytes of the containing word merged in from mem).
func execute(dec Decoded, rs uint32, rt uint32, mem uint32) uint32 {
	opcode := dec.Opcode
	if opcode == 0 || (opcode >= 8 && opcode < 0xF) {
		fun := dec.Funct
		// transform immediate arithmetic opcodes to their SPECIAL funct
		switch opcode {
		case 8:
			fun = 0x20 // addi
		case 9:
			fun = 0x21 // addiu
		case 0xA:
			fun = 0x2A // slti
		case 0xB:
			fun = 0x2B // sltiu
		case 0xC:
			fun = 0x24 // andi
		case 0xD:
			fun = 0x25 // ori
		case 0xE:
			fun = 0x26 // xori
		}
		switch fun {
		case 0x00: // sll
			return rt << dec.Shamt
		case 0x02: // srl
			return rt >> dec.Shamt
		case 0x03: // sra
			return signExtend(rt>>dec.Shamt, 32-dec.Shamt)
		case 0x04: // sllv
			return rt << (rs & 0x1F)
		case 0x06: // srlv
			return rt >> (rs & 0x1F)
		case 0x07: // srav
			shamt := rs & 0x1F
			return signExtend(rt>>shamt, 32-shamt)
		// functs in range [0x8, 0x1b] are handled outside of the ALU
		case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0F, 0x10, 0x11, 0x12, 0x13, 0x18, 0x19, 0x1A, 0x1B:
			return rs
		case 0x20, 0x21: // add/addu: no overflow trap, identical to the wrapping add
			return rs + rt
		case 0x22, 0x23: // sub/subu
			return rs - rt
		case 0x24: // and
			return rs & rt
		case 0x25: // or
			return rs | rt
		case 0x26: // xor
			return rs ^ rt
		case 0x27: // nor
			return ^(rs | rt)
		case 0x2A: // slt
			if int32(rs) < int32(rt) {
				return 1
			}
			return 0
		case 0x2B: // sltu
			if rs < rt {
				return 1
			}
			return 0
		}
	} else {
		switch opcode {
		case 0x1C: // SPECIAL2
			switch dec.Funct {
			case 0x02: // mul
				return uint32(int32(rs) * int32(rt))
			case 0x20, 0x21: // clz, clo
				if dec.Funct == 0x20 {
					rs = ^rs
				}
				i := uint32(0)
				for ; rs&0x8000_0000 != 0; i++ {
					rs <<= 1
				}
				return i
			}
		case 0x0F: // lui
			return rt << 16
		case 0x20: // lb
			return signExtend((mem>>(24-(rs&3)*8))&0xFF, 8)
		case 0x21: // lh
			return signExtend((mem>>(16-(rs&2)*8))&0xFFFF, 16)
		case 0x22: // lwl
			val := mem << ((rs & 3) * 8)
			mask := uint32(0xFFFF_FFFF) << ((rs & 3) * 8)
			return (rt & ^mask) | val
		case 0x23: // lw
			return mem
		case 0x24: // lbu
			return (mem >> (24 - (rs&3)*8)) & 0xFF
		case 0x25: // lhu
			return (mem >> (16 - (rs&2)*8)) & 0xFFFF
		case 0x26: // lwr
			val := mem >> (24 - (rs&3)*8)
			mask := uint32(0xFFFF_FFFF) >> (24 - (rs&3)*8)
			return (rt & ^mask) | val
		case 0x28: // sb
			val := (rt & 0xFF) << (24 - (rs&3)*8)
			mask := 0xFFFF_FFFF ^ uint32(0xFF<<(24-(rs&3)*8))
			return (mem & mask) | val
		case 0x29: // sh
			val := (rt & 0xFFFF) << (16 - (rs&2)*8)
			mask := 0xFFFF_FFFF ^ uint32(0xFFFF<<(16-(rs&2)*8))
			return (mem & mask) | val
		case 0x2A: // swl
			val := rt >> ((rs & 3) * 8)
			mask := uint32(0xFFFF_FFFF) >> ((rs & 3) * 8)
			return (mem & ^mask) | val
		case 0x2B: // sw
			return rt
		case 0x2E: // swr
			val := rt << (24 - (rs&3)*8)
			mask := uint32(0xFFFF_FFFF) << (24 - (rs&3)*8)
			return (mem & ^mask) | val
		case 0x30: // ll
			return mem
		case 0x38: // sc
			return rt
		}
	}
	// Decode already rejected anything outside the table
	panic(fmt.Errorf("%w: insn %08x", ErrInvalidInstruction, dec.Raw))
}
