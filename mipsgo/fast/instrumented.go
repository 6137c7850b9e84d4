package fast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type PreimageOracle interface {
	Hint(v []byte)
	GetPreimage(k [32]byte) ([]byte, error)
}

type InstrumentedState struct {
	state *VMState

	stdOut io.Writer
	stdErr io.Writer

	memProofEnabled bool
	lastMemAccess   uint32
	memProof        [ProofLen * 32]byte

	preimageOracle PreimageOracle

	// cached pre-image data, including 8 byte length prefix
	lastPreimage []byte
	// key for above preimage
	lastPreimageKey [32]byte
	// offset we last read from, or max uint32 if nothing is read this step
	lastPreimageOffset uint32

	// record of the step being executed, emitted to the trace recorder
	curTrace StepTrace
}

func NewInstrumentedState(state *VMState, po PreimageOracle, stdOut, stdErr io.Writer) *InstrumentedState {
	return &InstrumentedState{
		state:          state,
		stdOut:         stdOut,
		stdErr:         stdErr,
		preimageOracle: po,
	}
}

func (m *InstrumentedState) State() *VMState {
	return m.state
}

// Step executes a single instruction.
// With proof enabled, the returned witness carries the pre-state encoding
// and the merkle proofs of every memory access of the step.
// Stepping an exited state is an error: the Halted state is terminal.
func (m *InstrumentedState) Step(proof bool) (wit *StepWitness, err error) {
	if m.state.Exited {
		return nil, &VMError{Step: m.state.Step, PC: m.state.PC, Err: ErrStepAfterExit}
	}

	m.memProofEnabled = proof
	m.lastMemAccess = ^uint32(0)
	m.lastPreimageOffset = ^uint32(0)

	stepIdx := m.state.Step
	m.curTrace = StepTrace{
		Step:   stepIdx,
		PC:     m.state.PC,
		NextPC: m.state.NextPC,
	}

	if proof {
		insnProof := m.state.Memory.MerkleProof(m.state.PC)
		wit = &StepWitness{
			State:    m.state.EncodeWitness(), // the pre-state is the witness
			MemProof: insnProof[:],
		}
	}

	defer func() {
		if r := recover(); r != nil {
			rErr, ok := r.(error)
			if !ok {
				rErr = fmt.Errorf("%v", r)
			}
			wit = nil
			err = &VMError{Step: stepIdx, PC: m.curTrace.PC, Err: rErr}
		}
	}()

	if err := m.mipsStep(); err != nil {
		return nil, &VMError{Step: stepIdx, PC: m.curTrace.PC, Err: err}
	}

	m.curTrace.PostPC = m.state.PC
	m.curTrace.PostNextPC = m.state.NextPC
	m.curTrace.LO = m.state.LO
	m.curTrace.HI = m.state.HI
	m.curTrace.Exited = m.state.Exited
	m.curTrace.ExitCode = m.state.ExitCode

	if proof {
		wit.MemProof = append(wit.MemProof, m.memProof[:]...)
		if m.lastPreimageOffset != ^uint32(0) {
			wit.PreimageKey = m.lastPreimageKey
			wit.PreimageValue = m.lastPreimage
			wit.PreimageOffset = m.lastPreimageOffset
		}
	}

	return wit, nil
}

// StepTrace returns the record of the last completed step, by value.
func (m *InstrumentedState) StepTrace() StepTrace {
	return m.curTrace
}

func (m *InstrumentedState) readPreimage(key [32]byte, offset uint32) (dat [32]byte, datLen uint32) {
	preimage := m.lastPreimage
	if preimage == nil || key != m.lastPreimageKey {
		m.lastPreimageKey = key
		data, err := m.preimageOracle.GetPreimage(key)
		if err != nil {
			panic(fmt.Errorf("failed to read pre-image %x: %w", key, err))
		}
		// add the length prefix
		preimage = make([]byte, 0, 8+len(data))
		preimage = binary.BigEndian.AppendUint64(preimage, uint64(len(data)))
		preimage = append(preimage, data...)
		m.lastPreimage = preimage
	}
	m.lastPreimageOffset = offset
	if offset >= uint32(len(preimage)) {
		panic("pre-image offset out-of-bounds")
	}
	m.curTrace.HasPreimage = true
	m.curTrace.PreimageKey = key
	m.curTrace.PreimageOffset = offset
	m.curTrace.PreimageValueLen = uint32(len(preimage) - 8)
	datLen = uint32(copy(dat[:], preimage[offset:]))
	return
}

func (m *InstrumentedState) LastPreimage() ([32]byte, []byte, uint32) {
	return m.lastPreimageKey, m.lastPreimage, m.lastPreimageOffset
}

// trackMemAccess remembers the merkle-branch of memory to the given address.
// Each step has at most one data access besides the instruction fetch.
func (m *InstrumentedState) trackMemAccess(effAddr uint32) {
	if !m.memProofEnabled || m.lastMemAccess == effAddr {
		return
	}
	if m.lastMemAccess != ^uint32(0) {
		panic(fmt.Errorf("unexpected different mem access at %08x, already have access at %08x buffered", effAddr, m.lastMemAccess))
	}
	m.lastMemAccess = effAddr
	m.memProof = m.state.Memory.MerkleProof(effAddr)
}

func (m *InstrumentedState) traceDecode(dec Decoded) {
	m.curTrace.Insn = dec.Raw
	m.curTrace.Class = dec.Class
	m.curTrace.Opcode = dec.Opcode
	m.curTrace.Funct = dec.Funct
	m.curTrace.Rs = dec.Rs
	m.curTrace.Rt = dec.Rt
	m.curTrace.Rd = dec.Rd
}

func (m *InstrumentedState) traceRegisters(rs, rt uint32) {
	m.curTrace.RsValue = rs
	m.curTrace.RtValue = rt
}

func (m *InstrumentedState) traceMemRead(addr, value uint32) {
	m.trackMemAccess(addr)
	m.curTrace.MemAccess = true
	m.curTrace.MemAddr = addr
	m.curTrace.MemValue = value
}

func (m *InstrumentedState) traceMemWrite(addr, value uint32) {
	m.curTrace.MemAccess = true
	m.curTrace.MemWrite = true
	m.curTrace.MemAddr = addr
	m.curTrace.MemValue = value
}

func (m *InstrumentedState) traceSyscall(num uint32) {
	m.curTrace.Syscall = true
	m.curTrace.SyscallNum = num
}

// IsErrStepAfterExit reports whether the error is a step-after-halt usage error.
func IsErrStepAfterExit(err error) bool {
	return errors.Is(err, ErrStepAfterExit)
}
