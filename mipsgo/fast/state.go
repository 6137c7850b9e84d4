package fast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VMState is the full machine state of the MIPS32 VM:
// everything the interpreter may read or write during a step.
// It serializes into a checkpoint that resumes bit-identically.
type VMState struct {
	Memory *Memory `json:"memory"`

	PreimageKey    common.Hash `json:"preimageKey"`
	PreimageOffset uint32      `json:"preimageOffset"`

	PC uint32 `json:"pc"`
	// NextPC trails the PC by one instruction to implement branch delay slots.
	NextPC uint32 `json:"nextPC"`

	LO uint32 `json:"lo"`
	HI uint32 `json:"hi"`

	Heap uint32 `json:"heap"` // for mmap to keep allocating new anon memory

	ExitCode uint8 `json:"exit"`
	Exited   bool  `json:"exited"`

	Step uint64 `json:"step"`

	Registers [32]uint32 `json:"registers"`

	// LastHint buffers guest hint writes until a full length-prefixed hint arrived.
	// It is part of the state so a checkpoint mid-hint still resumes exactly.
	LastHint hexutil.Bytes `json:"lastHint,omitempty"`
}

func NewVMState() *VMState {
	return &VMState{
		Memory: NewMemory(),
		Heap:   0x2000_0000, // 0.5 GiB of program code/data space below the heap
	}
}

// BootVMState creates a fresh-boot state: all registers zero,
// PC at the given entrypoint, NextPC at the following instruction.
func BootVMState(entrypoint uint32) *VMState {
	st := NewVMState()
	st.PC = entrypoint
	st.NextPC = entrypoint + 4
	return st
}

type StateWitness []byte

const (
	VMStatusValid      = 0
	VMStatusInvalid    = 1
	VMStatusPanic      = 2
	VMStatusUnfinished = 3
)

func (sw StateWitness) StateHash() (common.Hash, error) {
	offset := 32 + 4 + 4 + 4 // mem-root, preimage-offset, pc, next-pc precede exit code
	offset += 32 + 4 + 4 + 4 // preimage-key, lo, hi, heap
	if len(sw) <= offset+1 {
		return common.Hash{}, fmt.Errorf("cannot hash invalid witness, too short: %d", len(sw))
	}
	hash := crypto.Keccak256Hash(sw)
	exitCode := sw[offset]
	exited := sw[offset+1]
	status := vmStatus(exited == 1, exitCode)
	hash[0] = status
	return hash, nil
}

func vmStatus(exited bool, exitCode uint8) uint8 {
	if !exited {
		return VMStatusUnfinished
	}
	switch exitCode {
	case 0:
		return VMStatusValid
	case 1:
		return VMStatusInvalid
	default:
		return VMStatusPanic
	}
}

func (state *VMState) EncodeWitness() StateWitness {
	out := make([]byte, 0, 32+32+4+4+4+4+4+4+1+1+8+32*4)
	memRoot := state.Memory.MerkleRoot()
	out = append(out, memRoot[:]...)
	out = append(out, state.PreimageKey[:]...)
	out = binary.BigEndian.AppendUint32(out, state.PreimageOffset)
	out = binary.BigEndian.AppendUint32(out, state.PC)
	out = binary.BigEndian.AppendUint32(out, state.NextPC)
	out = binary.BigEndian.AppendUint32(out, state.LO)
	out = binary.BigEndian.AppendUint32(out, state.HI)
	out = binary.BigEndian.AppendUint32(out, state.Heap)
	out = append(out, state.ExitCode)
	if state.Exited {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint64(out, state.Step)
	for _, r := range state.Registers {
		out = binary.BigEndian.AppendUint32(out, r)
	}
	return out
}

// Serialize writes the state in a simple binary format which can be read again using Deserialize.
// All fixed-size fields are encoded big-endian; the memory and the hint buffer are length-prefixed.
func (state *VMState) Serialize(out io.Writer) error {
	if err := state.Memory.Serialize(out); err != nil {
		return err
	}
	if _, err := out.Write(state.PreimageKey[:]); err != nil {
		return err
	}
	fields := []uint32{
		state.PreimageOffset,
		state.PC,
		state.NextPC,
		state.LO,
		state.HI,
		state.Heap,
	}
	for _, v := range fields {
		if err := binary.Write(out, binary.BigEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(out, binary.BigEndian, state.ExitCode); err != nil {
		return err
	}
	if err := binary.Write(out, binary.BigEndian, state.Exited); err != nil {
		return err
	}
	if err := binary.Write(out, binary.BigEndian, state.Step); err != nil {
		return err
	}
	for _, r := range state.Registers {
		if err := binary.Write(out, binary.BigEndian, r); err != nil {
			return err
		}
	}
	// a nil hint buffer is encoded as max-uint32 length, to stay distinct from an empty buffer
	if state.LastHint == nil {
		if err := binary.Write(out, binary.BigEndian, ^uint32(0)); err != nil {
			return err
		}
	} else {
		if err := binary.Write(out, binary.BigEndian, uint32(len(state.LastHint))); err != nil {
			return err
		}
		if _, err := out.Write(state.LastHint); err != nil {
			return err
		}
	}
	return nil
}

func (state *VMState) Deserialize(in io.Reader) error {
	state.Memory = NewMemory()
	if err := state.Memory.Deserialize(in); err != nil {
		return err
	}
	if _, err := io.ReadFull(in, state.PreimageKey[:]); err != nil {
		return err
	}
	fields := []*uint32{
		&state.PreimageOffset,
		&state.PC,
		&state.NextPC,
		&state.LO,
		&state.HI,
		&state.Heap,
	}
	for _, v := range fields {
		if err := binary.Read(in, binary.BigEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Read(in, binary.BigEndian, &state.ExitCode); err != nil {
		return err
	}
	if err := binary.Read(in, binary.BigEndian, &state.Exited); err != nil {
		return err
	}
	if err := binary.Read(in, binary.BigEndian, &state.Step); err != nil {
		return err
	}
	for i := range state.Registers {
		if err := binary.Read(in, binary.BigEndian, &state.Registers[i]); err != nil {
			return err
		}
	}
	var hintLen uint32
	if err := binary.Read(in, binary.BigEndian, &hintLen); err != nil {
		return err
	}
	if hintLen == ^uint32(0) {
		state.LastHint = nil
	} else {
		state.LastHint = make(hexutil.Bytes, hintLen)
		if _, err := io.ReadFull(in, state.LastHint); err != nil {
			return err
		}
	}
	return nil
}

func (state *VMState) Instr() uint32 {
	return state.Memory.GetMemory(state.PC)
}

// VM error kinds surfaced by Step. All of them are fatal to the run.
var (
	ErrInvalidInstruction = errors.New("invalid or unsupported instruction")
	ErrUnalignedAccess    = errors.New("unaligned memory access")
	ErrInvalidSyscall     = errors.New("unrecognized system call")
	ErrStepAfterExit      = errors.New("step after VM exit")
)

// VMError identifies the failing step, so a run abort is reproducible.
type VMError struct {
	Step uint64
	PC   uint32
	Err  error
}

func (e *VMError) Error() string {
	return fmt.Sprintf("step %d (PC: %08x): %v", e.Step, e.PC, e.Err)
}

func (e *VMError) Unwrap() error {
	return e.Err
}
