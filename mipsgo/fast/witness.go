package fast

import (
	"github.com/ethereum/go-ethereum/common"
)

type LocalContext common.Hash

// StepWitness carries the merkle-proof material of one step,
// for replication of the step by an external verifier.
type StepWitness struct {
	// encoded pre-state witness
	State []byte

	// memory proofs: instruction fetch, followed by the data access of the step (if any)
	MemProof []byte

	PreimageKey    [32]byte // zeroed when no pre-image is accessed
	PreimageValue  []byte   // including the 8-byte length prefix
	PreimageOffset uint32
}

func (wit *StepWitness) HasPreimage() bool {
	return wit.PreimageKey != ([32]byte{})
}

// StepTrace is the immutable record of one completed execution step,
// the input to the algebraic trace recorder. The interpreter emits it
// by value; the recorder never reaches into live machine state.
type StepTrace struct {
	Step uint64

	PC     uint32
	NextPC uint32
	Insn   uint32

	Class  InstrClass
	Opcode uint32
	Funct  uint32
	Rs     uint32
	Rt     uint32
	Rd     uint32

	RsValue uint32
	RtValue uint32

	// post-state values
	PostPC     uint32
	PostNextPC uint32
	LO         uint32
	HI         uint32

	MemAccess bool
	MemWrite  bool
	MemAddr   uint32
	MemValue  uint32

	Syscall    bool
	SyscallNum uint32

	HasPreimage      bool
	PreimageKey      [32]byte
	PreimageOffset   uint32
	PreimageValueLen uint32

	Exited   bool
	ExitCode uint8
}
