// Package trace projects completed interpreter steps into algebraic
// witness rows: one row of Goldilocks field elements per step, with
// instruction-class selector flags and 16-bit limb decompositions for the
// range-check arguments of the proof backend.
package trace

import (
	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

// Column indices of a witness row. The layout is fixed: the backend
// addresses columns by position.
const (
	ColStep = iota
	ColPC
	ColNextPC
	ColPostPC
	ColPostNextPC
	ColInsn
	ColOpcode
	ColFunct
	ColRs
	ColRt
	ColRd
	ColRsValue
	ColRtValue
	ColLO
	ColHI
	ColMemAccess // boolean
	ColMemWrite  // boolean
	ColMemAddr
	ColMemValue
	ColSyscall // boolean
	ColSyscallNum
	ColOracle // boolean, set when the step performed a pre-image read
	ColPreimageOffset
	ColPreimageLen
	ColExited // boolean
	ColExitCode

	// one boolean selector per instruction class, exactly one is set
	ColSelector0
)

const (
	NumKeyLimbs = 16

	// the 32-byte pre-image key, as 16-bit limbs, big-endian limb order
	ColKeyLimb0 = ColSelector0 + fast.NumInstrClasses

	// 16-bit limb decompositions (lo, hi) of the 32-bit value columns,
	// for the backend's range-check lookup argument
	ColRangeInsnLo     = ColKeyLimb0 + NumKeyLimbs
	ColRangeInsnHi     = ColRangeInsnLo + 1
	ColRangeRsValueLo  = ColRangeInsnHi + 1
	ColRangeRsValueHi  = ColRangeRsValueLo + 1
	ColRangeRtValueLo  = ColRangeRsValueHi + 1
	ColRangeRtValueHi  = ColRangeRtValueLo + 1
	ColRangeMemValueLo = ColRangeRtValueHi + 1
	ColRangeMemValueHi = ColRangeMemValueLo + 1

	RowWidth = ColRangeMemValueHi + 1
)

// Row is the algebraic projection of one execution step.
type Row [RowWidth]goldilocks.Element

// Selector returns the boolean selector column of the given instruction class.
func (r *Row) Selector(class fast.InstrClass) goldilocks.Element {
	return r[ColSelector0+int(class)]
}

// Col returns the value at the given column index.
func (r *Row) Col(i int) goldilocks.Element {
	return r[i]
}
