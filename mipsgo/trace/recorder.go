package trace

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

// Recorder turns completed execution steps into witness rows.
// It is a pure projection: the only state across steps is the strictly
// monotonic row index, which must stay gapless with the step index even
// across checkpoint/resume boundaries.
type Recorder struct {
	nextRow uint64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewRecorderAt resumes recording at the given step index,
// for runs continuing from a checkpoint.
func NewRecorderAt(step uint64) *Recorder {
	return &Recorder{nextRow: step}
}

// NextRow returns the index the next recorded row will get.
func (r *Recorder) NextRow() uint64 {
	return r.nextRow
}

// Record projects one completed step into a witness row.
// The step index must equal the next row index: rows are append-only and
// gapless, a mismatch means steps were dropped or replayed.
func (r *Recorder) Record(st fast.StepTrace) (*Row, error) {
	if st.Step != r.nextRow {
		return nil, fmt.Errorf("step index %d does not continue the trace, expected %d", st.Step, r.nextRow)
	}
	r.nextRow++

	row := new(Row)
	row[ColStep].SetUint64(st.Step)
	row[ColPC].SetUint64(uint64(st.PC))
	row[ColNextPC].SetUint64(uint64(st.NextPC))
	row[ColPostPC].SetUint64(uint64(st.PostPC))
	row[ColPostNextPC].SetUint64(uint64(st.PostNextPC))
	row[ColInsn].SetUint64(uint64(st.Insn))
	row[ColOpcode].SetUint64(uint64(st.Opcode))
	row[ColFunct].SetUint64(uint64(st.Funct))
	row[ColRs].SetUint64(uint64(st.Rs))
	row[ColRt].SetUint64(uint64(st.Rt))
	row[ColRd].SetUint64(uint64(st.Rd))
	row[ColRsValue].SetUint64(uint64(st.RsValue))
	row[ColRtValue].SetUint64(uint64(st.RtValue))
	row[ColLO].SetUint64(uint64(st.LO))
	row[ColHI].SetUint64(uint64(st.HI))
	setBool(row, ColMemAccess, st.MemAccess)
	setBool(row, ColMemWrite, st.MemWrite)
	row[ColMemAddr].SetUint64(uint64(st.MemAddr))
	row[ColMemValue].SetUint64(uint64(st.MemValue))
	setBool(row, ColSyscall, st.Syscall)
	row[ColSyscallNum].SetUint64(uint64(st.SyscallNum))
	setBool(row, ColOracle, st.HasPreimage)
	row[ColPreimageOffset].SetUint64(uint64(st.PreimageOffset))
	row[ColPreimageLen].SetUint64(uint64(st.PreimageValueLen))
	setBool(row, ColExited, st.Exited)
	row[ColExitCode].SetUint64(uint64(st.ExitCode))

	if int(st.Class) >= fast.NumInstrClasses {
		return nil, fmt.Errorf("step %d has invalid instruction class %d", st.Step, st.Class)
	}
	row[ColSelector0+int(st.Class)].SetOne()

	for i := 0; i < NumKeyLimbs; i++ {
		limb := uint64(st.PreimageKey[i*2])<<8 | uint64(st.PreimageKey[i*2+1])
		row[ColKeyLimb0+i].SetUint64(limb)
	}

	setLimbs(row, ColRangeInsnLo, st.Insn)
	setLimbs(row, ColRangeRsValueLo, st.RsValue)
	setLimbs(row, ColRangeRtValueLo, st.RtValue)
	setLimbs(row, ColRangeMemValueLo, st.MemValue)

	return row, nil
}

func setBool(row *Row, col int, v bool) {
	if v {
		row[col].SetOne()
	}
}

// setLimbs splits a 32-bit value into its low and high 16-bit limbs,
// at col and col+1.
func setLimbs(row *Row, col int, v uint32) {
	row[col].SetUint64(uint64(v & 0xFFFF))
	row[col+1].SetUint64(uint64(v >> 16))
}

// Writer streams witness rows in step order, in a flat binary format:
// each row is RowWidth columns of 8 canonical big-endian bytes each.
type Writer struct {
	w    io.Writer
	rows uint64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (tw *Writer) WriteRow(row *Row) error {
	var buf [RowWidth * 8]byte
	for i := range row {
		b := row[i].Bytes()
		copy(buf[i*8:], b[:])
	}
	if _, err := tw.w.Write(buf[:]); err != nil {
		return fmt.Errorf("failed to write witness row %d: %w", tw.rows, err)
	}
	tw.rows++
	return nil
}

func (tw *Writer) Rows() uint64 {
	return tw.rows
}

// ReadRow reads one row back from the flat binary format, mainly for
// round-trip checks by the backend tooling.
func ReadRow(r io.Reader) (*Row, error) {
	var buf [RowWidth * 8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	row := new(Row)
	for i := range row {
		row[i].SetUint64(binary.BigEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return row, nil
}
