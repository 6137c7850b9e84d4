package trace

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/stretchr/testify/require"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

func sampleStep(step uint64) fast.StepTrace {
	return fast.StepTrace{
		Step:       step,
		PC:         0x1000,
		NextPC:     0x1004,
		PostPC:     0x1004,
		PostNextPC: 0x1008,
		Insn:       0x2508_0001, // addiu $t0, $t0, 1
		Class:      fast.ClassALU,
		Opcode:     9,
		Rs:         8,
		Rt:         8,
		RsValue:    0xDEAD_BEEF,
		RtValue:    1,
	}
}

func TestRecorderDeterminism(t *testing.T) {
	st := sampleStep(0)
	row1, err := NewRecorder().Record(st)
	require.NoError(t, err)
	row2, err := NewRecorder().Record(st)
	require.NoError(t, err)
	require.Equal(t, row1, row2, "the same step always projects to the same row")
}

func TestRecorderColumns(t *testing.T) {
	st := sampleStep(3)
	row, err := NewRecorderAt(3).Record(st)
	require.NoError(t, err)

	expect := func(col int, v uint64) {
		var e goldilocks.Element
		e.SetUint64(v)
		require.True(t, e.Equal(&row[col]), "column %d", col)
	}
	expect(ColStep, 3)
	expect(ColPC, 0x1000)
	expect(ColNextPC, 0x1004)
	expect(ColPostPC, 0x1004)
	expect(ColPostNextPC, 0x1008)
	expect(ColInsn, 0x2508_0001)
	expect(ColOpcode, 9)
	expect(ColRs, 8)
	expect(ColRsValue, 0xDEAD_BEEF)
	expect(ColMemAccess, 0)
	expect(ColSyscall, 0)
	expect(ColExited, 0)

	// 16-bit range-check limbs
	expect(ColRangeInsnLo, 0x0001)
	expect(ColRangeInsnHi, 0x2508)
	expect(ColRangeRsValueLo, 0xBEEF)
	expect(ColRangeRsValueHi, 0xDEAD)
	expect(ColRangeRtValueLo, 1)
	expect(ColRangeRtValueHi, 0)
}

func TestRecorderSelectors(t *testing.T) {
	classes := []fast.InstrClass{
		fast.ClassALU, fast.ClassShift, fast.ClassMulDiv, fast.ClassCount,
		fast.ClassCondMove, fast.ClassBranch, fast.ClassJump, fast.ClassLoad,
		fast.ClassStore, fast.ClassAtomic, fast.ClassSyscall, fast.ClassNoop,
	}
	for _, class := range classes {
		t.Run(class.String(), func(t *testing.T) {
			st := sampleStep(0)
			st.Class = class
			row, err := NewRecorder().Record(st)
			require.NoError(t, err)

			var one goldilocks.Element
			one.SetOne()
			for _, other := range classes {
				sel := row.Selector(other)
				if other == class {
					require.True(t, one.Equal(&sel), "selector of the class is one")
				} else {
					require.True(t, sel.IsZero(), "selector %s stays zero", other)
				}
			}
		})
	}
}

func TestRecorderInvalidClass(t *testing.T) {
	st := sampleStep(0)
	st.Class = fast.InstrClass(200)
	_, err := NewRecorder().Record(st)
	require.ErrorContains(t, err, "invalid instruction class")
}

func TestRecorderKeyLimbs(t *testing.T) {
	st := sampleStep(0)
	for i := range st.PreimageKey {
		st.PreimageKey[i] = byte(i)
	}
	st.HasPreimage = true
	row, err := NewRecorder().Record(st)
	require.NoError(t, err)

	var one goldilocks.Element
	one.SetOne()
	require.True(t, one.Equal(&row[ColOracle]))
	for i := 0; i < NumKeyLimbs; i++ {
		var e goldilocks.Element
		e.SetUint64(uint64(2*i)<<8 | uint64(2*i+1))
		require.True(t, e.Equal(&row[ColKeyLimb0+i]), "key limb %d", i)
	}
}

func TestRecorderGaplessIndex(t *testing.T) {
	r := NewRecorder()
	_, err := r.Record(sampleStep(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.NextRow())

	_, err = r.Record(sampleStep(2))
	require.ErrorContains(t, err, "does not continue the trace", "gaps are rejected")

	_, err = r.Record(sampleStep(0))
	require.Error(t, err, "replays are rejected")

	_, err = r.Record(sampleStep(1))
	require.NoError(t, err)
}

func TestRecorderResumeAt(t *testing.T) {
	r := NewRecorderAt(100)
	_, err := r.Record(sampleStep(0))
	require.Error(t, err, "resumed trace starts at the checkpoint step")
	_, err = r.Record(sampleStep(100))
	require.NoError(t, err)
	require.Equal(t, uint64(101), r.NextRow())
}

func TestRowRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var rows []*Row
	r := NewRecorder()
	for step := uint64(0); step < 5; step++ {
		st := sampleStep(step)
		st.RsValue = uint32(step * 1000)
		row, err := r.Record(st)
		require.NoError(t, err)
		require.NoError(t, w.WriteRow(row))
		rows = append(rows, row)
	}
	require.Equal(t, uint64(5), w.Rows())
	require.Len(t, buf.Bytes(), 5*RowWidth*8)

	for _, expected := range rows {
		got, err := ReadRow(&buf)
		require.NoError(t, err)
		require.Equal(t, expected, got)
	}
}
