package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

func TestStepMatcherFlag(t *testing.T) {
	stateAt := func(step uint64) *fast.VMState {
		st := fast.NewVMState()
		st.Step = step
		return st
	}

	t.Run("default never matches", func(t *testing.T) {
		m := new(StepMatcherFlag).Matcher()
		require.False(t, m(stateAt(0)))
		require.False(t, m(stateAt(1234)))
	})

	t.Run("never", func(t *testing.T) {
		m := MustStepMatcherFlag("never").Matcher()
		require.False(t, m(stateAt(0)))
	})

	t.Run("always", func(t *testing.T) {
		m := MustStepMatcherFlag("always").Matcher()
		require.True(t, m(stateAt(0)))
		require.True(t, m(stateAt(77)))
	})

	t.Run("exact step", func(t *testing.T) {
		m := MustStepMatcherFlag("=123").Matcher()
		require.False(t, m(stateAt(122)))
		require.True(t, m(stateAt(123)))
		require.False(t, m(stateAt(124)))
	})

	t.Run("interval", func(t *testing.T) {
		m := MustStepMatcherFlag("%100").Matcher()
		require.True(t, m(stateAt(0)))
		require.False(t, m(stateAt(50)))
		require.True(t, m(stateAt(200)))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		var f StepMatcherFlag
		require.Error(t, f.Set("sometimes"))
		require.Error(t, f.Set("=notanumber"))
	})

	t.Run("clone", func(t *testing.T) {
		f := MustStepMatcherFlag("=5")
		c := f.Clone().(*StepMatcherFlag)
		require.Equal(t, f.String(), c.String())
		require.True(t, c.Matcher()(stateAt(5)))
	})
}
