package cmd

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkmips-labs/obelisc/mipsgo/fast"
)

func TestGuard(t *testing.T) {
	stepErr := errors.New("step failed")
	failing := func(proof bool) (*fast.StepWitness, error) {
		return nil, stepErr
	}

	t.Run("server alive", func(t *testing.T) {
		// the server has not been waited on yet, so ProcessState is nil
		cmd := exec.Command("cat")
		guarded := Guard(cmd, failing)
		wit, err := guarded(false)
		require.Nil(t, wit)
		require.ErrorIs(t, err, stepErr, "step error passes through unchanged")
		require.NotContains(t, err.Error(), "pre-image server", "no server exit to report")
	})

	t.Run("server exited", func(t *testing.T) {
		cmd := exec.Command("sh", "-c", "exit 3")
		_ = cmd.Run()
		require.NotNil(t, cmd.ProcessState)

		guarded := Guard(cmd, failing)
		_, err := guarded(false)
		require.ErrorIs(t, err, stepErr, "original step error stays unwrappable")
		require.ErrorContains(t, err, "pre-image server exited with code 3")
	})

	t.Run("success passes through", func(t *testing.T) {
		cmd := exec.Command("cat")
		want := &fast.StepWitness{}
		guarded := Guard(cmd, func(proof bool) (*fast.StepWitness, error) {
			return want, nil
		})
		wit, err := guarded(false)
		require.NoError(t, err)
		require.Same(t, want, wit)
	})
}
