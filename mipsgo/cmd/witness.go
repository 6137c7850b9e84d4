package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type WitnessOutput struct {
	Witness   hexutil.Bytes `json:"witness"`
	StateHash [32]byte      `json:"stateHash"`
}

func Witness(ctx *cli.Context) error {
	input := ctx.Path(WitnessInputFlag.Name)
	output := ctx.Path(WitnessOutputFlag.Name)
	state, err := loadVMState(input)
	if err != nil {
		return fmt.Errorf("invalid input state (%v): %w", input, err)
	}
	witness := state.EncodeWitness()
	stateHash, err := witness.StateHash()
	if err != nil {
		return fmt.Errorf("failed to compute witness hash: %w", err)
	}
	witnessOutput := &WitnessOutput{
		Witness:   hexutil.Bytes(witness),
		StateHash: stateHash,
	}
	if err := writeJSON(output, witnessOutput); err != nil {
		return fmt.Errorf("failed to write witness output %w", err)
	}
	fmt.Println(stateHash.Hex())
	return nil
}

var WitnessCommand = &cli.Command{
	Name:        "witness",
	Usage:       "Convert an Obelisc JSON state into a binary witness",
	Description: "Convert an Obelisc JSON state into a binary witness. The statehash is written to stdout",
	Action:      Witness,
	Flags:       WitnessFlags,
}
