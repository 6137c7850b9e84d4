package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/zkmips-labs/obelisc/mipsgo/preimage"
)

var ConformanceDataFlag = &cli.StringFlag{
	Name:     "data",
	Usage:    "hex-encoded test data to round-trip through the pre-image server",
	Value:    "0xdeadbeef",
	Required: false,
}

// Conformance spawns a pre-image server and performs a single
// hinted keccak256 pre-image round-trip against it, verifying
// that the returned value matches the key.
func Conformance(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LevelInfo)

	data, err := hexutil.Decode(ctx.String(ConformanceDataFlag.Name))
	if err != nil {
		return fmt.Errorf("invalid test data: %w", err)
	}

	args := ctx.Args().Slice()
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("no pre-image server command specified, pass it after '--'")
	}

	po, err := NewProcessPreimageOracle(args[0], args[1:])
	if err != nil {
		return fmt.Errorf("failed to create pre-image oracle process: %w", err)
	}
	if err := po.Start(); err != nil {
		return fmt.Errorf("failed to start pre-image oracle server: %w", err)
	}
	defer func() {
		if err := po.Close(); err != nil {
			l.Error("failed to close pre-image server", "err", err)
		}
	}()

	key := preimage.Keccak256Key(crypto.Keccak256Hash(data))
	k := key.PreimageKey()
	po.Hint(data)
	value, err := po.GetPreimage(k)
	if err != nil {
		return fmt.Errorf("pre-image request failed: %w", err)
	}
	if !bytes.Equal(value, data) {
		return fmt.Errorf("pre-image server returned %x, expected %x", value, data)
	}
	l.Info("pre-image server conformance check passed", "key", hexutil.Bytes(k[:]), "size", len(value))
	return nil
}

var ConformanceCommand = &cli.Command{
	Name:        "conformance",
	Usage:       "Check a pre-image server implementation with a single keccak256 round-trip.",
	Description: "Check a pre-image server implementation: hint the test data, request it by keccak256 key, and verify the response.",
	Action:      Conformance,
	Flags: []cli.Flag{
		ConformanceDataFlag,
	},
}
