package cmd

import (
	"github.com/urfave/cli/v2"
)

var (
	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON state. Stdin if left empty.",
		TakesFile: true,
		Value:     "state.json",
		Required:  true,
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path of output JSON state. Not written if empty, use - to write to Stdout.",
		TakesFile: true,
		Value:     "out.json",
		Required:  false,
	}
	RunProofAtFlag = &cli.GenericFlag{
		Name:     "proof-at",
		Usage:    "step pattern to output proof at: " + patternHelp,
		Value:    new(StepMatcherFlag),
		Required: false,
	}
	RunProofFmtFlag = &cli.StringFlag{
		Name:     "proof-fmt",
		Usage:    "format for proof data output file names. Proof data is written to stdout if -.",
		Value:    "proof-%d.json",
		Required: false,
	}
	RunSnapshotAtFlag = &cli.GenericFlag{
		Name:     "snapshot-at",
		Usage:    "step pattern to output snapshots at: " + patternHelp,
		Value:    new(StepMatcherFlag),
		Required: false,
	}
	RunSnapshotFmtFlag = &cli.StringFlag{
		Name:     "snapshot-fmt",
		Usage:    "format for snapshot output file names.",
		Value:    "state-%d.json",
		Required: false,
	}
	RunStopAtFlag = &cli.GenericFlag{
		Name:     "stop-at",
		Usage:    "step pattern to stop at: " + patternHelp,
		Value:    new(StepMatcherFlag),
		Required: false,
	}
	RunStopAtPreimageKeyFlag = &cli.StringFlag{
		Name:     "stop-at-preimage-key",
		Usage:    "stop at the first step that requests the given preimage key",
		Required: false,
	}
	RunTraceFlag = &cli.PathFlag{
		Name:      "trace",
		Usage:     "path to write the execution trace rows to. Not written if empty.",
		TakesFile: true,
		Required:  false,
	}
	RunInfoAtFlag = &cli.GenericFlag{
		Name:     "info-at",
		Usage:    "step pattern to print info at: " + patternHelp,
		Value:    MustStepMatcherFlag("%100000"),
		Required: false,
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of input JSON state.",
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write witness to. Not written if empty.",
		TakesFile: true,
		Required:  false,
	}
)

const patternHelp = "'never' (default), 'always', '=123' at exact step, '%123' for every 123 steps"

var RunFlags = []cli.Flag{
	RunInputFlag,
	RunOutputFlag,
	RunProofAtFlag,
	RunProofFmtFlag,
	RunSnapshotAtFlag,
	RunSnapshotFmtFlag,
	RunStopAtFlag,
	RunStopAtPreimageKeyFlag,
	RunTraceFlag,
	RunInfoAtFlag,
	RunPProfCPU,
}

var WitnessFlags = []cli.Flag{
	WitnessInputFlag,
	WitnessOutputFlag,
}
