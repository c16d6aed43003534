package cmd

import "github.com/urfave/cli/v2"

var (
	RunInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "Path to a raw program listing (hex words, one or more per line)",
		TakesFile: true,
	}
	RunTokensFlag = &cli.StringFlag{
		Name:  "tokens",
		Usage: "Comma-separated token ids to expand and execute (requires --codebook)",
	}
	RunCodebookFlag = &cli.PathFlag{
		Name:      "codebook",
		Usage:     "Path to a codebook manifest (JSON)",
		TakesFile: true,
	}
	RunConfigFlag = &cli.PathFlag{
		Name:      "config",
		Usage:     "Path to a session config (YAML); flags override file values",
		TakesFile: true,
	}
	RunLanesFlag = &cli.IntFlag{
		Name:  "lanes",
		Usage: "Number of parallel lanes",
	}
	RunMaxStepsFlag = &cli.IntFlag{
		Name:  "max-steps",
		Usage: "Per-lane instruction budget per burst",
	}
	RunBurstsFlag = &cli.IntFlag{
		Name:  "bursts",
		Usage: "Maximum number of bursts before giving up",
		Value: 64,
	}
	RunFaultUnknownFlag = &cli.BoolFlag{
		Name:  "fault-unknown",
		Usage: "Fail on unknown opcodes instead of treating them as no-ops",
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}

	CodebookManifestFlag = &cli.PathFlag{
		Name:      "manifest",
		Usage:     "Path to the codebook manifest (JSON)",
		Required:  true,
		TakesFile: true,
	}
	CodebookOutFlag = &cli.PathFlag{
		Name:  "out",
		Usage: "Output path, or - for stdout",
		Value: "-",
	}
)
