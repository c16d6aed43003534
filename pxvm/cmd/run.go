package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/infinitemap/pxvm/codebook"
	"github.com/infinitemap/pxvm/session"
)

func loadCodebook(path string, l log.Logger) (*codebook.Codebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open codebook manifest: %w", err)
	}
	defer f.Close()
	m, err := codebook.ReadManifest(f)
	if err != nil {
		return nil, err
	}
	book := codebook.New(l)
	book.Import(m)
	return book, nil
}

func parseTokenList(s string) ([]uint32, error) {
	var ids []uint32
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(strings.TrimPrefix(field, "0x"))
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 16, 24)
		if err != nil {
			return nil, fmt.Errorf("bad token id %q: %w", field, err)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	l := Logger(os.Stderr, log.LevelInfo)

	cfg := session.DefaultConfig()
	if path := ctx.Path(RunConfigFlag.Name); path != "" {
		c, err := session.LoadConfig(path)
		if err != nil {
			return err
		}
		cfg = c
	}
	if ctx.IsSet(RunLanesFlag.Name) {
		cfg.Lanes = ctx.Int(RunLanesFlag.Name)
	}
	if ctx.IsSet(RunMaxStepsFlag.Name) {
		cfg.MaxSteps = ctx.Int(RunMaxStepsFlag.Name)
	}
	if ctx.Bool(RunFaultUnknownFlag.Name) {
		cfg.FaultOnUnknown = true
	}

	var book *codebook.Codebook
	if path := ctx.Path(RunCodebookFlag.Name); path != "" {
		b, err := loadCodebook(path, l)
		if err != nil {
			return err
		}
		book = b
	}

	sess, err := session.New(cfg, book, l)
	if err != nil {
		return err
	}

	switch {
	case ctx.String(RunTokensFlag.Name) != "":
		ids, err := parseTokenList(ctx.String(RunTokensFlag.Name))
		if err != nil {
			return err
		}
		if book == nil {
			return fmt.Errorf("--tokens requires --codebook")
		}
		if err := sess.LoadTokens(ids); err != nil {
			return err
		}
	case ctx.Path(RunInputFlag.Name) != "":
		f, err := os.Open(ctx.Path(RunInputFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to open program listing: %w", err)
		}
		words, perr := session.ParseListing(f)
		f.Close()
		if perr != nil {
			return perr
		}
		if err := sess.LoadProgram(words); err != nil {
			return err
		}
	default:
		return fmt.Errorf("need --input or --tokens")
	}

	start := time.Now()
	bursts := ctx.Int(RunBurstsFlag.Name)
	for i := 0; i < bursts && !sess.Done(); i++ {
		if err := ctx.Context.Err(); err != nil {
			return err
		}
		if err := sess.Execute(ctx.Context, cfg.MaxSteps); err != nil {
			return err
		}
	}
	l.Info("execution finished",
		"done", sess.Done(),
		"calls", len(sess.Calls()),
		"duration", time.Since(start))

	for i, st := range sess.Lanes() {
		l.Info("lane state", "lane", i,
			"pc", HexU32(st.PC), "satp", HexU32(st.Satp()), "halted", st.Halted)
		fmt.Println(sess.DumpState(i))
		if out := sess.Output(i); len(out) > 0 {
			w := &LoggingWriter{Name: strconv.Itoa(i), Log: l}
			_, _ = w.Write(out)
		}
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a program across parallel emulated lanes",
	Description: "Loads a raw hex listing or a token sequence, executes bursts until every lane halts, and dumps lane state",
	Action:      Run,
	Flags: []cli.Flag{
		RunInputFlag,
		RunTokensFlag,
		RunCodebookFlag,
		RunConfigFlag,
		RunLanesFlag,
		RunMaxStepsFlag,
		RunBurstsFlag,
		RunFaultUnknownFlag,
		RunPProfCPU,
	},
}
