package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/infinitemap/pxvm/codebook"
)

func outWriter(ctx *cli.Context) (*os.File, func(), error) {
	path := ctx.Path(CodebookOutFlag.Name)
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output %q: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

// CodebookImport loads a manifest with the documented degradation rules
// (malformed payloads register empty, absent ids are minted) and reports what
// was accepted.
func CodebookImport(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LevelInfo)
	book, err := loadCodebook(ctx.Path(CodebookManifestFlag.Name), l)
	if err != nil {
		return err
	}
	img := book.Flatten()
	l.Info("manifest imported",
		"version", book.Version,
		"tokens", book.Len(),
		"words", len(img.Instructions),
		"digest", img.Digest())
	return nil
}

func CodebookInfo(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LevelInfo)
	book, err := loadCodebook(ctx.Path(CodebookManifestFlag.Name), l)
	if err != nil {
		return err
	}
	fmt.Printf("version:    %s\n", book.Version)
	fmt.Printf("created_at: %s\n", book.CreatedAt)
	fmt.Printf("tokens:     %d\n", book.Len())
	for _, id := range book.IDs() {
		t, _ := book.Lookup(id)
		cat := book.CategoryOf(t)
		fmt.Printf("  %#06x %-24s %-12s words=%-4d complexity=%.2f stability=%.2f freq=%d\n",
			t.ID, t.Name, cat.Name, len(t.Instructions), t.Complexity, t.Stability, t.Frequency)
	}
	return nil
}

func CodebookFlatten(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LevelInfo)
	book, err := loadCodebook(ctx.Path(CodebookManifestFlag.Name), l)
	if err != nil {
		return err
	}
	img := book.Flatten()
	fmt.Printf("digest: %s\n", img.Digest())
	fmt.Printf("words:  %d\n", len(img.Instructions))
	ids := make([]uint32, 0, len(img.Offsets))
	for id := range img.Offsets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		span := img.Offsets[id]
		fmt.Printf("  %#06x offset=%-6d length=%d\n", id, span.Offset, span.Length)
	}
	return nil
}

// CodebookExport re-imports a manifest and writes it back out, normalizing
// defaults, category references and hex payload quirks.
func CodebookExport(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LevelInfo)
	book, err := loadCodebook(ctx.Path(CodebookManifestFlag.Name), l)
	if err != nil {
		return err
	}
	w, done, err := outWriter(ctx)
	if err != nil {
		return err
	}
	defer done()
	return codebook.WriteManifest(w, book.Export())
}

var CodebookCommand = &cli.Command{
	Name:  "codebook",
	Usage: "Inspect and transform codebook manifests",
	Subcommands: []*cli.Command{
		{
			Name:   "import",
			Usage:  "Load a manifest, applying defaults and id minting, and report what registered",
			Action: CodebookImport,
			Flags:  []cli.Flag{CodebookManifestFlag},
		},
		{
			Name:   "info",
			Usage:  "List tokens and category metadata",
			Action: CodebookInfo,
			Flags:  []cli.Flag{CodebookManifestFlag},
		},
		{
			Name:   "flatten",
			Usage:  "Build the execution image and print its digest and offsets",
			Action: CodebookFlatten,
			Flags:  []cli.Flag{CodebookManifestFlag},
		},
		{
			Name:   "export",
			Usage:  "Round-trip a manifest, normalizing optional fields",
			Action: CodebookExport,
			Flags:  []cli.Flag{CodebookManifestFlag, CodebookOutFlag},
		},
	},
}
