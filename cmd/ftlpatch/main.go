// Command ftlpatch is a thin CLI wiring patchpipeline against a zip-backed
// archive and a directory of mod files. It exists to exercise the pipeline
// end-to-end against real files; the actual container format
// is an external collaborator this binary does not attempt to reproduce.
//
// Grounded on example/main.go's thin-main-wiring-a-handler shape: parse
// arguments, build collaborators, hand them to the library, log outcomes.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ftlman-go/modpatch/config"
	"github.com/ftlman-go/modpatch/patchpipeline"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	os.Exit(run(logger, os.Args[1:]))
}

func run(logger *slog.Logger, args []string) int {
	if len(args) < 1 {
		printUsage()
		return 2
	}

	var err error
	switch args[0] {
	case "patch":
		err = runPatch(logger, args[1:])
	case "extract":
		err = runExtract(logger, args[1:])
	default:
		printUsage()
		return 2
	}

	if err != nil {
		printErrorChain(err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  ftlpatch patch <data-dir> <mod-path>...")
	fmt.Fprintln(os.Stderr, "  ftlpatch extract <out-dir> <archive>")
}

func runPatch(logger *slog.Logger, args []string) error {
	if len(args) < 2 {
		printUsage()
		return errors.New("ftlpatch: patch requires a data directory and at least one mod path")
	}
	archivePath := args[0]
	modPaths := args[1:]

	archive, err := openZipArchive(archivePath)
	if err != nil {
		return fmt.Errorf("ftlpatch: %w", err)
	}

	mods := make([]patchpipeline.ModSource, 0, len(modPaths))
	for _, mp := range modPaths {
		mods = append(mods, newDirModSource(mp))
	}

	p := &patchpipeline.Pipeline{}
	err = p.Apply(archive, mods, func(ev patchpipeline.ProgressEvent) {
		switch ev.Stage {
		case patchpipeline.StagePreparing:
			logger.Info("preparing")
		case patchpipeline.StageMod:
			logger.Info("applying mod entry", "mod", ev.ModName, "file", ev.FileIndex+1, "of", ev.FilesTotal)
		case patchpipeline.StageRepacking:
			logger.Info("repacking archive")
		}
	})
	if err != nil {
		return fmt.Errorf("ftlpatch: apply mods: %w", err)
	}

	if err := saveModOrder(modPaths); err != nil {
		// Persisted state is a convenience for the next run, not required
		// for this one to have succeeded.
		logger.Warn("failed to persist mod order", "error", err)
	}

	logger.Info("patch complete", "archive", archivePath, "mods", len(mods))
	return nil
}

// saveModOrder records the mod paths applied in this run, in order, as the
// remembered mod list.
func saveModOrder(modPaths []string) error {
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.ModOrder = make([]config.ModOrderEntry, len(modPaths))
	for i, mp := range modPaths {
		c.ModOrder[i] = config.ModOrderEntry{Name: filepath.Base(mp), Enabled: true}
	}
	if err := config.Save(c); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func runExtract(logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		printUsage()
		return errors.New("ftlpatch: extract requires an output directory and an archive path")
	}
	outDir, archivePath := args[0], args[1]

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("ftlpatch: create output directory: %w", err)
	}

	archive, err := openZipArchive(archivePath)
	if err != nil {
		return fmt.Errorf("ftlpatch: %w", err)
	}

	if err := archive.extractTo(outDir); err != nil {
		return fmt.Errorf("ftlpatch: extract: %w", err)
	}

	logger.Info("extract complete", "archive", archivePath, "entries", len(archive.Paths()), "out", outDir)
	return nil
}

// printErrorChain prints the full wrapped message, then the innermost cause
// on its own line so a CLI user sees the root failure without having to read
// through every wrapper's prose (errhandler.go's RootCause treatment).
func printErrorChain(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)

	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	if root != err {
		fmt.Fprintln(os.Stderr, "root cause:", root)
	}
}
