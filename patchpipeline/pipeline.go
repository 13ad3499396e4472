// Package patchpipeline implements the patch pipeline: it
// routes each mod entry to raw replace, XML append, or script append based
// on its path, and reports progress through a stage callback.
//
// Grounded on pages.go's Handler.handleRequest/servePage orchestration
// shape: resolve a path, dispatch on its kind, invoke the matching
// subsystem, and report outcomes through a logger/callback rather than by
// returning a giant aggregate result.
package patchpipeline

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ftlman-go/modpatch/domarena"
	"github.com/ftlman-go/modpatch/modappend"
	"github.com/ftlman-go/modpatch/script"
	"github.com/ftlman-go/modpatch/xmlreader"
	"github.com/ftlman-go/modpatch/xmltree"
	"github.com/ftlman-go/modpatch/xmlwriter"
)

// Archive is the opaque container collaborator.
type Archive interface {
	Paths() []string
	Open(name string) (io.ReadCloser, error)
	Insert(name string, compress bool) (io.WriteCloser, error)
	Remove(name string) error
	Contains(name string) bool
	Repack() error
	Flush() error
}

// ModHandle is an opened ModSource: a source of named byte streams.
type ModHandle interface {
	Open(name string) (io.ReadCloser, error)
	// OpenNFAware returns (nil, nil) when name is absent, instead of an
	// error, so callers can distinguish "not found" from I/O failure.
	OpenNFAware(name string) (io.ReadCloser, error)
}

// ModSource is the mod collaborator.
type ModSource interface {
	Filename() string
	Paths() ([]string, error)
	Open() (ModHandle, error)
}

// Stage discriminates a ProgressEvent.
type Stage int

const (
	StageDownloadingCompanion Stage = iota
	StageInstallingCompanion
	StagePreparing
	StageMod
	StageRepacking
)

// ProgressEvent is one progress callback invocation. Fields not relevant to
// Stage are left zero.
type ProgressEvent struct {
	Stage Stage

	// StageDownloadingCompanion
	CompanionVersion    string
	DownloadProgress    float64 // [0,1]; negative means "indeterminate"
	HasDownloadProgress bool

	// StageMod
	ModName    string
	FileIndex  int
	FilesTotal int
}

// Progress is invoked synchronously from Apply's goroutine; it never runs
// concurrently with itself.
type Progress func(ProgressEvent)

var ftlOpenTag = regexp.MustCompile(`(?i)^\s*<\?xml[^>]*\?>\s*`)
var ftlWrapper = regexp.MustCompile(`(?is)^\s*<FTL\s*>(.*)</FTL\s*>\s*$`)
var scriptAppendPath = regexp.MustCompile(`^(.*\.xml)\.[A-Za-z0-9]+$`)

// Pipeline applies an ordered list of mods to a base archive.
type Pipeline struct {
	// StrictMode stops at the first per-entry patch error instead of
	// continuing with the remaining entries.
	StrictMode bool
}

// Apply runs mods, in order, against archive, reporting progress through
// progress (which may be nil).
func (p *Pipeline) Apply(archive Archive, mods []ModSource, progress Progress) error {
	report := progress
	if report == nil {
		report = func(ProgressEvent) {}
	}

	report(ProgressEvent{Stage: StagePreparing})

	for _, mod := range mods {
		handle, err := mod.Open()
		if err != nil {
			return fmt.Errorf("patchpipeline: open mod %s: %w", mod.Filename(), err)
		}
		paths, err := mod.Paths()
		if err != nil {
			return fmt.Errorf("patchpipeline: list entries of mod %s: %w", mod.Filename(), err)
		}

		for idx, path := range paths {
			report(ProgressEvent{Stage: StageMod, ModName: mod.Filename(), FileIndex: idx, FilesTotal: len(paths)})

			if err := p.applyEntry(archive, handle, path); err != nil {
				wrapped := fmt.Errorf("patchpipeline: mod %s, entry %s: %w", mod.Filename(), path, err)
				if p.StrictMode {
					return wrapped
				}
				// Outside strict mode the failed entry is skipped and Apply
				// goes on with the next one. The error is discarded: Apply's
				// return value does not report it.
				continue
			}
		}
	}

	report(ProgressEvent{Stage: StageRepacking})
	if err := archive.Repack(); err != nil {
		return fmt.Errorf("patchpipeline: repack: %w", err)
	}
	return archive.Flush()
}

func (p *Pipeline) applyEntry(archive Archive, handle ModHandle, path string) error {
	switch {
	case strings.HasPrefix(path, "mod-appendix"):
		return nil
	case strings.HasSuffix(path, ".xml.append") || strings.HasSuffix(path, ".append.xml"):
		target := strings.TrimSuffix(strings.TrimSuffix(path, ".xml.append"), ".append.xml") + ".xml"
		return applyXMLAppend(archive, handle, path, target)
	case strings.HasSuffix(path, ".xml.rawappend") || strings.HasSuffix(path, ".rawappend.xml"):
		target := strings.TrimSuffix(strings.TrimSuffix(path, ".xml.rawappend"), ".rawappend.xml") + ".xml"
		return applyRawAppend(archive, handle, path, target)
	default:
		if m := scriptAppendPath.FindStringSubmatch(path); m != nil {
			return applyScriptAppend(archive, handle, path, m[1])
		}
		return applyOverwrite(archive, handle, path)
	}
}

func readAll(r io.ReadCloser, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func applyOverwrite(archive Archive, handle ModHandle, path string) error {
	src, err := handle.Open(path)
	if err != nil {
		return fmt.Errorf("open mod entry: %w", err)
	}
	defer src.Close()

	if archive.Contains(path) {
		if err := archive.Remove(path); err != nil {
			return fmt.Errorf("remove existing archive entry: %w", err)
		}
	}
	w, err := archive.Insert(path, true)
	if err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}
	defer w.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write archive entry: %w", err)
	}
	return nil
}

func applyRawAppend(archive Archive, handle ModHandle, modPath, targetPath string) error {
	addition, err := readAll(handle.Open(modPath))
	if err != nil {
		return fmt.Errorf("open mod entry: %w", err)
	}

	existing := ""
	if r, err := archive.Open(targetPath); err == nil {
		existing, err = readAll(r, nil)
		if err != nil {
			return fmt.Errorf("read existing target: %w", err)
		}
	}

	return writeArchiveString(archive, targetPath, existing+addition)
}

func applyXMLAppend(archive Archive, handle ModHandle, modPath, targetPath string) error {
	scriptSrc, err := readAll(handle.Open(modPath))
	if err != nil {
		return fmt.Errorf("open mod entry: %w", err)
	}

	existing := "<FTL></FTL>"
	if r, err := archive.Open(targetPath); err == nil {
		existing, err = readAll(r, nil)
		if err != nil {
			return fmt.Errorf("read existing target: %w", err)
		}
	}

	body, hadFTL := stripFTLWrapper(existing)

	r := xmlreader.New(body, xmlreader.Options{
		AllowTopLevelText:         true,
		AllowUnmatchedClosingTags: true,
		AllowUnclosedTags:         true,
	})
	root, err := xmltree.NewBuilder().Build(r, xmlreader.Name{Local: "mod-patch-root"}, nil)
	if err != nil {
		return fmt.Errorf("parse existing target: %w", err)
	}

	ast, diags := modappend.Parse(scriptSrc)
	if diags.HasErrors() {
		return fmt.Errorf("parse append script: %s", diags.Messages[0].Error())
	}
	if err := modappend.Eval(root, ast); err != nil {
		return fmt.Errorf("apply append script: %w", err)
	}

	var out strings.Builder
	w := xmlwriter.New(&out)
	if err := xmltree.Emit(w, root); err != nil {
		return fmt.Errorf("serialize patched target: %w", err)
	}
	if err := w.Finish(); err != nil {
		return fmt.Errorf("serialize patched target: %w", err)
	}

	result := out.String()
	if hadFTL {
		result = "<FTL>" + result + "</FTL>"
	}
	return writeArchiveString(archive, targetPath, result)
}

func applyScriptAppend(archive Archive, handle ModHandle, modPath, targetPath string) error {
	code, err := readAll(handle.Open(modPath))
	if err != nil {
		return fmt.Errorf("open mod entry: %w", err)
	}

	existing := "<FTL></FTL>"
	if r, err := archive.Open(targetPath); err == nil {
		existing, err = readAll(r, nil)
		if err != nil {
			return fmt.Errorf("read existing target: %w", err)
		}
	}
	body, hadFTL := stripFTLWrapper(existing)

	arena := domarena.New()
	r := xmlreader.New(body, xmlreader.Options{AllowTopLevelText: true, AllowUnclosedTags: true})
	root, err := domarena.NewBuilder(arena).Build(r, xmlreader.Name{Local: "FTL"}, nil)
	if err != nil {
		return fmt.Errorf("parse existing target: %w", err)
	}

	if err := script.Run(arena, root, code, modPath); err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	arena.Sweep(root)

	var out strings.Builder
	w := xmlwriter.New(&out)
	if err := domarena.Emit(w, root); err != nil {
		return fmt.Errorf("serialize patched target: %w", err)
	}
	if err := w.Finish(); err != nil {
		return fmt.Errorf("serialize patched target: %w", err)
	}

	result := out.String()
	if hadFTL {
		result = "<FTL>" + result + "</FTL>"
	}
	return writeArchiveString(archive, targetPath, result)
}

func stripFTLWrapper(s string) (body string, hadFTL bool) {
	s = ftlOpenTag.ReplaceAllString(s, "")
	if m := ftlWrapper.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return s, false
}

func writeArchiveString(archive Archive, path, content string) error {
	if archive.Contains(path) {
		if err := archive.Remove(path); err != nil {
			return fmt.Errorf("remove existing archive entry: %w", err)
		}
	}
	w, err := archive.Insert(path, true)
	if err != nil {
		return fmt.Errorf("insert archive entry: %w", err)
	}
	defer w.Close()
	if _, err := io.WriteString(w, content); err != nil {
		return fmt.Errorf("write archive entry: %w", err)
	}
	return nil
}

// ErrEntryNotFound is returned by reference collaborator implementations
// when an entry is absent, mirroring the "opaque collaborator" contract's
// expected not-found signal.
var ErrEntryNotFound = errors.New("patchpipeline: entry not found")
