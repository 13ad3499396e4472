package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftlman-go/modpatch/patchpipeline"
)

// zipArchive adapts a zip.Writer/Reader pair to patchpipeline.Archive. The
// real container format is an external collaborator this binary does not
// attempt to reproduce; this is a runnable stand-in.
type zipArchive struct {
	path    string
	entries map[string][]byte
	order   []string
}

func openZipArchive(path string) (*zipArchive, error) {
	a := &zipArchive{path: path, entries: map[string][]byte{}}
	r, err := zip.OpenReader(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
		}
		a.entries[f.Name] = data
		a.order = append(a.order, f.Name)
	}
	return a, nil
}

func (a *zipArchive) Paths() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

func (a *zipArchive) Open(name string) (io.ReadCloser, error) {
	b, ok := a.entries[name]
	if !ok {
		return nil, patchpipeline.ErrEntryNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

type zipArchiveWriter struct {
	a    *zipArchive
	name string
	buf  []byte
}

func (w *zipArchiveWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *zipArchiveWriter) Close() error {
	if _, exists := w.a.entries[w.name]; !exists {
		w.a.order = append(w.a.order, w.name)
	}
	w.a.entries[w.name] = w.buf
	return nil
}

func (a *zipArchive) Insert(name string, compress bool) (io.WriteCloser, error) {
	return &zipArchiveWriter{a: a, name: name}, nil
}

func (a *zipArchive) Remove(name string) error {
	if _, ok := a.entries[name]; !ok {
		return patchpipeline.ErrEntryNotFound
	}
	delete(a.entries, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return nil
}

func (a *zipArchive) Contains(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// Repack is a no-op for the in-memory zipArchive: entries are already
// deduplicated by map key, so there is no stale-entry compaction to do
// until Flush rewrites the zip file.
func (a *zipArchive) Repack() error { return nil }

func (a *zipArchive) Flush() error {
	f, err := os.Create(a.path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", a.path, err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range a.order {
		fw, err := w.Create(name)
		if err != nil {
			return fmt.Errorf("write archive entry %s: %w", name, err)
		}
		if _, err := fw.Write(a.entries[name]); err != nil {
			return fmt.Errorf("write archive entry %s: %w", name, err)
		}
	}
	return w.Close()
}

// extractTo dumps every archive entry under dir, preserving relative paths.
func (a *zipArchive) extractTo(dir string) error {
	for _, name := range a.order {
		dst := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(dst, a.entries[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return nil
}
