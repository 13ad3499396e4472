package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ftlman-go/modpatch/patchpipeline"
)

// dirModSource is a ModSource backed by a plain directory of files, one per
// archive entry path, standing in for the real mod distribution format.
type dirModSource struct {
	root string
}

func newDirModSource(root string) *dirModSource {
	return &dirModSource{root: root}
}

func (d *dirModSource) Filename() string { return filepath.Base(d.root) }

func (d *dirModSource) Paths() ([]string, error) {
	var out []string
	err := filepath.WalkDir(d.root, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

func (d *dirModSource) Open() (patchpipeline.ModHandle, error) {
	return &dirModHandle{root: d.root}, nil
}

type dirModHandle struct {
	root string
}

func (h *dirModHandle) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(h.root, filepath.FromSlash(name)))
}

func (h *dirModHandle) OpenNFAware(name string) (io.ReadCloser, error) {
	f, err := h.Open(name)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return f, err
}
