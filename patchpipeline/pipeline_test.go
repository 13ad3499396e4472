package patchpipeline_test

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/ftlman-go/modpatch/patchpipeline"
)

// memArchive is a minimal in-memory Archive good enough to drive Pipeline.Apply in tests; a real
// implementation would wrap the actual container format.
type memArchive struct {
	files    map[string][]byte
	repacked bool
	flushed  bool
}

func newMemArchive() *memArchive { return &memArchive{files: map[string][]byte{}} }

func (a *memArchive) Paths() []string {
	var out []string
	for k := range a.files {
		out = append(out, k)
	}
	return out
}

func (a *memArchive) Open(name string) (io.ReadCloser, error) {
	b, ok := a.files[name]
	if !ok {
		return nil, patchpipeline.ErrEntryNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type memWriter struct {
	buf  bytes.Buffer
	a    *memArchive
	name string
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *memWriter) Close() error {
	w.a.files[w.name] = w.buf.Bytes()
	return nil
}

func (a *memArchive) Insert(name string, compress bool) (io.WriteCloser, error) {
	return &memWriter{a: a, name: name}, nil
}

func (a *memArchive) Remove(name string) error {
	delete(a.files, name)
	return nil
}

func (a *memArchive) Contains(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *memArchive) Repack() error { a.repacked = true; return nil }
func (a *memArchive) Flush() error  { a.flushed = true; return nil }

// memModHandle/memModSource implement the ModSource collaborator over an in-memory map of entries.
type memModHandle struct {
	entries map[string][]byte
}

func (h *memModHandle) Open(name string) (io.ReadCloser, error) {
	b, ok := h.entries[name]
	if !ok {
		return nil, fmt.Errorf("mod entry not found: %s", name)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (h *memModHandle) OpenNFAware(name string) (io.ReadCloser, error) {
	b, ok := h.entries[name]
	if !ok {
		return nil, nil
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type memModSource struct {
	name    string
	entries map[string]string
}

func (m *memModSource) Filename() string { return m.name }

func (m *memModSource) Paths() ([]string, error) {
	var out []string
	for k := range m.entries {
		out = append(out, k)
	}
	return out, nil
}

func (m *memModSource) Open() (patchpipeline.ModHandle, error) {
	entries := make(map[string][]byte, len(m.entries))
	for k, v := range m.entries {
		entries[k] = []byte(v)
	}
	return &memModHandle{entries: entries}, nil
}

func TestApplyBinaryOverwrite(t *testing.T) {
	archive := newMemArchive()
	archive.files["data/blueprints.xml"] = []byte("old")

	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"data/blueprints.xml": "new",
	}}

	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := string(archive.files["data/blueprints.xml"]); got != "new" {
		t.Fatalf("expected overwrite to replace content, got %q", got)
	}
	if !archive.repacked || !archive.flushed {
		t.Fatalf("expected Repack and Flush to be invoked")
	}
}

func TestApplyModAppendixSkipped(t *testing.T) {
	archive := newMemArchive()
	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"mod-appendix/readme.txt": "metadata only",
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if archive.Contains("mod-appendix/readme.txt") {
		t.Fatalf("mod-appendix entries must never be installed")
	}
}

func TestApplyRawAppend(t *testing.T) {
	archive := newMemArchive()
	archive.files["data/events.xml"] = []byte("<events>old</events>")

	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"data/events.xml.rawappend": "<events>new</events>",
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := "<events>old</events><events>new</events>"
	if got := string(archive.files["data/events.xml"]); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyXMLAppendPatchesTarget(t *testing.T) {
	archive := newMemArchive()
	archive.files["data/blueprints.xml"] = []byte("<FTL><entry name=\"a\" hp=\"1\"/></FTL>")

	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"data/blueprints.xml.append": `<mod:findName name="a"><mod:setAttributes hp="5"/></mod:findName>`,
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got := string(archive.files["data/blueprints.xml"])
	if !bytes.Contains([]byte(got), []byte(`hp="5"`)) {
		t.Fatalf("expected patched target to contain hp=\"5\", got %q", got)
	}
	if !bytes.Contains([]byte(got), []byte("<FTL>")) {
		t.Fatalf("expected the FTL wrapper to be restored, got %q", got)
	}
}

func TestApplyXMLAppendDefaultsToEmptyFTL(t *testing.T) {
	archive := newMemArchive()
	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"data/new.xml.append": `<injected/>`,
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got := string(archive.files["data/new.xml"])
	if !bytes.Contains([]byte(got), []byte("<injected")) {
		t.Fatalf("expected injected content in freshly created target, got %q", got)
	}
}

func TestApplyScriptAppendMutatesTarget(t *testing.T) {
	archive := newMemArchive()
	archive.files["data/blueprints.xml"] = []byte("<FTL><root><entry name=\"a\"/></root></FTL>")

	mod := &memModSource{name: "test-mod", entries: map[string]string{
		"data/blueprints.xml.lua": `document.root.FirstElementChild().FirstElementChild().SetAttr("scripted", "true")`,
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	got := string(archive.files["data/blueprints.xml"])
	if !bytes.Contains([]byte(got), []byte(`scripted="true"`)) {
		t.Fatalf("expected script-append to set scripted=true, got %q", got)
	}
}

func TestApplyStrictModeStopsOnEntryError(t *testing.T) {
	archive := newMemArchive()
	mod := &memModSource{name: "bad-mod", entries: map[string]string{
		"data/x.xml.append": `<mod:findName/>`, // missing required name attribute
	}}
	p := &patchpipeline.Pipeline{StrictMode: true}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err == nil {
		t.Fatalf("expected strict mode to surface the per-entry error")
	}
}

func TestApplyNonStrictModeContinuesAfterEntryError(t *testing.T) {
	archive := newMemArchive()
	archive.files["data/ok.xml"] = []byte("ok")
	mod := &memModSource{name: "mixed-mod", entries: map[string]string{
		"data/x.xml.append": `<mod:findName/>`, // fails to parse
		"data/ok.xml":       "overwritten",
	}}
	p := &patchpipeline.Pipeline{}
	if err := p.Apply(archive, []patchpipeline.ModSource{mod}, nil); err != nil {
		t.Fatalf("expected non-strict mode to continue past the entry error, got %v", err)
	}
	if got := string(archive.files["data/ok.xml"]); got != "overwritten" {
		t.Fatalf("expected the other entry to still be applied, got %q", got)
	}
}

func TestApplyReportsProgress(t *testing.T) {
	archive := newMemArchive()
	mod := &memModSource{name: "progress-mod", entries: map[string]string{
		"a.bin": "1",
		"b.bin": "2",
	}}
	var stages []patchpipeline.Stage
	p := &patchpipeline.Pipeline{}
	err := p.Apply(archive, []patchpipeline.ModSource{mod}, func(ev patchpipeline.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(stages) < 4 {
		t.Fatalf("expected at least Preparing + 2 Mod + Repacking stages, got %v", stages)
	}
	if stages[0] != patchpipeline.StagePreparing {
		t.Fatalf("expected first stage to be Preparing, got %v", stages[0])
	}
	if stages[len(stages)-1] != patchpipeline.StageRepacking {
		t.Fatalf("expected last stage to be Repacking, got %v", stages[len(stages)-1])
	}
}
