// Runtime: the mod.* global table and the script-append entry point. A
// script is a sequence of expr-lang expressions, one per non-blank/non-
// comment line (comments start with "//"), evaluated in order for their
// side effects against a shared environment — see element.go's package doc
// for why this model was chosen over Lua's statement sequence.
//
// Sandboxing here is structural rather than metatable-based: expr-lang has
// no __newindex/__metatable hooks (chtml/expr.go's exprOptions() restricts
// its own expr-lang environment the same way, by disabling specific
// builtins and whitelisting functions), so "dangerous globals" are kept out
// simply by never putting them in the environment map in the first place —
// there is no file I/O, dynamic code loading, or GC control function
// anywhere in this package for a script to reach.
package script

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/ftlman-go/modpatch/domarena"
	"github.com/ftlman-go/modpatch/xmlreader"
)

// Meta exposes read-only information about the currently executing script.
type Meta struct {
	path string
}

// CurrentPath returns the path of the script chunk presently executing.
func (m *Meta) CurrentPath() string { return m.path }

// FSBackend is a virtual filesystem collaborator bound into mod.vfs[name].
// Implementations must refuse paths that resolve outside their own root.
type FSBackend interface {
	Stat(p string) (FileInfo, error)
	Ls(p string) ([]string, error)
	Read(p string) ([]byte, error)
	Write(p string, data []byte) error
}

// FileInfo is the result of a Stat call.
type FileInfo struct {
	Name  string
	IsDir bool
	Size  int64
}

// VFS is the script-visible binding for one FSBackend, reachable as
// mod.vfs[name]. All paths must be absolute (leading '/'); checkPath
// additionally rejects paths that would traverse above the backend's root
// after cleaning, regardless of what the backend itself enforces.
type VFS struct {
	backend FSBackend
}

func checkPath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("script: vfs path %q must be absolute", p)
	}
	// Cleaned as a relative path so that a leading ".." survives Clean.
	clean := path.Clean("." + p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("script: vfs path %q resolves outside its root", p)
	}
	return nil
}

// Stat returns file metadata as a map (name, isDir, size), the shape
// expr-lang scripts can index directly.
func (v *VFS) Stat(p string) (map[string]any, error) {
	if err := checkPath(p); err != nil {
		return nil, err
	}
	fi, err := v.backend.Stat(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"name": fi.Name, "isDir": fi.IsDir, "size": fi.Size}, nil
}

// Ls lists the entries of directory p.
func (v *VFS) Ls(p string) ([]string, error) {
	if err := checkPath(p); err != nil {
		return nil, err
	}
	return v.backend.Ls(p)
}

// Read returns the contents of file p as a string.
func (v *VFS) Read(p string) (string, error) {
	if err := checkPath(p); err != nil {
		return "", err
	}
	b, err := v.backend.Read(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Write overwrites file p with data.
func (v *VFS) Write(p string, data string) error {
	if err := checkPath(p); err != nil {
		return err
	}
	return v.backend.Write(p, []byte(data))
}

// iterTable implements mod.iter: small sequence helpers scripts use when
// expr-lang's own filter/map/reduce pipe operators aren't a natural fit
// (e.g. the paired insertByfind-style before/after slicing a script author
// does by hand).
type iterTable struct{}

func (iterTable) Take(xs []any, n int) []any {
	if n < 0 {
		n = 0
	}
	if n > len(xs) {
		n = len(xs)
	}
	out := make([]any, n)
	copy(out, xs[:n])
	return out
}

func (iterTable) Skip(xs []any, n int) []any {
	if n < 0 {
		n = 0
	}
	if n > len(xs) {
		return []any{}
	}
	out := make([]any, len(xs)-n)
	copy(out, xs[n:])
	return out
}

func (iterTable) Reverse(xs []any) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[len(xs)-1-i] = x
	}
	return out
}

func (iterTable) Enumerate(xs []any) []map[string]any {
	out := make([]map[string]any, len(xs))
	for i, x := range xs {
		out[i] = map[string]any{"index": i, "value": x}
	}
	return out
}

// tableTable implements mod.table, a small Lua-table-library analogue over
// Go slices/maps.
type tableTable struct{}

func (tableTable) Insert(xs []any, v any) []any { return append(xs, v) }

func (tableTable) Remove(xs []any, i int) []any {
	if i < 0 || i >= len(xs) {
		return xs
	}
	out := make([]any, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}

func (tableTable) Concat(xs []any, sep string) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%v", x)
	}
	return strings.Join(parts, sep)
}

func (tableTable) Keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (tableTable) Values(m map[string]any) []any {
	keys := tableTable{}.Keys(m)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func (tableTable) Len(x any) int {
	switch v := x.(type) {
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	case string:
		return len(v)
	default:
		return 0
	}
}

// debugTable implements mod.debug: a cycle-aware pretty-printer, modeled on
// a prior implementation's need (chtml/err.go) to render arbitrary values for
// diagnostics without ever hanging on a cyclic structure. The Arena DOM
// cannot itself form a reference cycle, but script-constructed
// Go maps/slices captured in closures could, so Print still guards against
// one.
type debugTable struct{}

// Print renders v, optionally with ANSI colour.
func (debugTable) Print(v any, color ...bool) string {
	useColor := len(color) > 0 && color[0]
	var b strings.Builder
	printValue(&b, v, 0, useColor, map[any]bool{})
	return b.String()
}

func printValue(b *strings.Builder, v any, depth int, color bool, seen map[any]bool) {
	indent := strings.Repeat("  ", depth)
	switch x := v.(type) {
	case *Element:
		if seen[x] {
			b.WriteString(colorize(color, "31", "<cycle>"))
			return
		}
		seen[x] = true
		b.WriteString(colorize(color, "36", x.String()))
	case map[string]any:
		ptr := any(fmt.Sprintf("%p", x))
		if seen[ptr] {
			b.WriteString(colorize(color, "31", "<cycle>"))
			return
		}
		seen[ptr] = true
		b.WriteString("{\n")
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(indent + "  " + colorize(color, "33", k) + ": ")
			printValue(b, x[k], depth+1, color, seen)
			b.WriteString("\n")
		}
		b.WriteString(indent + "}")
	case []any:
		b.WriteString("[")
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			printValue(b, e, depth+1, color, seen)
		}
		b.WriteString("]")
	case string:
		fmt.Fprintf(b, "%q", x)
	default:
		fmt.Fprintf(b, "%v", x)
	}
}

func colorize(on bool, code, s string) string {
	if !on {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// util implements mod.util: mod.util.eval loads code as a chunk against a
// caller-supplied environment.
type util struct {
	rt *Runtime
}

// EvalOpts configures mod.util.eval.
type EvalOpts struct {
	Env  map[string]any
	Name string
	Path string
}

// Eval runs code against opts.Env (merged over the runtime's own globals).
// opts.Path becomes meta.current_path for the duration of the call and is
// restored afterward, including when code fails.
func (u util) Eval(code string, opts EvalOpts) (any, error) {
	prevPath := u.rt.meta.path
	if opts.Path != "" {
		u.rt.meta.path = opts.Path
	}
	defer func() { u.rt.meta.path = prevPath }()

	env := u.rt.baseEnv()
	for k, v := range opts.Env {
		env[k] = v
	}

	program, err := expr.Compile(code, expr.Env(env))
	if err != nil {
		name := opts.Name
		if name == "" {
			name = opts.Path
		}
		return nil, fmt.Errorf("script: eval %s: %w", name, err)
	}
	return expr.Run(program, env)
}

// xmlTable implements mod.xml: element construction and (de)serialisation.
type xmlTable struct {
	arena *domarena.Arena
}

// Element builds mod.xml.element(prefix?, name, attrs?). expr-lang has no
// optional-parameter syntax, so overload resolution happens on arg count:
// (name), (name, attrs), (prefix, name, attrs).
func (x xmlTable) Element(args ...any) (*Element, error) {
	switch len(args) {
	case 1:
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("script: xml.element: name must be a string")
		}
		return newElement(x.arena, "", name, nil)
	case 2:
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("script: xml.element: name must be a string")
		}
		attrs, _ := args[1].(map[string]any)
		return newElement(x.arena, "", name, attrs)
	case 3:
		prefix, ok1 := args[0].(string)
		name, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("script: xml.element: prefix and name must be strings")
		}
		attrs, _ := args[2].(map[string]any)
		return newElement(x.arena, prefix, name, attrs)
	default:
		return nil, fmt.Errorf("script: xml.element takes 1-3 arguments, got %d", len(args))
	}
}

// Parse parses s and returns its single root element.
func (x xmlTable) Parse(s string) (*Element, error) {
	arena := x.arena
	r := xmlreader.New(s, xmlreader.Options{AllowTopLevelText: true, AllowUnclosedTags: true})
	root, err := domarena.NewBuilder(arena).Build(r, xmlreader.Name{Local: "mod-script-parse-root"}, nil)
	if err != nil {
		return nil, fmt.Errorf("script: xml.parse: %w", err)
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.IsElement() {
			c.Detach()
			return Wrap(arena, c), nil
		}
	}
	return nil, fmt.Errorf("script: xml.parse: no root element in input")
}

// Stringify serialises el with indentation. This intentionally does not reuse
// xmlwriter: xmlwriter never inserts cosmetic text between events (its
// contract is "never buffers beyond the single pending '>'"), and splicing
// indentation whitespace into a script's rendered XML is a scripting
// convenience unrelated to the core reader/writer's byte-exact contract.
func (x xmlTable) Stringify(el *Element) string {
	var b strings.Builder
	stringifyNode(&b, el.node, 0)
	return strings.TrimRight(b.String(), "\n")
}

func stringifyNode(b *strings.Builder, n *domarena.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case domarena.KindText:
		b.WriteString(indent)
		b.WriteString(escapeStringifyText(n.Data))
		b.WriteString("\n")
	case domarena.KindCData:
		b.WriteString(indent)
		b.WriteString("<![CDATA[")
		b.WriteString(n.Data)
		b.WriteString("]]>\n")
	case domarena.KindComment:
		b.WriteString(indent)
		b.WriteString("<!--")
		b.WriteString(n.Data)
		b.WriteString("-->\n")
	case domarena.KindElement:
		b.WriteString(indent)
		b.WriteByte('<')
		b.WriteString(n.Name.String())
		for _, a := range n.Attrs {
			fmt.Fprintf(b, " %s=\"%s\"", a.Key, escapeStringifyAttr(a.Value))
		}
		if n.FirstChild == nil {
			b.WriteString("/>\n")
			return
		}
		b.WriteString(">\n")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			stringifyNode(b, c, depth+1)
		}
		b.WriteString(indent)
		b.WriteString("</")
		b.WriteString(n.Name.String())
		b.WriteString(">\n")
	}
}

func escapeStringifyText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	return strings.ReplaceAll(s, "<", "&lt;")
}

func escapeStringifyAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, "\"", "&quot;")
}

// Runtime holds the compiled global environment for one script-append run.
// It is not safe for concurrent use; a fresh Runtime is built per invocation
// of Run, matching the Arena DOM's own thread-local, one-run-lifetime model.
type Runtime struct {
	arena *domarena.Arena
	meta  *Meta
	vfs   map[string]*VFS
}

// NewRuntime builds a Runtime over arena. vfs maps a name to a backend,
// exposed as mod.vfs[name]; it is nil outside filesystem-scoped runs.
func NewRuntime(arena *domarena.Arena, currentPath string, vfs map[string]FSBackend) *Runtime {
	rt := &Runtime{arena: arena, meta: &Meta{path: currentPath}}
	if vfs != nil {
		rt.vfs = make(map[string]*VFS, len(vfs))
		for name, backend := range vfs {
			rt.vfs[name] = &VFS{backend: backend}
		}
	}
	return rt
}

func (rt *Runtime) modTable() map[string]any {
	m := map[string]any{
		"xml":   xmlTable{arena: rt.arena},
		"util":  util{rt: rt},
		"meta":  rt.meta,
		"debug": debugTable{},
		"iter":  iterTable{},
		"table": tableTable{},
	}
	if rt.vfs != nil {
		vfs := make(map[string]any, len(rt.vfs))
		for k, v := range rt.vfs {
			vfs[k] = v
		}
		m["vfs"] = vfs
	}
	return m
}

// baseEnv builds the environment every top-level statement and every
// mod.util.eval call starts from: the mod table only. Exec adds document on
// top of it; mod.util.eval chunks see only mod plus their own opts.Env.
func (rt *Runtime) baseEnv() map[string]any {
	return map[string]any{
		"mod": rt.modTable(),
	}
}

// Run executes code, a sequence of expr-lang statements (one per
// non-blank/non-comment line), against root exposed as document.root.
// scriptPath is used as meta.current_path.
func Run(arena *domarena.Arena, root *domarena.Node, code, scriptPath string) error {
	rt := NewRuntime(arena, scriptPath, nil)
	return rt.Exec(code, root)
}

// RunWithVFS is Run, additionally exposing vfs as mod.vfs during execution.
func RunWithVFS(arena *domarena.Arena, root *domarena.Node, code, scriptPath string, vfs map[string]FSBackend) error {
	rt := NewRuntime(arena, scriptPath, vfs)
	return rt.Exec(code, root)
}

// Exec runs code's statements in order against a shared environment
// including document.root bound to root.
func (rt *Runtime) Exec(code string, root *domarena.Node) error {
	env := rt.baseEnv()
	env["document"] = map[string]any{"root": Wrap(rt.arena, root)}

	for i, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		program, err := expr.Compile(line, expr.Env(env))
		if err != nil {
			return fmt.Errorf("script: %s:%d: compile: %w", rt.meta.path, i+1, err)
		}
		if _, err := expr.Run(program, env); err != nil {
			return fmt.Errorf("script: %s:%d: %w", rt.meta.path, i+1, err)
		}
	}
	return nil
}
