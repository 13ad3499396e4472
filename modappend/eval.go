package modappend

import (
	"github.com/beevik/etree"

	"github.com/ftlman-go/modpatch/xmltree"
)

// PatchError is returned by Eval. Panic is set when a Find's panic
// attribute fired against an empty match set; otherwise the error means a
// parse-time Error AST node was reached during evaluation. Grounded on
// original_source/src/append/mod.rs's PatchError enum.
type PatchError struct {
	Panic *PanicSpec
}

func (e *PatchError) Error() string {
	if e.Panic != nil && e.Panic.Message != "" {
		return "mod:find panicked: " + e.Panic.Message
	}
	if e.Panic != nil {
		return "mod:find panicked"
	}
	return "append: a previously reported error aborted evaluation"
}

// removeMarkerPrefix flags an element for deletion during cleanup, grounded
// directly on original_source/src/append/mod.rs's REMOVE_MARKER sentinel.
const removeMarkerPrefix = "_ftlman_internal_remove_marker"

var modPrefixes = map[string]bool{
	"mod": true, "mod-append": true, "mod-prepend": true, "mod-overwrite": true,
}

// Eval applies script to target in place.
func Eval(target *xmltree.Element, script *Script) error {
	for _, item := range script.Items {
		switch {
		case item.Find != nil:
			matches, err := modFind(target, item.Find)
			if err != nil {
				return err
			}
			for _, m := range matches {
				if err := modCommands(m, item.Find.Commands); err != nil {
					return err
				}
			}
		case item.Content != nil:
			clone := item.Content.DeepCopy()
			cleanup(clone)
			target.AppendChild(clone)
		case item.Err != nil:
			return &PatchError{}
		}
	}

	cleanup(target)
	return nil
}

// cleanup runs the post-order pass of the format: strip mod-ish prefixes,
// drop elements marked RemoveTag, drop comments.
func cleanup(e *xmltree.Element) {
	name := e.Name()
	if modPrefixes[name.Prefix] {
		name.Prefix = ""
		e.SetName(name)
	}

	for _, tok := range append([]etree.Token{}, e.Element.Child...) {
		switch n := tok.(type) {
		case *etree.Element:
			child := &xmltree.Element{Element: n}
			if child.Name().Prefix == removeMarkerPrefix {
				e.Element.RemoveChild(n)
				continue
			}
			cleanup(child)
		case *etree.Comment:
			e.Element.RemoveChild(n)
		}
	}
}

func modFind(context *xmltree.Element, find *Find) ([]*xmltree.Element, error) {
	matches, err := filterMatches(context, find.Filter)
	if err != nil {
		return nil, err
	}

	if find.Reverse {
		for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
			matches[i], matches[j] = matches[j], matches[i]
		}
	}

	matches = skipTake(matches, find.Start, find.Limit)

	if len(matches) == 0 && find.Panic != nil {
		return nil, &PatchError{Panic: find.Panic}
	}
	return matches, nil
}

func skipTake(s []*xmltree.Element, start, limit int) []*xmltree.Element {
	// The parser rejects negative start values; clamp anyway so a
	// hand-built Find can't slice out of bounds.
	if start < 0 {
		start = 0
	}
	if start >= len(s) {
		return nil
	}
	s = s[start:]
	if limit == FindUnbounded || limit >= len(s) {
		return s
	}
	if limit < 0 {
		return nil
	}
	return s[:limit]
}

func filterMatches(context *xmltree.Element, filter FindFilter) ([]*xmltree.Element, error) {
	if filter.Simple != nil {
		return filterChildren(context, func(e *xmltree.Element) bool { return filter.Simple.Matches(e) }), nil
	}
	if filter.Composite != nil {
		return compositeMatches(context, filter.Composite)
	}
	return nil, nil
}

func filterChildren(context *xmltree.Element, pred func(*xmltree.Element) bool) []*xmltree.Element {
	var out []*xmltree.Element
	for _, c := range context.ChildElementsW() {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// compositeMatches folds a CompositeFilter's sub-finds with AND/OR,
// optionally complementing the result against context's direct element
// children. Unlike original_source's HashSet-based
// fold, this keeps document order throughout so results are deterministic.
// Sets are keyed by the underlying *etree.Element, since each find returns
// fresh wrappers.
func compositeMatches(context *xmltree.Element, cf *CompositeFilter) ([]*xmltree.Element, error) {
	all := context.ChildElementsW()
	if len(cf.Filters) == 0 {
		if cf.Complement {
			return all, nil
		}
		return nil, nil
	}

	matched := map[*etree.Element]bool{}
	first, err := modFind(context, &cf.Filters[0])
	if err != nil {
		return nil, err
	}
	for _, m := range first {
		matched[m.Element] = true
	}

	for i := 1; i < len(cf.Filters); i++ {
		cand, err := modFind(context, &cf.Filters[i])
		if err != nil {
			return nil, err
		}
		candSet := map[*etree.Element]bool{}
		for _, c := range cand {
			candSet[c.Element] = true
		}
		switch cf.Operator {
		case OpAND:
			for k := range matched {
				if !candSet[k] {
					delete(matched, k)
				}
			}
		case OpOR:
			for k := range candSet {
				matched[k] = true
			}
		}
	}

	var result []*xmltree.Element
	for _, e := range all {
		in := matched[e.Element]
		if cf.Complement {
			if !in {
				result = append(result, e)
			}
		} else if in {
			result = append(result, e)
		}
	}
	return result, nil
}

// Matches reports whether f accepts e.
func (f SimpleFilter) Matches(e *xmltree.Element) bool {
	if f.Selector != nil {
		return f.Selector.Matches(e)
	}
	if f.WithChild != nil {
		return f.WithChild.Matches(e)
	}
	return false
}

// Matches implements SelectorFilter.filter: name, attrs, and value
// predicates must all pass.
func (f *SelectorFilter) Matches(e *xmltree.Element) bool {
	if f.Name != nil && !f.Name.Matches(e.Name().Local) {
		return false
	}
	for _, af := range f.Attrs {
		v, ok := e.GetAttr(af.Key)
		if !ok || !af.Filter.Matches(v) {
			return false
		}
	}
	if f.Value != nil && !f.Value.Matches(e.GetTextTrim()) {
		return false
	}
	return true
}

// Matches implements WithChildFilter.filter: a name predicate plus "any
// direct-child element matches child_filter".
func (f *WithChildFilter) Matches(e *xmltree.Element) bool {
	if f.Name != nil && !f.Name.Matches(e.Name().Local) {
		return false
	}
	for _, c := range e.ChildElementsW() {
		if f.Child.Matches(c) {
			return true
		}
	}
	return false
}

func modCommands(context *xmltree.Element, commands []Command) error {
	for _, cmd := range commands {
		switch cmd.Kind {
		case CmdFind:
			matches, err := modFind(context, cmd.Find)
			if err != nil {
				return err
			}
			for _, m := range matches {
				if err := modCommands(m, cmd.Find.Commands); err != nil {
					return err
				}
			}
		case CmdSetAttributes:
			for _, kv := range cmd.SetAttributes {
				context.SetAttr(kv.Key, kv.Value)
			}
		case CmdRemoveAttributes:
			for _, k := range cmd.RemoveAttrKeys {
				context.RemoveAttr(k)
			}
		case CmdSetValue:
			context.SetTextOnly(cmd.SetValueText)
		case CmdRemoveTag:
			n := context.Name()
			n.Prefix = removeMarkerPrefix
			context.SetName(n)
		case CmdPrepend:
			context.PrependChild(cmd.Element.DeepCopy())
		case CmdAppend:
			context.AppendChild(cmd.Element.DeepCopy())
		case CmdOverwrite:
			newEl := cmd.Element.DeepCopy()
			if old := getChildByLocalName(context, newEl.Name().Local); old != nil {
				context.InsertChildBefore(old.Element, newEl)
				context.RemoveChildElement(old)
			} else {
				context.AppendChild(newEl)
			}
		case CmdInsertByFind:
			if err := evalInsertByFind(context, cmd.InsertByFind); err != nil {
				return err
			}
		case CmdError:
			return &PatchError{}
		}
	}
	return nil
}

func getChildByLocalName(context *xmltree.Element, local string) *xmltree.Element {
	for _, c := range context.ChildElementsW() {
		if c.Name().Local == local {
			return c
		}
	}
	return nil
}

// evalInsertByFind mirrors original_source/src/append/mod.rs's
// Command::InsertByFind handling: splice before/after lists relative to
// the first/last elements in the find's (already reverse/skip/take'd)
// match list, or relative to the start/end of context's children when the
// find has no matches and addAnyway is set.
func evalInsertByFind(context *xmltree.Element, ib *InsertByFind) error {
	matches, err := modFind(context, &ib.Find)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		if !ib.AddAnyway {
			return nil
		}
		insertBeforeAnchor(context, nil, ib.Before)
		insertAfterAnchor(context, nil, ib.After)
		return nil
	}

	first := matches[0]
	last := matches[len(matches)-1]
	insertBeforeAnchor(context, first, ib.Before)
	insertAfterAnchor(context, last, ib.After)
	return nil
}

// insertBeforeAnchor inserts items, in order, immediately before anchor
// (or at the start of context's children if anchor is nil).
func insertBeforeAnchor(context *xmltree.Element, anchor *xmltree.Element, items []*xmltree.Element) {
	idx := 0
	if anchor != nil {
		idx = anchor.Element.Index()
	}
	for _, it := range items {
		context.Element.InsertChildAt(idx, it.DeepCopy().Element)
		idx++
	}
}

// insertAfterAnchor inserts items, in order, immediately after anchor (or
// at the end of context's children if anchor is nil).
func insertAfterAnchor(context *xmltree.Element, anchor *xmltree.Element, items []*xmltree.Element) {
	idx := len(context.Element.Child)
	if anchor != nil {
		idx = anchor.Element.Index() + 1
	}
	for _, it := range items {
		context.Element.InsertChildAt(idx, it.DeepCopy().Element)
		idx++
	}
}
