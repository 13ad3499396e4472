package modappend

import (
	"regexp"
	"strconv"

	"github.com/ftlman-go/modpatch/diag"
	"github.com/ftlman-go/modpatch/xmlreader"
	"github.com/ftlman-go/modpatch/xmltree"
)

// Parse builds a Script from patch-script XML, grounded on
// original_source/src/append/parse.rs's Parser: this implementation parses
// in two passes instead of one (xmlreader events first, through
// xmltree.Builder, into a full generic tree; then that tree is walked to
// classify mod-prefixed elements into Script items) rather than
// interpreting events as they stream. This loses exact per-attribute byte
// spans in diagnostics (all diagnostics here carry a zero Span) but keeps
// the same recognition rules: command prefixes, attribute defaults, and
// the "first selector/par tag wins, later ones are silently skipped"
// behavior of the original parser.
func Parse(src string) (*Script, *diag.Builder) {
	b := diag.NewBuilder("", nil)
	r := xmlreader.New(src, xmlreader.Options{
		AllowTopLevelText:         true,
		AllowUnmatchedClosingTags: true,
		AllowUnclosedTags:         true,
	})
	root, err := xmltree.NewBuilder().Build(r, xmlreader.Name{Local: "mod-script-root"}, func(werr error) {
		b.Warnf(diag.Span{}, "xml", "%v", werr)
	})
	if err != nil {
		b.Errorf(diag.Span{}, "xml", "%v", err)
		return &Script{}, b
	}

	p := &parser{diag: b}
	script := &Script{}
	for _, child := range root.ChildElementsW() {
		script.Items = append(script.Items, p.parseTopLevel(child))
	}
	return script, b
}

type parser struct {
	diag *diag.Builder
}

func (p *parser) parseTopLevel(el *xmltree.Element) FindOrContent {
	name := el.Name()
	if name.Prefix == "mod" {
		if find, ok := p.tryParseFind(el); ok {
			return FindOrContent{Find: find}
		}
		if !findTagNames[name.Local] {
			p.diag.Errorf(diag.Span{}, "find", "unrecognized mod find tag %q", name.Local)
		}
		return FindOrContent{Err: &diag.Message{Level: diag.Error, Title: "unrecognized mod find tag"}}
	}
	return FindOrContent{Content: el.DeepCopy()}
}

var findTagNames = map[string]bool{
	"findName": true, "findLike": true, "findWithChildLike": true, "findComposite": true,
}

// tryParseFind recognizes el as one of the four mod:find* tags. ok is
// false (find is nil) if el isn't a recognized find tag at all — the
// caller must then treat el as something else (a command or an error),
// exactly mirroring try_parse_find's ModFindParseError::Unrecognized path.
func (p *parser) tryParseFind(el *xmltree.Element) (*Find, bool) {
	name := el.Name()
	if name.Prefix != "mod" || !findTagNames[name.Local] {
		return nil, false
	}

	reverseDefault := name.Local == "findName"
	reverse := p.boolAttr(el, "reverse", reverseDefault)
	start := p.intAttr(el, "start", 0)
	if start < 0 {
		p.diag.Errorf(diag.Span{}, "start", "invalid %s start attribute value: must be >= 0", name.Local)
		start = 0
	}

	limitDefault := -1
	if name.Local == "findName" {
		limitDefault = 1
	}
	limit := p.intAttr(el, "limit", limitDefault)
	if limit < -1 {
		p.diag.Errorf(diag.Span{}, "limit", "invalid %s limit attribute value: must be >= -1", name.Local)
		limit = limitDefault
	}

	panicSpec := p.parsePanicAttr(el)

	var filter FindFilter
	var commands []Command

	switch name.Local {
	case "findName":
		regex := p.boolAttr(el, "regex", false)
		searchName, hasName := el.GetAttr("name")
		if !hasName {
			p.diag.Errorf(diag.Span{}, "name", "mod:findName is missing name attribute")
			return nil, false
		}
		typeFilter := p.optionalStringFilterAttr(el, "type", regex)
		commands = p.parseCommands(el, nil, nil)

		filter = FindFilter{Simple: &SimpleFilter{Selector: &SelectorFilter{
			Name:  typeFilter,
			Attrs: []AttrFilter{{Key: "name", Filter: p.stringFilter(searchName, regex)}},
		}}}
	case "findLike":
		regex := p.boolAttr(el, "regex", false)
		typeFilter := p.optionalStringFilterAttr(el, "type", regex)

		var selector *SelectorFilter
		commands = p.parseCommands(el, &selectorSlot{out: &selector, regex: regex}, nil)
		if selector == nil {
			selector = &SelectorFilter{}
		}
		selector.Name = typeFilter
		filter = FindFilter{Simple: &SimpleFilter{Selector: selector}}
	case "findWithChildLike":
		regex := p.boolAttr(el, "regex", false)
		typeFilter := p.optionalStringFilterAttr(el, "type", regex)
		childTypeFilter := p.optionalStringFilterAttr(el, "child-type", regex)

		var childSelector *SelectorFilter
		commands = p.parseCommands(el, &selectorSlot{out: &childSelector, regex: regex}, nil)
		if childSelector == nil {
			childSelector = &SelectorFilter{}
		}
		childSelector.Name = childTypeFilter
		filter = FindFilter{Simple: &SimpleFilter{WithChild: &WithChildFilter{
			Name:  typeFilter,
			Child: *childSelector,
		}}}
	case "findComposite":
		var par *CompositeFilter
		commands = p.parseCommands(el, nil, &par)
		if par == nil {
			p.diag.Errorf(diag.Span{}, "par", "mod:findComposite is missing a mod:par tag")
			return nil, false
		}
		filter = FindFilter{Composite: par}
	}

	return &Find{
		Reverse:  reverse,
		Start:    start,
		Limit:    limit,
		Panic:    panicSpec,
		Filter:   filter,
		Commands: commands,
	}, true
}

// selectorSlot tracks the first mod:selector tag a find consumes; later
// ones are silently skipped (original_source/src/append/parse.rs
// parse_commands: "if let Some((slot, regex)) = ... filter(|(slot, _)|
// slot.is_none())").
type selectorSlot struct {
	out   **SelectorFilter
	regex bool
}

func (p *parser) parsePanicAttr(el *xmltree.Element) *PanicSpec {
	v, ok := el.GetAttr("panic")
	if !ok {
		return nil
	}
	switch v {
	case "false":
		return nil
	case "true":
		return &PanicSpec{}
	default:
		return &PanicSpec{Message: v}
	}
}

// parseCommands walks el's direct child elements, producing its Command
// list. selSlot, if non-nil, captures the first mod:selector child into
// *selSlot.out. parSlot, if non-nil, captures the first mod:par child.
func (p *parser) parseCommands(el *xmltree.Element, selSlot *selectorSlot, parSlot **CompositeFilter) []Command {
	var commands []Command
	for _, child := range el.ChildElementsW() {
		name := child.Name()

		if name.Prefix == "mod" {
			if find, ok := p.tryParseFind(child); ok {
				commands = append(commands, Command{Kind: CmdFind, Find: find})
				continue
			}
			if findTagNames[name.Local] {
				// Recognized find tag, but tryParseFind already reported why
				// it couldn't be parsed (e.g. findName missing its required
				// name attribute): surface the same Error sentinel a fresh
				// diagnostic here would just duplicate.
				commands = append(commands, Command{Kind: CmdError, Err: &diag.Message{Level: diag.Error, Title: "invalid mod find tag"}})
				continue
			}

			switch name.Local {
			case "selector":
				if selSlot != nil && *selSlot.out == nil {
					*selSlot.out = p.parseSelector(child, selSlot.regex)
				}
				continue
			case "par":
				if parSlot != nil && *parSlot == nil {
					*parSlot = p.parsePar(child)
				}
				continue
			case "setAttributes":
				var kvs []AttrKV
				for _, a := range child.Attrs() {
					kvs = append(kvs, AttrKV{Key: a.Key, Value: a.Value})
				}
				commands = append(commands, Command{Kind: CmdSetAttributes, SetAttributes: kvs})
			case "removeAttributes":
				var keys []string
				for _, a := range child.Attrs() {
					keys = append(keys, a.Key)
				}
				commands = append(commands, Command{Kind: CmdRemoveAttributes, RemoveAttrKeys: keys})
			case "setValue":
				commands = append(commands, Command{Kind: CmdSetValue, SetValueText: child.GetTextTrim()})
			case "removeTag":
				commands = append(commands, Command{Kind: CmdRemoveTag})
			case "insertByFind":
				commands = append(commands, p.parseInsertByFind(child))
			default:
				p.diag.Errorf(diag.Span{}, "command", "invalid mod command %q", name.Local)
				commands = append(commands, Command{Kind: CmdError, Err: &diag.Message{Level: diag.Error, Title: "unrecognized mod command"}})
			}
			continue
		}

		switch name.Prefix {
		case "mod-prepend":
			commands = append(commands, Command{Kind: CmdPrepend, Element: stripPrefix(child)})
		case "mod-append":
			commands = append(commands, Command{Kind: CmdAppend, Element: stripPrefix(child)})
		case "mod-overwrite":
			commands = append(commands, Command{Kind: CmdOverwrite, Element: stripPrefix(child)})
		default:
			p.diag.Errorf(diag.Span{}, "command", "invalid mod command %q", name.String())
			commands = append(commands, Command{Kind: CmdError, Err: &diag.Message{Level: diag.Error, Title: "unrecognized mod command"}})
		}
	}
	return commands
}

func stripPrefix(el *xmltree.Element) *xmltree.Element {
	cp := el.DeepCopy()
	n := cp.Name()
	n.Prefix = ""
	cp.SetName(n)
	return cp
}

// parseSelector builds a SelectorFilter from a mod:selector element's own
// attributes (each becomes an AttrFilter) and its direct text content, if
// any (becomes the value filter).
func (p *parser) parseSelector(el *xmltree.Element, regex bool) *SelectorFilter {
	sf := &SelectorFilter{}
	for _, a := range el.Attrs() {
		sf.Attrs = append(sf.Attrs, AttrFilter{Key: a.Key, Filter: p.stringFilter(a.Value, regex)})
	}
	if text := el.GetTextTrim(); text != "" {
		f := p.stringFilter(text, regex)
		sf.Value = &f
	}
	return sf
}

// parsePar builds a CompositeFilter from a mod:par element: its "op"
// attribute and its find-tag / nested mod:par children.
func (p *parser) parsePar(el *xmltree.Element) *CompositeFilter {
	op, ok := el.GetAttr("op")
	if !ok {
		p.diag.Errorf(diag.Span{}, "op", "mod:par is missing an op attribute")
		op = "AND"
	}
	operator, complement := parOperation(op)

	var filters []Find
	for _, child := range el.ChildElementsW() {
		name := child.Name()
		if name.Prefix == "mod" && name.Local == "par" {
			nested := p.parsePar(child)
			filters = append(filters, Find{
				Reverse: false, Start: 0, Limit: FindUnbounded,
				Filter: FindFilter{Composite: nested},
			})
			continue
		}
		if find, ok := p.tryParseFind(child); ok {
			filters = append(filters, *find)
		}
	}

	return &CompositeFilter{Complement: complement, Operator: operator, Filters: filters}
}

func parOperation(op string) (CompositeOperator, bool) {
	switch op {
	case "AND":
		return OpAND, false
	case "OR":
		return OpOR, false
	case "NAND":
		return OpAND, true
	case "NOR":
		return OpOR, true
	default:
		return OpAND, false
	}
}

// parseInsertByFind parses a mod:insertByFind element: exactly one nested
// find tag (first one wins), any number of mod-before:*/mod-after:*
// payload elements.
func (p *parser) parseInsertByFind(el *xmltree.Element) Command {
	addAnyway := p.boolAttr(el, "addAnyway", true)

	var find *Find
	var before, after []*xmltree.Element
	for _, child := range el.ChildElementsW() {
		if f, ok := p.tryParseFind(child); ok {
			if find == nil {
				find = f
			}
			continue
		}
		switch child.Name().Prefix {
		case "mod-before":
			before = append(before, stripPrefix(child))
		case "mod-after":
			after = append(after, stripPrefix(child))
		default:
			p.diag.Errorf(diag.Span{}, "insertByFind", "mod:insertByFind contains unexpected tag %q", child.Name().String())
		}
	}

	if find == nil {
		p.diag.Errorf(diag.Span{}, "insertByFind", "mod:insertByFind without find")
		return Command{Kind: CmdError, Err: &diag.Message{Level: diag.Error, Title: "mod:insertByFind without find"}}
	}
	if len(before) == 0 && len(after) == 0 {
		p.diag.Errorf(diag.Span{}, "insertByFind", "mod:insertByFind requires at least one mod-before or mod-after tag")
		return Command{Kind: CmdError, Err: &diag.Message{Level: diag.Error, Title: "mod:insertByFind requires at least one mod-before or mod-after tag"}}
	}

	return Command{Kind: CmdInsertByFind, InsertByFind: &InsertByFind{
		Find: *find, AddAnyway: addAnyway, Before: before, After: after,
	}}
}

func (p *parser) boolAttr(el *xmltree.Element, key string, def bool) bool {
	v, ok := el.GetAttr(key)
	if !ok {
		return def
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	default:
		p.diag.Errorf(diag.Span{}, key, "%s attribute must be a boolean", key)
		return def
	}
}

func (p *parser) intAttr(el *xmltree.Element, key string, def int) int {
	v, ok := el.GetAttr(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.diag.Errorf(diag.Span{}, key, "%s attribute must be an integer", key)
		return def
	}
	return n
}

func (p *parser) optionalStringFilterAttr(el *xmltree.Element, key string, regex bool) *StringFilter {
	v, ok := el.GetAttr(key)
	if !ok {
		return nil
	}
	f := p.stringFilter(v, regex)
	return &f
}

func (p *parser) stringFilter(value string, regex bool) StringFilter {
	if !regex {
		return StringFilter{Fixed: value}
	}
	// Regex filters match the entire candidate string, so the pattern is
	// anchored at compile time rather than position-checked per match.
	re, err := regexp.Compile(`\A(?:` + value + `)\z`)
	if err != nil {
		p.diag.Errorf(diag.Span{}, "regex", "invalid regular expression %q: %v", value, err)
		return StringFilter{Fixed: value}
	}
	return StringFilter{IsRegex: true, Regex: re}
}
