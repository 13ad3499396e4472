// Package modappend implements the patch-script language: a parser from
// patch XML into a Script AST and an evaluator that applies a Script to a
// Value DOM target element.
package modappend

import (
	"regexp"

	"github.com/ftlman-go/modpatch/diag"
	"github.com/ftlman-go/modpatch/xmltree"
)

// Script is a parsed patch document: a sequence of finds or raw content to
// graft onto the target.
type Script struct {
	Items []FindOrContent
}

// FindOrContent is one top-level script item. Exactly one of Find,
// Content, or Err is set.
type FindOrContent struct {
	Find    *Find
	Content *xmltree.Element
	Err     *diag.Message
}

// Find selects a set of matching elements and runs Commands on each.
type Find struct {
	Reverse  bool
	Start    int
	Limit    int // -1 means unbounded
	Panic    *PanicSpec
	Filter   FindFilter
	Commands []Command
}

// FindUnbounded is the sentinel Limit value meaning "no limit".
const FindUnbounded = -1

// PanicSpec records a find's panic attribute: whether it fires, and an
// optional message, plus the span to blame in diagnostics.
type PanicSpec struct {
	Message string
	Span    diag.Span
}

// FindFilter is either a single filter or a boolean composition of finds.
type FindFilter struct {
	Simple    *SimpleFilter
	Composite *CompositeFilter
}

// SimpleFilter is either a direct selector or a with-child selector.
type SimpleFilter struct {
	Selector  *SelectorFilter
	WithChild *WithChildFilter
}

// SelectorFilter matches a direct-child element by name, attributes, and
// trimmed text value.
type SelectorFilter struct {
	Name  *StringFilter
	Attrs []AttrFilter
	Value *StringFilter
}

// AttrFilter pairs an attribute key with a value filter.
type AttrFilter struct {
	Key    string
	Filter StringFilter
}

// WithChildFilter matches an element by name plus "has a direct child
// matching child".
type WithChildFilter struct {
	Name  *StringFilter
	Child SelectorFilter
}

// CompositeOperator is the boolean operator joining a CompositeFilter's
// sub-finds.
type CompositeOperator int

const (
	OpAND CompositeOperator = iota
	OpOR
)

// CompositeFilter folds a list of sub-finds with AND/OR, optionally
// complementing the result against the target's direct element children.
type CompositeFilter struct {
	Complement bool
	Operator   CompositeOperator
	Filters    []Find
}

// StringFilter matches a string either exactly or via a regular expression
// anchored to span the entire candidate (the parser compiles patterns
// wrapped in \A(?:...)\z).
type StringFilter struct {
	Fixed   string
	Regex   *regexp.Regexp
	IsRegex bool
}

// Matches reports whether v satisfies the filter.
func (f StringFilter) Matches(v string) bool {
	if f.IsRegex {
		return f.Regex != nil && f.Regex.MatchString(v)
	}
	return v == f.Fixed
}

// CommandKind discriminates Command's payload.
type CommandKind int

const (
	CmdFind CommandKind = iota
	CmdSetAttributes
	CmdRemoveAttributes
	CmdSetValue
	CmdRemoveTag
	CmdInsertByFind
	CmdPrepend
	CmdAppend
	CmdOverwrite
	CmdError
)

// Command is one operation applied to a matched element.
type Command struct {
	Kind CommandKind

	Find            *Find             // CmdFind
	SetAttributes   []AttrKV          // CmdSetAttributes
	RemoveAttrKeys  []string          // CmdRemoveAttributes
	SetValueText    string            // CmdSetValue
	InsertByFind    *InsertByFind     // CmdInsertByFind
	Element         *xmltree.Element  // CmdPrepend / CmdAppend / CmdOverwrite
	Err             *diag.Message     // CmdError
}

// AttrKV is an ordered attribute key/value pair as parsed from
// mod:setAttributes.
type AttrKV struct {
	Key   string
	Value string
}

// InsertByFind is the payload of an insertByFind command.
type InsertByFind struct {
	Find      Find
	AddAnyway bool
	Before    []*xmltree.Element
	After     []*xmltree.Element
}
