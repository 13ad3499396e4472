// Package diag implements span-stable diagnostics aggregation for the XML
// reader, the append parser, and the script runtime.
//
// The Span/Source shape is adapted from chtml's span.go: a diagnostic points
// at a byte offset plus a derived line/column, rather than tracking cursor
// position eagerly during the hot scan loop.
package diag

import "fmt"

// Level is the severity of a diagnostic Message.
type Level int

const (
	Error Level = iota
	Warning
	Note
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Span is a byte-offset location within a single source buffer.
type Span struct {
	Offset int
	Length int
}

func (s Span) End() int { return s.Offset + s.Length }

func (s Span) IsZero() bool { return s.Offset == 0 && s.Length == 0 }

// AnnotationKind distinguishes the primary cause of a diagnostic from
// supporting context.
type AnnotationKind int

const (
	Primary AnnotationKind = iota
	Context
)

// Annotation attaches a label to a span within a Message.
type Annotation struct {
	Span  Span
	Kind  AnnotationKind
	Label string
}

// Message is a single diagnostic: a level, a title, and zero or more
// span annotations.
type Message struct {
	Level       Level
	Title       string
	Annotations []Annotation
}

func (m Message) Error() string {
	if len(m.Annotations) == 0 {
		return fmt.Sprintf("%s: %s", m.Level, m.Title)
	}
	a := m.Annotations[0]
	return fmt.Sprintf("%s: %s (at byte %d)", m.Level, m.Title, a.Span.Offset)
}

// Builder accumulates diagnostics for a single source file.
type Builder struct {
	File     string
	Source   []byte
	Messages []Message
}

// NewBuilder creates a Builder for the given file name and source bytes.
// Source may be nil if line/column resolution is not needed.
func NewBuilder(file string, source []byte) *Builder {
	return &Builder{File: file, Source: source}
}

func (b *Builder) report(level Level, title string, anns ...Annotation) Message {
	m := Message{Level: level, Title: title, Annotations: anns}
	b.Messages = append(b.Messages, m)
	return m
}

// Errorf appends an Error-level diagnostic with a single primary annotation.
func (b *Builder) Errorf(sp Span, label string, format string, args ...any) Message {
	return b.report(Error, fmt.Sprintf(format, args...), Annotation{Span: sp, Kind: Primary, Label: label})
}

// Warnf appends a Warning-level diagnostic with a single primary annotation.
func (b *Builder) Warnf(sp Span, label string, format string, args ...any) Message {
	return b.report(Warning, fmt.Sprintf(format, args...), Annotation{Span: sp, Kind: Primary, Label: label})
}

// Notef appends a Note-level diagnostic with a single primary annotation.
func (b *Builder) Notef(sp Span, label string, format string, args ...any) Message {
	return b.report(Note, fmt.Sprintf(format, args...), Annotation{Span: sp, Kind: Primary, Label: label})
}

// HasErrors reports whether any Error-level diagnostic was recorded.
func (b *Builder) HasErrors() bool {
	for _, m := range b.Messages {
		if m.Level == Error {
			return true
		}
	}
	return false
}

// Position resolves a byte offset to a 1-based line/column pair within
// Source. It is O(n) in the offset; callers needing many lookups should
// cache a line-start table themselves.
func (b *Builder) Position(offset int) (line, column int) {
	line, column = 1, 1
	if b.Source == nil {
		return
	}
	if offset > len(b.Source) {
		offset = len(b.Source)
	}
	for _, r := range string(b.Source[:offset]) {
		if r == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return
}

// OptionExt mirrors original_source's OptionExt::with_mut: it lets code report a
// diagnostic through a Builder that may be nil (e.g. a caller that didn't
// ask for diagnostics) without branching at every call site.
type OptionExt struct {
	b *Builder
}

// Opt wraps a possibly-nil *Builder.
func Opt(b *Builder) OptionExt { return OptionExt{b: b} }

// WithMut invokes fn with the underlying Builder if present; it is a no-op
// otherwise.
func (o OptionExt) WithMut(fn func(*Builder)) {
	if o.b != nil {
		fn(o.b)
	}
}
