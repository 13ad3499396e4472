package xmlreader

import (
	"testing"
)

func collect(t *testing.T, src string, opts Options) []Event {
	t.Helper()
	r := New(src, opts)
	var events []Event
	for {
		ev, err := r.Next()
		if IsEOF(err) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestSimpleElement(t *testing.T) {
	events := collect(t, `<root><entry name="a" hp="1"/></root>`, Options{})
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Kind != Start || events[0].Name.Local != "root" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Kind != Empty || events[1].Name.Local != "entry" {
		t.Errorf("event 1 = %+v", events[1])
	}
	if len(events[1].Attr) != 2 {
		t.Fatalf("expected 2 attrs, got %d", len(events[1].Attr))
	}
	if events[1].Attr[0].Name.Local != "name" || events[1].Attr[0].RawValue != "a" {
		t.Errorf("attr 0 = %+v", events[1].Attr[0])
	}
	if events[2].Kind != End || events[2].Name.Local != "root" {
		t.Errorf("event 2 = %+v", events[2])
	}
}

func TestPrefixedName(t *testing.T) {
	events := collect(t, `<mod:findName name="a"/>`, Options{})
	if events[0].Name.Prefix != "mod" || events[0].Name.Local != "findName" {
		t.Errorf("name = %+v", events[0].Name)
	}
}

func TestPIAndDoctypeSkipped(t *testing.T) {
	src := `<?xml version="1.0"?><!DOCTYPE FTL [ <!ELEMENT x [y]> ]><root/>`
	events := collect(t, src, Options{})
	if len(events) != 1 {
		t.Fatalf("expected only the root Empty event, got %d: %+v", len(events), events)
	}
	if events[0].Kind != Empty || events[0].Name.Local != "root" {
		t.Errorf("got %+v", events[0])
	}
}

func TestMalformedPISkipped(t *testing.T) {
	// Malformed PI content is still silently consumed.
	src := `<?broken <<< ?><root/>`
	events := collect(t, src, Options{})
	if len(events) != 1 || events[0].Name.Local != "root" {
		t.Errorf("got %+v", events)
	}
}

func TestCommentAndCData(t *testing.T) {
	events := collect(t, `<r><!-- hi --><![CDATA[<raw>]]></r>`, Options{AllowTopLevelText: true})
	if events[1].Kind != Comment || events[1].Raw != " hi " {
		t.Errorf("comment = %+v", events[1])
	}
	if events[2].Kind != CData || events[2].Raw != "<raw>" {
		t.Errorf("cdata = %+v", events[2])
	}
}

func TestTopLevelTextRejectedByDefault(t *testing.T) {
	r := New("stray text<root/>", Options{})
	_, err := r.Next()
	perr, ok := err.(*Error)
	if !ok || perr.Kind != TopLevelText {
		t.Fatalf("expected TopLevelText error, got %v", err)
	}
}

func TestTopLevelWhitespaceAlwaysAllowed(t *testing.T) {
	events := collect(t, "  \n<root/>", Options{})
	if len(events) != 2 || events[0].Kind != Text {
		t.Fatalf("got %+v", events)
	}
}

func TestTopLevelTextAllowedWithOption(t *testing.T) {
	events := collect(t, "hello<root/>", Options{AllowTopLevelText: true})
	if events[0].Kind != Text || events[0].Raw != "hello" {
		t.Errorf("got %+v", events[0])
	}
}

func TestUnclosedElementEof(t *testing.T) {
	r := New("<root><child>", Options{})
	for i := 0; i < 2; i++ {
		if _, err := r.Next(); err != nil {
			t.Fatalf("unexpected error on event %d: %v", i, err)
		}
	}
	_, err := r.Next()
	perr, ok := err.(*Error)
	if !ok || perr.Kind != UnclosedElementEof {
		t.Fatalf("expected UnclosedElementEof, got %v", err)
	}
}

func TestUnclosedElementEofToleratedWithOption(t *testing.T) {
	events := collect(t, "<root><child>", Options{AllowUnclosedTags: true})
	if len(events) != 2 {
		t.Fatalf("got %+v", events)
	}
}

func TestMismatchedEndTagRejectedByDefault(t *testing.T) {
	r := New("<root></other>", Options{})
	if _, err := r.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Next()
	perr, ok := err.(*Error)
	if !ok || perr.Kind != UnclosedEndTag {
		t.Fatalf("expected UnclosedEndTag, got %v", err)
	}
}

func TestMismatchedEndTagToleratedWithOption(t *testing.T) {
	// The stray </other> is skipped; </root> still closes <root>.
	events := collect(t, "<root></other></root>", Options{AllowUnmatchedClosingTags: true})
	if len(events) != 2 || events[0].Kind != Start || events[1].Kind != End {
		t.Fatalf("got %+v", events)
	}
	if events[1].Name.Local != "root" {
		t.Errorf("end tag = %+v, want root", events[1].Name)
	}
}

func TestDuplicateAttributesNotRejected(t *testing.T) {
	events := collect(t, `<r a="1" a="2"/>`, Options{})
	if len(events[0].Attr) != 2 {
		t.Fatalf("reader must not reject duplicate attribute names, got %+v", events[0].Attr)
	}
}

func TestAttributeValueNotUnescapedAtParseTime(t *testing.T) {
	events := collect(t, `<r a="&amp;"/>`, Options{})
	a := events[0].Attr[0]
	if a.RawValue != "&amp;" {
		t.Fatalf("RawValue must be raw, got %q", a.RawValue)
	}
	if a.Value() != "&" {
		t.Fatalf("Value() must unescape, got %q", a.Value())
	}
}

func TestUnknownSpecialSkipped(t *testing.T) {
	events := collect(t, `<!weird stuff here><root/>`, Options{})
	if len(events) != 1 || events[0].Name.Local != "root" {
		t.Errorf("got %+v", events)
	}
}
