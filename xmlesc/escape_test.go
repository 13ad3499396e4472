package xmlesc

import "testing"

func TestUnescape(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"named", "a &lt;b&gt; &amp; &apos;c&apos; &quot;d&quot;", "a <b> & 'c' \"d\""},
		{"decimal", "&#65;&#66;&#67;", "ABC"},
		{"hex", "&#x41;&#x42;", "AB"},
		{"unknown left as-is", "&foo; &bar;", "&foo; &bar;"},
		{"malformed left as-is", "a & b", "a & b"},
		{"unterminated left as-is", "a &lt", "a &lt"},
		{"nul terminates", "abc\x00def", "abc"},
		{"empty", "", ""},
		{"no transformation returns same string", "plain text", "plain text"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Unescape(c.in)
			if got != c.want {
				t.Errorf("Unescape(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"plain",
		"a<b&c\"d'e",
		"line\nbreak",
	}
	for _, s := range cases {
		attr := EscapeAttr(s)
		if got := Unescape(attr); got != s {
			t.Errorf("attr round-trip: Unescape(EscapeAttr(%q)) = %q", s, got)
		}
		text := EscapeText(s)
		if got := Unescape(text); got != s {
			t.Errorf("text round-trip: Unescape(EscapeText(%q)) = %q", s, got)
		}
	}
}

func TestEscapeAttrMinimalSet(t *testing.T) {
	got := EscapeAttr(`<a & "b">`)
	want := `&lt;a &amp; &quot;b&quot;>`
	if got != want {
		t.Errorf("EscapeAttr = %q, want %q", got, want)
	}
}

func TestEscapeTextMinimalSet(t *testing.T) {
	got := EscapeText(`<a & "b">`)
	want := `&lt;a &amp; "b">`
	if got != want {
		t.Errorf("EscapeText = %q, want %q", got, want)
	}
}

func TestEscapeComment(t *testing.T) {
	got := EscapeComment("a > b")
	want := "a &gt; b"
	if got != want {
		t.Errorf("EscapeComment = %q, want %q", got, want)
	}
}

func TestEscapeCDataIsIdentity(t *testing.T) {
	s := "raw <<< && content"
	if EscapeCData(s) != s {
		t.Errorf("EscapeCData must not transform its input")
	}
}
