// Package xmlesc implements entity decoding/encoding for the four XML
// escaping contexts the streaming reader and writer need: content,
// attribute values, comments, and CDATA sections.
//
// Unescape is deliberately bug-compatible with a widely deployed, permissive
// legacy XML parser: unknown or malformed entity references are left as-is
// rather than rejected, because existing mods rely on this. This is a
// contract, not a bug.
package xmlesc

import (
	"strings"
	"unicode/utf8"
)

// namedEntities is the fixed set of named character references the legacy
// parser recognizes.
var namedEntities = map[string]rune{
	"lt":   '<',
	"gt":   '>',
	"amp":  '&',
	"apos": '\'',
	"quot": '"',
}

// Unescape resolves &lt; &gt; &amp; &apos; &quot; and numeric references
// (&#123; &#x7B;) in s. Unknown or malformed references are left untouched.
// A literal NUL byte in s terminates the decoded string at that point,
// matching the legacy parser's behavior. When s contains no '&', Unescape
// returns s itself (cut at the first NUL, if any) without copying.
func Unescape(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if !strings.ContainsRune(s, '&') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '&' {
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			// No terminating ';' anywhere in the rest of the string: leave
			// the rest as-is, bug-compatible with the legacy parser.
			b.WriteString(s[i:])
			break
		}
		end += i // absolute index of ';'
		ref := s[i+1 : end]

		if decoded, ok := decodeRef(ref); ok {
			b.WriteRune(decoded)
			i = end
			continue
		}

		// Malformed/unknown reference: emit the '&' verbatim and continue
		// scanning right after it, so a stray '&' never swallows input.
		b.WriteByte('&')
	}

	return b.String()
}

func decodeRef(ref string) (rune, bool) {
	if ref == "" {
		return 0, false
	}
	if ref[0] == '#' {
		return decodeNumericRef(ref[1:])
	}
	v, ok := namedEntities[ref]
	return v, ok
}

func decodeNumericRef(digits string) (rune, bool) {
	if digits == "" {
		return 0, false
	}
	base := 10
	if digits[0] == 'x' || digits[0] == 'X' {
		digits = digits[1:]
		base = 16
	}
	if digits == "" {
		return 0, false
	}
	var v int64
	for _, r := range digits {
		var d int64
		switch {
		case r >= '0' && r <= '9':
			d = int64(r - '0')
		case base == 16 && r >= 'a' && r <= 'f':
			d = int64(r-'a') + 10
		case base == 16 && r >= 'A' && r <= 'F':
			d = int64(r-'A') + 10
		default:
			return 0, false
		}
		v = v*int64(base) + d
		if v > utf8.MaxRune {
			return 0, false
		}
	}
	if v <= 0 || !utf8.ValidRune(rune(v)) {
		return 0, false
	}
	return rune(v), true
}

// EscapeAttr escapes the minimum set of characters required inside a
// double- or single-quoted attribute value: '<', '&', '"'.
func EscapeAttr(s string) string {
	return escapeMinimal(s, func(r byte) (string, bool) {
		switch r {
		case '<':
			return "&lt;", true
		case '&':
			return "&amp;", true
		case '"':
			return "&quot;", true
		}
		return "", false
	})
}

// EscapeText escapes the minimum set required in element text content:
// '<', '&'.
func EscapeText(s string) string {
	return escapeMinimal(s, func(r byte) (string, bool) {
		switch r {
		case '<':
			return "&lt;", true
		case '&':
			return "&amp;", true
		}
		return "", false
	})
}

// EscapeComment escapes the minimum set required inside a comment body: '>'.
// It does not guard against "--" sequences; callers that can't guarantee
// the source is free of "-->" must reject it before calling EscapeComment.
func EscapeComment(s string) string {
	return escapeMinimal(s, func(r byte) (string, bool) {
		if r == '>' {
			return "&gt;", true
		}
		return "", false
	})
}

// EscapeCData does not transform s: CDATA sections have no entity escaping.
// Callers must reject any value containing "]]>" before emitting it as
// CDATA.
func EscapeCData(s string) string { return s }

func escapeMinimal(s string, rule func(byte) (string, bool)) string {
	var b strings.Builder
	start := 0
	for i := 0; i < len(s); i++ {
		if rep, ok := rule(s[i]); ok {
			b.WriteString(s[start:i])
			b.WriteString(rep)
			start = i + 1
		}
	}
	if start == 0 {
		return s
	}
	b.WriteString(s[start:])
	return b.String()
}
