package modappend_test

import (
	"testing"

	"github.com/ftlman-go/modpatch/modappend"
	"github.com/ftlman-go/modpatch/xmlreader"
	"github.com/ftlman-go/modpatch/xmltree"
)

func parseTarget(t *testing.T, src string) *xmltree.Element {
	t.Helper()
	r := xmlreader.New(src, xmlreader.Options{AllowUnclosedTags: true})
	root, err := xmltree.NewBuilder().Build(r, xmlreader.Name{Local: "root"}, func(err error) {
		t.Fatalf("unexpected target build warning: %v", err)
	})
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func mustParseScript(t *testing.T, src string) *modappend.Script {
	t.Helper()
	script, diags := modappend.Parse(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected parse errors for %q: %+v", src, diags.Messages)
	}
	return script
}

func applyScript(t *testing.T, targetXML, scriptXML string) *xmltree.Element {
	t.Helper()
	target := parseTarget(t, targetXML)
	script := mustParseScript(t, scriptXML)
	if err := modappend.Eval(target, script); err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	return target
}

func childLocalNames(e *xmltree.Element) []string {
	var out []string
	for _, c := range e.ChildElementsW() {
		out = append(out, c.Name().Local)
	}
	return out
}

func TestFindNameMatchesByNameAttribute(t *testing.T) {
	target := applyScript(t,
		`<entry name="foo"/><entry name="bar"/>`,
		`<mod:findName name="foo"><mod:setAttributes hp="9"/></mod:findName>`,
	)
	entries := target.ChildElementsW()
	if v, _ := entries[0].GetAttr("hp"); v != "9" {
		t.Errorf("entries[0] hp = %q, want 9", v)
	}
	if _, ok := entries[1].GetAttr("hp"); ok {
		t.Errorf("entries[1] should not have been touched")
	}
}

func TestFindLikeMatchesBySelectorAttrsAndValue(t *testing.T) {
	target := applyScript(t,
		`<a kind="x">1</a><a kind="y">1</a><a kind="x">2</a>`,
		`<mod:findLike type="a">
			<mod:selector kind="x">1</mod:selector>
			<mod:setAttributes matched="1"/>
		</mod:findLike>`,
	)
	els := target.ChildElementsW()
	if v, _ := els[0].GetAttr("matched"); v != "1" {
		t.Errorf("els[0] should match selector (kind=x, text=1)")
	}
	if _, ok := els[1].GetAttr("matched"); ok {
		t.Errorf("els[1] (kind=y) must not match")
	}
	if _, ok := els[2].GetAttr("matched"); ok {
		t.Errorf("els[2] (text=2) must not match")
	}
}

func TestFindWithChildLikeMatchesParentWithMatchingChild(t *testing.T) {
	target := applyScript(t,
		`<group><item kind="x"/></group><group><item kind="y"/></group>`,
		`<mod:findWithChildLike type="group" child-type="item">
			<mod:selector kind="x"/>
			<mod:setAttributes matched="1"/>
		</mod:findWithChildLike>`,
	)
	groups := target.ChildElementsW()
	if v, _ := groups[0].GetAttr("matched"); v != "1" {
		t.Errorf("groups[0] should match (has item kind=x)")
	}
	if _, ok := groups[1].GetAttr("matched"); ok {
		t.Errorf("groups[1] must not match")
	}
}

func TestFindCompositeAndOr(t *testing.T) {
	target := applyScript(t,
		`<a kind="x" big="1"/><a kind="x" big="0"/><a kind="y" big="1"/>`,
		`<mod:findComposite>
			<mod:par op="AND">
				<mod:findLike type="a"><mod:selector kind="x"/></mod:findLike>
				<mod:findLike type="a"><mod:selector big="1"/></mod:findLike>
			</mod:par>
			<mod:setAttributes hit="1"/>
		</mod:findComposite>`,
	)
	els := target.ChildElementsW()
	if v, _ := els[0].GetAttr("hit"); v != "1" {
		t.Errorf("els[0] (kind=x, big=1) should match AND")
	}
	if _, ok := els[1].GetAttr("hit"); ok {
		t.Errorf("els[1] (kind=x, big=0) must not match AND")
	}
	if _, ok := els[2].GetAttr("hit"); ok {
		t.Errorf("els[2] (kind=y, big=1) must not match AND")
	}
}

func TestFindCompositeNandComplements(t *testing.T) {
	target := applyScript(t,
		`<a kind="x"/><a kind="y"/>`,
		`<mod:findComposite>
			<mod:par op="NAND">
				<mod:findLike type="a"><mod:selector kind="x"/></mod:findLike>
			</mod:par>
			<mod:setAttributes hit="1"/>
		</mod:findComposite>`,
	)
	els := target.ChildElementsW()
	if _, ok := els[0].GetAttr("hit"); ok {
		t.Errorf("els[0] (kind=x) must be excluded by NAND complement")
	}
	if v, _ := els[1].GetAttr("hit"); v != "1" {
		t.Errorf("els[1] (kind=y) should be included by NAND complement")
	}
}

func TestSetValueRemoveAttributesAndRemoveTag(t *testing.T) {
	target := applyScript(t,
		`<entry name="foo" doomed="1">old</entry><entry name="bar" doomed="1">old</entry>`,
		`<mod:findName name="foo">
			<mod:removeAttributes doomed=""/>
			<mod:setValue>new</mod:setValue>
		</mod:findName>
		<mod:findName name="bar">
			<mod:removeTag/>
		</mod:findName>`,
	)
	els := target.ChildElementsW()
	if len(els) != 1 {
		t.Fatalf("expected the bar entry to be removed by cleanup, got %d children", len(els))
	}
	foo := els[0]
	if _, ok := foo.GetAttr("doomed"); ok {
		t.Errorf("doomed attribute should have been removed")
	}
	if got := foo.GetTextTrim(); got != "new" {
		t.Errorf("GetTextTrim() = %q, want %q", got, "new")
	}
}

func TestPrependAppendOverwrite(t *testing.T) {
	target := applyScript(t,
		`<entry name="foo"><mid/></entry>`,
		`<mod:findName name="foo">
			<mod-prepend:first/>
			<mod-append:last/>
			<mod-overwrite:mid replaced="1"/>
		</mod:findName>`,
	)
	foo := target.ChildElementsW()[0]
	names := childLocalNames(foo)
	if want := []string{"first", "mid", "last"}; !equalSlices(names, want) {
		t.Fatalf("children = %v, want %v", names, want)
	}
	mid := foo.ChildElementsW()[1]
	if v, _ := mid.GetAttr("replaced"); v != "1" {
		t.Errorf("overwrite should have replaced <mid/> with the new element")
	}
}

func TestPanicAttributeOnEmptyMatchSetReturnsPatchError(t *testing.T) {
	target := parseTarget(t, `<entry name="foo"/>`)
	script := mustParseScript(t, `<mod:findName name="nope" panic="boom"><mod:setAttributes x="1"/></mod:findName>`)
	err := modappend.Eval(target, script)
	if err == nil {
		t.Fatal("expected a PatchError from the panic attribute")
	}
	pe, ok := err.(*modappend.PatchError)
	if !ok {
		t.Fatalf("error type = %T, want *modappend.PatchError", err)
	}
	if pe.Panic == nil || pe.Panic.Message != "boom" {
		t.Errorf("PatchError.Panic = %+v, want message %q", pe.Panic, "boom")
	}
}

func TestFindNameMissingNameAttributeAbortsEvaluation(t *testing.T) {
	target := parseTarget(t, `<entry name="foo"/>`)
	script, diags := modappend.Parse(`<mod:findName><mod:setAttributes x="1"/></mod:findName>`)
	if !diags.HasErrors() {
		t.Fatal("expected a diagnostic for the missing name attribute")
	}
	err := modappend.Eval(target, script)
	if _, ok := err.(*modappend.PatchError); !ok {
		t.Fatalf("error type = %T, want *modappend.PatchError", err)
	}
	if v, _ := target.ChildElementsW()[0].GetAttr("x"); v != "" {
		t.Errorf("entry should not have been touched, got x=%q", v)
	}
}

func TestNegativeStartAttributeIsADiagnosticNotAPanic(t *testing.T) {
	target := parseTarget(t, `<entry name="foo"/>`)
	script, diags := modappend.Parse(`<mod:findName name="foo" start="-1"/>`)
	if !diags.HasErrors() {
		t.Fatal("expected a diagnostic for the negative start attribute")
	}
	if err := modappend.Eval(target, script); err != nil {
		t.Fatalf("Eval must not fail after the parser clamped start, got %v", err)
	}
}

func TestInsertByFindSplicesBeforeAndAfterInOrder(t *testing.T) {
	target := applyScript(t,
		`<r><a/><anchor/><b/></r>`,
		`<mod:findLike type="r"><mod:insertByFind>
			<mod:findLike type="anchor"/>
			<mod-before:p1/>
			<mod-before:p2/>
			<mod-after:n1/>
			<mod-after:n2/>
		</mod:insertByFind></mod:findLike>`,
	)
	got := childLocalNames(target.ChildElementsW()[0])
	want := []string{"a", "p1", "p2", "anchor", "n1", "n2", "b"}
	if !equalSlices(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
}

func TestInsertByFindAddAnywayOnEmptyMatchSet(t *testing.T) {
	target := applyScript(t,
		`<r><x/><y/></r>`,
		`<mod:findLike type="r"><mod:insertByFind addAnyway="true">
			<mod:findLike type="missing"/>
			<mod-before:p1/>
			<mod-after:n1/>
		</mod:insertByFind></mod:findLike>`,
	)
	got := childLocalNames(target.ChildElementsW()[0])
	want := []string{"p1", "x", "y", "n1"}
	if !equalSlices(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
}

func TestInsertByFindNoAddAnywayOnEmptyMatchSetIsNoop(t *testing.T) {
	target := applyScript(t,
		`<r><x/><y/></r>`,
		`<mod:findLike type="r"><mod:insertByFind addAnyway="false">
			<mod:findLike type="missing"/>
			<mod-before:p1/>
		</mod:insertByFind></mod:findLike>`,
	)
	got := childLocalNames(target.ChildElementsW()[0])
	want := []string{"x", "y"}
	if !equalSlices(got, want) {
		t.Fatalf("children = %v, want %v (insertByFind without addAnyway must be a no-op)", got, want)
	}
}

func TestContentItemsAreAppendedVerbatim(t *testing.T) {
	target := applyScript(t, `<existing/>`, `<brandNew hp="3"/>`)
	got := childLocalNames(target)
	want := []string{"existing", "brandNew"}
	if !equalSlices(got, want) {
		t.Fatalf("children = %v, want %v", got, want)
	}
	if v, _ := target.ChildElementsW()[1].GetAttr("hp"); v != "3" {
		t.Errorf("appended content element lost its attribute")
	}
}

func TestCleanupStripsModPrefixesAndComments(t *testing.T) {
	target := applyScript(t,
		`<entry name="foo"/>`,
		`<mod:findName name="foo">
			<mod-append:child><!-- a nested comment --><inner/></mod-append:child>
		</mod:findName>`,
	)
	foo := target.ChildElementsW()[0]
	child := foo.ChildElementsW()[0]
	if child.Name().Prefix != "" {
		t.Errorf("appended element should have had its mod-append prefix stripped, got prefix %q", child.Name().Prefix)
	}
	grandchildren := child.ChildElementsW()
	if len(grandchildren) != 1 || grandchildren[0].Name().Local != "inner" {
		t.Fatalf("expected exactly the <inner/> element child to survive cleanup, got %d", len(grandchildren))
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
