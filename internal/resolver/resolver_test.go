package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/ccindex/internal/editor"
	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// fixture parses src, whose '@' marks are caret positions, into a fresh
// parser and opens it as a document.
type fixture struct {
	p      *parser.Parser
	doc    *editor.Document
	s      *Session
	carets []int
}

func newFixture(t *testing.T, src string) *fixture {
	t.Helper()
	var b strings.Builder
	var carets []int
	for i := 0; i < len(src); i++ {
		if src[i] == '@' {
			carets = append(carets, b.Len())
			continue
		}
		b.WriteByte(src[i])
	}
	text := b.String()

	p := parser.New("test", parser.DefaultOptions())
	t.Cleanup(p.Close)
	require.True(t, p.ParseBuffer(text, parser.FileOptions("test.cpp")))
	return &fixture{
		p:      p,
		doc:    editor.NewDocument("test.cpp", text),
		s:      NewSession(p),
		carets: carets,
	}
}

func (f *fixture) data() SearchData {
	return SearchData{Buffer: f.doc}
}

func (f *fixture) complete(t *testing.T, caret int) []*types.Token {
	t.Helper()
	var result types.IndexSet
	f.s.MarkItemsByAI(f.data(), &result, true, true, true, caret)
	var toks []*types.Token
	f.p.TokenTree().With(func(g *tokentree.Guard) {
		for _, idx := range result.Slice() {
			if tok := g.At(idx); tok != nil {
				cp := *tok
				toks = append(toks, &cp)
			}
		}
	})
	return toks
}

func names(toks []*types.Token) []string {
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		out = append(out, tok.Name)
	}
	return out
}

func countNamed(f *fixture, name string, kind types.TokenKind) int {
	n := 0
	f.p.TokenTree().With(func(g *tokentree.Guard) {
		n = g.FindMatches(name, true, false, kind).Len()
	})
	return n
}

func TestCaretOutOfRangeYieldsNothing(t *testing.T) {
	f := newFixture(t, "void f(int value) {\n    v@\n}\n")
	require.Equal(t, []string{"value"}, names(f.complete(t, f.carets[0])))
	size := f.p.TokenTree().Size()
	var temps int
	f.p.TokenTree().With(func(g *tokentree.Guard) { temps = g.TempCount() })
	require.Equal(t, 1, temps)

	var result types.IndexSet
	result.Insert(42)
	assert.Zero(t, f.s.MarkItemsByAI(f.data(), &result, true, true, true, f.doc.Length()+1))
	assert.True(t, result.Empty(), "result is cleared")
	assert.Zero(t, f.s.AI(f.data(), &result, "", true, true, nil, -5))

	assert.Equal(t, size, f.p.TokenTree().Size(), "tree is not mutated")
	f.p.TokenTree().With(func(g *tokentree.Guard) { temps = g.TempCount() })
	assert.Equal(t, 1, temps, "temporaries of the last query survive")
}

func TestFunctionArgumentsAreVisibleInBody(t *testing.T) {
	f := newFixture(t, `class Foo {
public:
    void Bar(int x);
};
void Foo::Bar(int x) {
    x@
}
`)
	toks := f.complete(t, f.carets[0])
	require.Len(t, toks, 1)
	x := toks[0]
	assert.Equal(t, "x", x.Name)
	assert.Equal(t, types.KindVariable, x.Kind)
	assert.True(t, x.IsTemp)
	assert.Equal(t, 5, x.Line)
	assert.Equal(t, "int", x.BaseType)

	var bar types.IndexSet
	f.p.TokenTree().With(func(g *tokentree.Guard) {
		bar = g.FindMatches("Bar", true, false, types.KindAnyFunction)
	})
	require.Equal(t, 1, bar.Len())
	assert.Equal(t, bar.Slice()[0], x.ParentIndex, "arguments are children of the function")
}

func TestClosedInnerBlockIsOutOfScope(t *testing.T) {
	f := newFixture(t, `void f() {
    int outer = 0;
    {
        int y = 1;
    }
    for (int i = 0; i < 3; ++i) {
        int z = i;
    }
    y@;
    o@;
    i@;
}
`)
	assert.Empty(t, f.complete(t, f.carets[0]))
	assert.Equal(t, []string{"outer"}, names(f.complete(t, f.carets[1])))
	assert.Empty(t, f.complete(t, f.carets[2]), "for header declarations end with the loop")
	assert.Zero(t, countNamed(f, "z", types.KindVariable))
}

func TestOpenBlockDeclarationsAreVisible(t *testing.T) {
	f := newFixture(t, `void f() {
    int outer = 0;
    if (outer) {
        double inner = 1;
        in@
    }
}
`)
	toks := f.complete(t, f.carets[0])
	require.Equal(t, []string{"inner"}, names(toks))
	assert.Equal(t, 4, toks[0].Line)
}

func TestTemporariesAreSweptBetweenQueries(t *testing.T) {
	f := newFixture(t, `void f() {
    int alpha = 0;
    al@
}
void g() {
    int beta = 0;
    be@
}
`)
	assert.Equal(t, []string{"alpha"}, names(f.complete(t, f.carets[0])))
	assert.Equal(t, 1, countNamed(f, "alpha", types.KindVariable))

	assert.Equal(t, []string{"beta"}, names(f.complete(t, f.carets[1])))
	assert.Zero(t, countNamed(f, "alpha", types.KindVariable), "previous function's locals are gone")

	f.s.ClearTemporaries()
	assert.Zero(t, countNamed(f, "beta", types.KindVariable))
}

func TestUsingNamespaceBringsMembersIntoScope(t *testing.T) {
	f := newFixture(t, `namespace NS {
class Cls {
public:
    void f();
};
}
using namespace NS;
void g() {
    Cl@
}
`)
	toks := f.complete(t, f.carets[0])
	require.Len(t, toks, 1)
	assert.Equal(t, "Cls", toks[0].Name)
	assert.Equal(t, types.KindClass, toks[0].Kind)
}

func TestMemberAccessFollowsDeclaredTypes(t *testing.T) {
	f := newFixture(t, `class Base {
public:
    int base_member;
};
class Widget : public Base {
public:
    int width;
    void draw();
};
typedef Widget* WidgetPtr;
void g() {
    Widget w;
    WidgetPtr p;
    w.wi@;
    p->dr@;
    w.base@;
    Widget::wi@;
}
`)
	assert.Equal(t, []string{"width"}, names(f.complete(t, f.carets[0])))
	assert.Equal(t, []string{"draw"}, names(f.complete(t, f.carets[1])))
	assert.Equal(t, []string{"base_member"}, names(f.complete(t, f.carets[2])), "members of ancestors")
	assert.Equal(t, []string{"width"}, names(f.complete(t, f.carets[3])))
	assert.False(t, f.s.LastAISearchWasGlobal())
	assert.Equal(t, "Widget", f.s.LastAIGlobalSearch())
}

func TestThisResolvesToEnclosingClass(t *testing.T) {
	f := newFixture(t, `class Counter {
    int count_;
    void bump();
};
void Counter::bump() {
    this->co@
}
`)
	assert.Equal(t, []string{"count_"}, names(f.complete(t, f.carets[0])))
}

func TestMembersVisibleInsideMemberFunction(t *testing.T) {
	f := newFixture(t, `namespace app {
class Counter {
    int count_;
    void bump();
};
}
void app::Counter::bump() {
    cou@
}
`)
	assert.Equal(t, []string{"count_"}, names(f.complete(t, f.carets[0])))
}

func TestLastAISearchWasGlobal(t *testing.T) {
	f := newFixture(t, `struct S { int value; };
S s;
void g() {
    va@;
    s.va@;
}
`)
	f.complete(t, f.carets[0])
	assert.True(t, f.s.LastAISearchWasGlobal())
	assert.Equal(t, "va", f.s.LastAIGlobalSearch())

	assert.Equal(t, []string{"value"}, names(f.complete(t, f.carets[1])))
	assert.False(t, f.s.LastAISearchWasGlobal())
	assert.Equal(t, "s", f.s.LastAIGlobalSearch())
}

func TestUnscopedEnumeratorsAreTransparent(t *testing.T) {
	f := newFixture(t, `enum Color { Red, Green };
enum class Mode { Fast, Slow };
void g() {
    Re@;
    Fa@;
    Mode::Fa@;
}
`)
	assert.Equal(t, []string{"Red"}, names(f.complete(t, f.carets[0])))
	assert.Empty(t, f.complete(t, f.carets[1]), "scoped enumerators need qualification")
	assert.Equal(t, []string{"Fast"}, names(f.complete(t, f.carets[2])))
}

func TestMarkItemsWithoutAIReturnsWholeTree(t *testing.T) {
	f := newFixture(t, "int a;\nint b;\nvoid f() {\n    int c;\n    @\n}\n")
	var result types.IndexSet
	n := f.s.MarkItemsByAI(f.data(), &result, false, true, true, f.carets[0])
	assert.Equal(t, 4, n, "a, b, f and the local c")
}

func TestFindCurrentFunctionStart(t *testing.T) {
	f := newFixture(t, `namespace ns {
class Foo {
    void Bar(int x);
};
}
void ns::Foo::Bar(int x)
{
    @
}
int outside;@
`)
	st := f.s.FindCurrentFunctionStart(f.data(), f.carets[0])
	assert.Equal(t, "Bar", st.Proc)
	assert.Equal(t, "ns::Foo::", st.Namespace)
	assert.Equal(t, byte('{'), f.doc.CharAt(st.Pos))
	assert.Equal(t, 6, f.doc.LineFromPosition(st.Pos))

	again := f.s.FindCurrentFunctionStart(f.data(), f.carets[0])
	assert.Equal(t, st, again)

	assert.Equal(t, -1, f.s.FindCurrentFunctionStart(f.data(), f.carets[1]).Pos)

	found := f.s.FindCurrentFunctionToken(f.data(), f.carets[0])
	assert.Equal(t, 1, found.Len())
}

func TestFunctionStartCacheFollowsRevision(t *testing.T) {
	f := newFixture(t, "void a() {\n\n}\n")
	caret := f.doc.PositionFromLine(1)
	first := f.s.FindCurrentFunctionStart(f.data(), caret)
	require.Equal(t, "a", first.Proc)
	assert.Equal(t, 9, first.Pos)

	// the edit keeps line 2 inside a() but moves its brace
	f.doc.SetText("void a(int)\n{\n\n}\n")
	f.p.TokenTree().With(func(g *tokentree.Guard) { g.RemoveFile("test.cpp") })
	require.True(t, f.p.ParseBuffer(f.doc.Text(), parser.FileOptions("test.cpp")))

	second := f.s.FindCurrentFunctionStart(f.data(), f.doc.PositionFromLine(1))
	assert.Equal(t, "a", second.Proc)
	assert.Equal(t, 12, second.Pos)
}

func TestGetCallTips(t *testing.T) {
	f := newFixture(t, `int add(int a, int b);
class Point {
public:
    Point(int x, int y);
};
#define SQUARE(v) ((v) * (v))
void g() {
    add(1, @);
    Point(3@);
    SQUARE(@);
    int x = 1; @
}
`)
	items, commas, start := f.s.GetCallTips(f.data(), 0, f.carets[0])
	assert.Equal(t, []string{"int add(int a, int b)"}, items)
	assert.Equal(t, 1, commas)
	assert.Equal(t, f.doc.PositionFromLineColumn(8, 8), start)

	items, commas, _ = f.s.GetCallTips(f.data(), 0, f.carets[1])
	assert.Equal(t, []string{"Point(int x, int y)"}, items)
	assert.Zero(t, commas)

	items, _, _ = f.s.GetCallTips(f.data(), 0, f.carets[2])
	assert.Equal(t, []string{"SQUARE(v)"}, items)

	items, _, start = f.s.GetCallTips(f.data(), 0, f.carets[3])
	assert.Empty(t, items)
	assert.Equal(t, -1, start)
}

func TestCallTipNestedCommasAreNotCounted(t *testing.T) {
	f := newFixture(t, "int f(int a, int b, int c);\nint h(int);\nvoid g() {\n    f(h(1, 2), \"x,y\", @);\n}\n")
	items, commas, _ := f.s.GetCallTips(f.data(), 0, f.carets[0])
	assert.Equal(t, []string{"int f(int a, int b, int c)"}, items)
	assert.Equal(t, 2, commas)
}

func TestWrapCallTip(t *testing.T) {
	assert.Equal(t, "void f(int a, \nint b)", wrapCallTip("void f(int a, int b)", 15))
	assert.Equal(t, "short()", wrapCallTip("short()", 15))
}

func TestArgumentsToDeclarations(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"()", ""},
		{"(void)", ""},
		{"(int x)", "int x;"},
		{"(int a, char* b)", "int a; char* b;"},
		{"(std::map<int, int> m, int n = 3)", "std::map<int, int> m; int n = 3;"},
		{"(int (*cb)(int, int), ...)", "int (*cb)(int, int);"},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			assert.Equal(t, tt.want, argumentsToDeclarations(tt.args))
		})
	}
}

func TestCandidatesRanking(t *testing.T) {
	f := newFixture(t, "int other;\nint value;\nint valid;\n")
	f.p.TokenTree().With(func(g *tokentree.Guard) {
		cands := Candidates(g, g.Indices(), "val")
		require.Len(t, cands, 3)
		assert.Equal(t, "valid", cands[0].Name)
		assert.Equal(t, "value", cands[1].Name)
		assert.Equal(t, "other", cands[2].Name)
		assert.Greater(t, cands[0].Score, cands[2].Score)
		assert.Equal(t, types.KindVariable, cands[0].Kind)
	})
}

func TestCleanupSearchScope(t *testing.T) {
	f := newFixture(t, "namespace ns { int v; enum E { A }; }\n")
	f.p.TokenTree().With(func(g *tokentree.Guard) {
		ns := g.FindMatches("ns", true, false, types.KindNamespace).Slice()[0]
		v := g.FindMatches("v", true, false, types.KindVariable).Slice()[0]
		a := g.FindMatches("A", true, false, types.KindEnumerator).Slice()[0]

		scope := types.NewIndexSet(ns, v, a)
		CleanupSearchScope(g, &scope)
		assert.Equal(t, []int{types.GlobalScope, ns}, scope.Slice())
	})
}

func TestStripType(t *testing.T) {
	assert.Equal(t, "int", StripType("int"))
	assert.Equal(t, "std::vector", StripType("const std::vector<int>&"))
	assert.Equal(t, "Widget", StripType("Widget*"))
	assert.Equal(t, "Node", StripType("struct Node * const"))
	assert.Equal(t, "std::map::iterator", StripType("std::map<int, Foo*>::iterator"))
	assert.Empty(t, StripType("void"))
	assert.Empty(t, StripType("auto"))
}
