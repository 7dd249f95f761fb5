package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexSetOrdering(t *testing.T) {
	s := NewIndexSet(7, GlobalScope, 3, 7)

	assert.Equal(t, []int{-1, 3, 7}, s.Slice())
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Insert(3), "duplicate insert must report false")

	s.Remove(3)
	assert.False(t, s.Contains(3))

	var other IndexSet
	other.Insert(10)
	s.Union(other)
	assert.Equal(t, []int{-1, 7, 10}, s.Slice())
}

func TestIndexSetZeroValue(t *testing.T) {
	var s IndexSet
	assert.True(t, s.Empty())
	assert.False(t, s.Contains(0))
	assert.Empty(t, s.Slice())
	s.Remove(4)
}

func TestKindMatches(t *testing.T) {
	assert.True(t, KindFunction.Matches(KindAnyFunction))
	assert.True(t, KindMacroDef.Matches(KindAnyFunction))
	assert.False(t, KindVariable.Matches(KindAnyFunction))
	assert.True(t, KindTypedef.Matches(KindAnyContainer))
	assert.True(t, KindVariable.Matches(KindUndefined))
}

func TestParseKindMask(t *testing.T) {
	assert.Equal(t, KindClass|KindFunction, ParseKindMask("class, function"))
	assert.Equal(t, KindAll, ParseKindMask(""))
	assert.Equal(t, KindAnyFunction, ParseKindMask("functions"))
}

func TestDisplayName(t *testing.T) {
	fn := NewToken("Bar", KindFunction)
	fn.NamespacePrefix = "Foo::"
	fn.Args = "(int x)"
	assert.Equal(t, "Foo::Bar(int x)", fn.DisplayName())

	v := NewToken("count", KindVariable)
	v.Args = "(unused)"
	assert.Equal(t, "count", v.DisplayName())

	objMacro := NewToken("VERSION", KindMacroDef)
	objMacro.BaseType = "(3)"
	assert.Equal(t, "VERSION", objMacro.DisplayName())

	fnMacro := NewToken("MAX", KindMacroDef)
	fnMacro.Args = "(a, b)"
	assert.Equal(t, "MAX(a, b)", fnMacro.DisplayName())
}

func TestFileClassifier(t *testing.T) {
	tests := []struct {
		path string
		want FileType
	}{
		{"src/a.cpp", FileSource},
		{"src/a.C", FileSource},
		{"include/a.hpp", FileHeader},
		{"include/a.h", FileHeader},
		{"impl/a.tpp", FileTemplateSource},
		{"README.md", FileOther},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FileTypeOf(tt.path))
		})
	}

	c := &FileClassifier{Overrides: map[string]FileType{"third_party/**": FileOther}}
	assert.Equal(t, FileOther, c.Classify("third_party/zlib/zlib.h"))
	assert.Equal(t, FileHeader, c.Classify("src/zlib.h"))
}

func TestCompanionExtensions(t *testing.T) {
	assert.Contains(t, CompanionExtensions("a.cpp"), ".h")
	assert.Contains(t, CompanionExtensions("a.h"), ".cpp")
	assert.Nil(t, CompanionExtensions("a.txt"))
}
