package types

import "strings"

// GlobalScope is the parent index of tokens declared at file scope.
const GlobalScope = -1

// TokenKind is a bit mask so that lookups can accept several kinds at once.
type TokenKind uint16

const (
	KindUndefined TokenKind = 0

	KindNamespace TokenKind = 1 << iota
	KindClass
	KindEnum
	KindTypedef
	KindConstructor
	KindDestructor
	KindFunction
	KindVariable
	KindEnumerator
	KindMacroDef
	KindMacroUse
)

// Composite masks used by the resolver.
const (
	KindAnyContainer = KindClass | KindNamespace | KindTypedef
	KindAnyFunction  = KindFunction | KindConstructor | KindDestructor | KindMacroDef
	KindAll          = TokenKind(0xFFFF)
)

// Matches reports whether k is covered by mask. KindUndefined in the mask
// position means "any kind".
func (k TokenKind) Matches(mask TokenKind) bool {
	if mask == KindUndefined {
		return true
	}
	return k&mask != 0
}

func (k TokenKind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindClass:
		return "class"
	case KindEnum:
		return "enum"
	case KindTypedef:
		return "typedef"
	case KindConstructor:
		return "constructor"
	case KindDestructor:
		return "destructor"
	case KindFunction:
		return "function"
	case KindVariable:
		return "variable"
	case KindEnumerator:
		return "enumerator"
	case KindMacroDef:
		return "macro"
	case KindMacroUse:
		return "macro-use"
	case KindUndefined:
		return "undefined"
	}
	return "mixed"
}

// ParseKindMask turns a comma separated list of kind names into a mask.
// Unknown names are ignored; an empty list yields KindAll.
func ParseKindMask(s string) TokenKind {
	var mask TokenKind
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "namespace":
			mask |= KindNamespace
		case "class", "struct", "union":
			mask |= KindClass
		case "enum":
			mask |= KindEnum
		case "typedef":
			mask |= KindTypedef
		case "constructor", "ctor":
			mask |= KindConstructor
		case "destructor", "dtor":
			mask |= KindDestructor
		case "function", "func":
			mask |= KindFunction
		case "variable", "var":
			mask |= KindVariable
		case "enumerator":
			mask |= KindEnumerator
		case "macro":
			mask |= KindMacroDef
		case "functions":
			mask |= KindAnyFunction
		case "containers":
			mask |= KindAnyContainer
		}
	}
	if mask == KindUndefined {
		return KindAll
	}
	return mask
}

// TokenScope is the access specifier in effect where the token was declared.
type TokenScope uint8

const (
	ScopeUndefined TokenScope = iota
	ScopePrivate
	ScopeProtected
	ScopePublic
)

func (s TokenScope) String() string {
	switch s {
	case ScopePrivate:
		return "private"
	case ScopeProtected:
		return "protected"
	case ScopePublic:
		return "public"
	}
	return ""
}

// Token is one declared symbol. Line numbers are 1-based; zero means unknown.
type Token struct {
	Index       int
	Name        string
	Kind        TokenKind
	Scope       TokenScope
	ParentIndex int

	// Args holds the raw parameter list including parens for functions and
	// function-like macros. BaseType is the declared type, or the replacement
	// text of a macro.
	Args      string
	BaseType  string
	Ancestors []string

	File          string
	Line          int
	ImplFile      string
	ImplLine      int
	ImplLineStart int
	ImplLineEnd   int

	NamespacePrefix string
	IsTemp          bool
	IsConst         bool
	IsLocal         bool
	// IsScoped marks "enum class" enums whose enumerators need qualification.
	IsScoped bool

	Children IndexSet
}

// NewToken returns a token with no parent and no index assigned yet.
func NewToken(name string, kind TokenKind) *Token {
	return &Token{
		Index:       -1,
		Name:        name,
		Kind:        kind,
		ParentIndex: GlobalScope,
	}
}

// HasChildren reports whether any token names this one as its parent.
func (t *Token) HasChildren() bool {
	return t.Children.Len() > 0
}

// IsFunctionLike reports whether the token carries a callable argument list.
func (t *Token) IsFunctionLike() bool {
	if t.Kind&(KindFunction|KindConstructor|KindDestructor) != 0 {
		return true
	}
	return t.Kind == KindMacroDef && strings.HasPrefix(t.Args, "(")
}

// DisplayName is the name as shown in completion lists.
func (t *Token) DisplayName() string {
	var b strings.Builder
	b.WriteString(t.NamespacePrefix)
	b.WriteString(t.Name)
	if t.IsFunctionLike() {
		b.WriteString(t.Args)
	}
	return b.String()
}

// ContainsLine reports whether line falls inside the implementation range.
func (t *Token) ContainsLine(line int) bool {
	return t.ImplLineStart <= line && line <= t.ImplLineEnd
}

// Unnamed reports whether the token is an anonymous enum/struct/union whose
// members belong to the enclosing scope.
func (t *Token) Unnamed() bool {
	return strings.HasPrefix(t.Name, UnnamedPrefix)
}

// Transparent reports whether the token's children can be named without
// qualifying them by the token: anonymous containers and unscoped enums.
func (t *Token) Transparent() bool {
	if t.Unnamed() {
		return true
	}
	return t.Kind == KindEnum && !t.IsScoped
}

// UnnamedPrefix marks generated names of anonymous containers.
const UnnamedPrefix = "%anon"
