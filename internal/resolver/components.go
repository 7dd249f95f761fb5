package resolver

import (
	"strings"

	"github.com/standardbeagle/ccindex/internal/editor"
)

// ComponentKind classifies one link of an expression chain.
type ComponentKind uint8

const (
	ComponentNormal ComponentKind = iota
	ComponentFunction
	ComponentArray
	ComponentTemplate
	ComponentOperator
	// ComponentEnder is the last, possibly partial, link.
	ComponentEnder
)

// Operator joins a component to the next one.
type Operator uint8

const (
	OpNone Operator = iota
	OpDot
	OpArrow
	OpScope
)

func (o Operator) String() string {
	switch o {
	case OpDot:
		return "."
	case OpArrow:
		return "->"
	case OpScope:
		return "::"
	}
	return ""
}

// Component is one link of a chain such as a.b->c::d.
type Component struct {
	Name   string
	Kind   ComponentKind
	Tokens Operator
}

// BreakUpComponents splits the expression that ends at the end of text into
// its links. "obj.member->pa" yields obj(.) member(->) pa, with the last
// marked as the ender. A trailing operator yields an empty ender.
func BreakUpComponents(text string) []Component {
	text = strings.TrimRight(text, " \t\r\n")
	chain := text[chainStart(text):]
	comps := splitChain(chain)
	if len(comps) == 0 {
		return nil
	}
	last := &comps[len(comps)-1]
	if last.Tokens != OpNone {
		comps = append(comps, Component{Kind: ComponentEnder})
	} else {
		last.Kind = ComponentEnder
	}
	return comps
}

// chainStart walks back from the end of s over identifiers, member and scope
// operators, and balanced (), [] and <> groups.
func chainStart(s string) int {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		switch {
		case editor.IsWordChar(c):
			i--
		case c == '.':
			i--
		case c == ':' && i >= 2 && s[i-2] == ':':
			i -= 2
		case c == '>' && i >= 2 && s[i-2] == '-':
			i -= 2
		case c == ')' || c == ']' || c == '>':
			j := matchBackward(s, i-1)
			if j < 0 {
				return i
			}
			i = j
		case c == ' ' || c == '\t':
			j := i - 1
			for j > 0 && (s[j-1] == ' ' || s[j-1] == '\t') {
				j--
			}
			if !joinsAcrossSpace(s, j, i) {
				return i
			}
			i = j
		default:
			return i
		}
	}
	return 0
}

// joinsAcrossSpace reports whether the blank run s[from:to] sits next to a
// member or scope operator, as in "a . b" or "std:: vector".
func joinsAcrossSpace(s string, from, to int) bool {
	if to < len(s) {
		switch {
		case s[to] == '.':
			return from > 0
		case strings.HasPrefix(s[to:], "->"), strings.HasPrefix(s[to:], "::"):
			return from > 0
		}
	}
	if from > 0 {
		switch {
		case s[from-1] == '.':
			return true
		case from >= 2 && (s[from-2:from] == "->" || s[from-2:from] == "::"):
			return true
		}
	}
	return false
}

func matchBackward(s string, closeAt int) int {
	closing := s[closeAt]
	var opening byte
	switch closing {
	case ')':
		opening = '('
	case ']':
		opening = '['
	case '>':
		opening = '<'
	default:
		return -1
	}
	depth := 0
	for i := closeAt; i >= 0; i-- {
		switch s[i] {
		case closing:
			if closing == '>' && i > 0 && s[i-1] == '-' {
				continue
			}
			depth++
		case opening:
			depth--
			if depth == 0 {
				return i
			}
		case ';', '{', '}':
			return -1
		}
	}
	return -1
}

func matchForward(s string, openAt int) int {
	opening := s[openAt]
	var closing byte
	switch opening {
	case '(':
		closing = ')'
	case '[':
		closing = ']'
	case '<':
		closing = '>'
	default:
		return -1
	}
	depth := 0
	for i := openAt; i < len(s); i++ {
		switch s[i] {
		case opening:
			depth++
		case closing:
			if closing == '>' && i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitChain(s string) []Component {
	var comps []Component
	i := 0
	skip := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}
	for {
		skip()
		if i >= len(s) {
			return comps
		}
		switch {
		case s[i] == '(':
			j := matchForward(s, i)
			if j < 0 {
				return comps
			}
			comps = append(comps, groupComponents(s[i+1:j])...)
			i = j + 1
		case editor.IsWordChar(s[i]):
			start := i
			for i < len(s) && editor.IsWordChar(s[i]) {
				i++
			}
			c := Component{Name: s[start:i]}
			if c.Name == "operator" {
				opStart := i
				for i < len(s) && strings.IndexByte("+-*/%^&|~!=<>[]()", s[i]) >= 0 && !strings.HasPrefix(s[i:], "->") {
					i++
				}
				c.Name += s[opStart:i]
				c.Kind = ComponentOperator
			}
			skip()
			for i < len(s) && (s[i] == '<' || s[i] == '(' || s[i] == '[') && c.Kind != ComponentOperator {
				j := matchForward(s, i)
				if j < 0 {
					break
				}
				switch s[i] {
				case '<':
					c.Kind = ComponentTemplate
				case '(':
					c.Kind = ComponentFunction
				case '[':
					c.Kind = ComponentArray
				}
				i = j + 1
				skip()
			}
			comps = append(comps, c)
		case strings.HasPrefix(s[i:], "::") && len(comps) == 0:
			// leading :: names the global scope
			comps = append(comps, Component{})
		default:
			if len(comps) == 0 {
				i++
				continue
			}
		}
		skip()
		if len(comps) == 0 {
			continue
		}
		last := &comps[len(comps)-1]
		switch {
		case strings.HasPrefix(s[i:], "::"):
			last.Tokens = OpScope
			i += 2
		case strings.HasPrefix(s[i:], "->"):
			last.Tokens = OpArrow
			i += 2
		case strings.HasPrefix(s[i:], "."):
			last.Tokens = OpDot
			i++
		default:
			if i < len(s) && !editor.IsWordChar(s[i]) && s[i] != '(' {
				i++
			}
		}
	}
}

// groupComponents turns a parenthesised group into links. A C style cast
// such as ((Foo*)p) resolves through the cast type.
func groupComponents(inner string) []Component {
	inner = strings.TrimSpace(inner)
	if strings.HasPrefix(inner, "(") {
		if j := matchForward(inner, 0); j > 0 {
			if name := StripType(inner[1:j]); name != "" {
				return qualifiedComponents(name)
			}
		}
	}
	comps := splitChain(inner)
	for i := range comps {
		if comps[i].Kind == ComponentEnder {
			comps[i].Kind = ComponentNormal
		}
	}
	return comps
}

func qualifiedComponents(name string) []Component {
	parts := strings.Split(name, "::")
	comps := make([]Component, 0, len(parts))
	for i, p := range parts {
		c := Component{Name: p, Tokens: OpScope}
		if i == len(parts)-1 {
			c.Tokens = OpNone
		}
		comps = append(comps, c)
	}
	return comps
}
