package parser

import (
	"strings"
)

// directive is a parsed preprocessor line.
type directive struct {
	name string
	rest string
}

func parseDirective(text string) directive {
	s := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	name := s
	rest := ""
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			name, rest = s[:i], strings.TrimSpace(s[i:])
			break
		}
	}
	return directive{name: name, rest: rest}
}

// conditional tracks one #if nesting level.
type conditional struct {
	taking    bool
	anyTaken  bool
	parentOff bool
}

// filterConditionals drops lexemes inside inactive #if branches. "#if 0" is
// always honoured; #ifdef, #ifndef and defined() are only evaluated when
// evaluate is set, otherwise every other branch is taken. defined reports
// whether a macro is known before this text; macros defined inside the text
// are tracked as the filter goes.
func filterConditionals(lexemes []Lexeme, evaluate bool, defined func(string) bool) []Lexeme {
	local := make(map[string]bool)
	isDefined := func(name string) bool {
		if v, ok := local[name]; ok {
			return v
		}
		return defined != nil && defined(name)
	}

	var stack []conditional
	active := func() bool {
		return len(stack) == 0 || stack[len(stack)-1].taking
	}

	out := make([]Lexeme, 0, len(lexemes))
	for _, lx := range lexemes {
		if lx.Kind != LexDirective {
			if active() {
				out = append(out, lx)
			}
			continue
		}

		d := parseDirective(lx.Text)
		switch d.name {
		case "if", "ifdef", "ifndef":
			parentOff := !active()
			take := false
			if !parentOff {
				take = evalCondition(d, evaluate, isDefined)
			}
			stack = append(stack, conditional{taking: take, anyTaken: take, parentOff: parentOff})
		case "elif", "elifdef", "elifndef":
			if len(stack) == 0 {
				continue
			}
			top := &stack[len(stack)-1]
			if top.parentOff || top.anyTaken {
				top.taking = false
				continue
			}
			cond := d
			cond.name = strings.TrimPrefix(d.name, "el")
			top.taking = evalCondition(cond, evaluate, isDefined)
			top.anyTaken = top.taking
		case "else":
			if len(stack) == 0 {
				continue
			}
			top := &stack[len(stack)-1]
			top.taking = !top.parentOff && !top.anyTaken
			top.anyTaken = true
		case "endif":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			if !active() {
				continue
			}
			switch d.name {
			case "define":
				if name := macroName(d.rest); name != "" {
					local[name] = true
				}
			case "undef":
				local[strings.TrimSpace(d.rest)] = false
			}
			out = append(out, lx)
		}
	}
	return out
}

func evalCondition(d directive, evaluate bool, defined func(string) bool) bool {
	expr := strings.TrimSpace(d.rest)
	switch d.name {
	case "ifdef":
		return !evaluate || defined(firstWord(expr))
	case "ifndef":
		return !evaluate || !defined(firstWord(expr))
	}

	switch expr {
	case "0", "false":
		return false
	case "1", "true":
		return true
	}
	if !evaluate {
		return true
	}

	// Only the simple forms: defined X, defined(X), !defined(X).
	negate := false
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(expr[1:])
	}
	if strings.HasPrefix(expr, "defined") {
		name := strings.Trim(strings.TrimSpace(strings.TrimPrefix(expr, "defined")), "() \t")
		if isSimpleIdent(name) {
			return defined(name) != negate
		}
	}
	return true
}

func firstWord(s string) string {
	for i := 0; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return s[:i]
		}
	}
	return s
}

func isSimpleIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

// macroName extracts NAME from the text following "#define".
func macroName(rest string) string {
	return firstWord(strings.TrimSpace(rest))
}

// splitMacro splits "#define" text into name, argument list (with parens,
// empty for object-like macros) and replacement text.
func splitMacro(rest string) (name, args, value string) {
	rest = strings.TrimSpace(rest)
	name = firstWord(rest)
	rest = rest[len(name):]
	if strings.HasPrefix(rest, "(") {
		if end := strings.IndexByte(rest, ')'); end >= 0 {
			args = rest[:end+1]
			rest = rest[end+1:]
		}
	}
	value = strings.TrimSpace(rest)
	return name, args, value
}

// include is one #include directive.
type include struct {
	name   string
	global bool
	line   int
}

func parseInclude(rest string, line int) (include, bool) {
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 {
		return include{}, false
	}
	switch rest[0] {
	case '"':
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return include{name: rest[1 : end+1], line: line}, true
		}
	case '<':
		if end := strings.IndexByte(rest, '>'); end > 1 {
			return include{name: rest[1:end], global: true, line: line}, true
		}
	}
	return include{}, false
}
