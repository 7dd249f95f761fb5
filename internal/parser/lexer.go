package parser

import "strings"

// LexKind classifies one lexeme.
type LexKind uint8

const (
	LexEOF LexKind = iota
	LexIdentifier
	LexNumber
	LexString
	LexChar
	LexOperator
	LexPunct
	LexDirective
)

// Lexeme is one token of C/C++ text. Line is 1-based within the lexed text.
type Lexeme struct {
	Kind LexKind
	Text string
	Line int
	Pos  int
}

// Is reports whether the lexeme is the punctuation or operator s.
func (l Lexeme) Is(s string) bool {
	return (l.Kind == LexPunct || l.Kind == LexOperator) && l.Text == s
}

// IsIdent reports whether the lexeme is the identifier s.
func (l Lexeme) IsIdent(s string) bool {
	return l.Kind == LexIdentifier && l.Text == s
}

// Lexer splits C/C++ text into lexemes, dropping comments. Preprocessor
// lines come out as a single LexDirective lexeme with continuations joined.
type Lexer struct {
	input string
	pos   int
	line  int
	bol   bool
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, bol: true}
}

// Tokenize processes the entire input and returns all lexemes followed by an
// EOF lexeme.
func (l *Lexer) Tokenize() []Lexeme {
	var out []Lexeme
	for {
		lx := l.Next()
		out = append(out, lx)
		if lx.Kind == LexEOF {
			return out
		}
	}
}

// Next returns the following lexeme.
func (l *Lexer) Next() Lexeme {
	l.skipWhitespaceAndComments()
	if l.pos >= len(l.input) {
		return Lexeme{Kind: LexEOF, Line: l.line, Pos: len(l.input)}
	}

	start, line := l.pos, l.line
	ch := l.input[l.pos]
	atLineStart := l.bol
	l.bol = false

	switch {
	case ch == '#' && atLineStart:
		return Lexeme{Kind: LexDirective, Text: l.readDirective(), Line: line, Pos: start}
	case ch == '"':
		l.readQuoted('"')
		return Lexeme{Kind: LexString, Text: l.input[start:l.pos], Line: line, Pos: start}
	case ch == '\'':
		l.readQuoted('\'')
		return Lexeme{Kind: LexChar, Text: l.input[start:l.pos], Line: line, Pos: start}
	case isIdentStart(ch):
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		// Raw and prefixed string literals: R"delim(...)delim", L"..", u8"..".
		if l.pos < len(l.input) && l.input[l.pos] == '"' {
			prefix := l.input[start:l.pos]
			if strings.HasSuffix(prefix, "R") {
				l.readRawString()
				return Lexeme{Kind: LexString, Text: l.input[start:l.pos], Line: line, Pos: start}
			}
			if prefix == "L" || prefix == "u" || prefix == "U" || prefix == "u8" {
				l.readQuoted('"')
				return Lexeme{Kind: LexString, Text: l.input[start:l.pos], Line: line, Pos: start}
			}
		}
		return Lexeme{Kind: LexIdentifier, Text: l.input[start:l.pos], Line: line, Pos: start}
	case isDigit(ch) || ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]):
		l.readNumber()
		return Lexeme{Kind: LexNumber, Text: l.input[start:l.pos], Line: line, Pos: start}
	}

	for _, op := range multiCharOps {
		if strings.HasPrefix(l.input[l.pos:], op) {
			l.pos += len(op)
			return Lexeme{Kind: LexOperator, Text: op, Line: line, Pos: start}
		}
	}
	l.pos++
	kind := LexOperator
	if strings.IndexByte("(){}[];,", ch) >= 0 {
		kind = LexPunct
	}
	return Lexeme{Kind: kind, Text: string(ch), Line: line, Pos: start}
}

// multiCharOps is ordered longest first. ">>" is left out so that nested
// template argument lists close one bracket at a time.
var multiCharOps = []string{
	"<<=", ">>=", "->*", "...", "<=>",
	"::", "->", ".*", "++", "--", "<<", "<=", ">=", "==", "!=",
	"&&", "||", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
}

func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.bol = true
	}
	l.pos++
}

func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f' || ch == '\v':
			l.advance()
		case ch == '\\' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '\n' || l.input[l.pos+1] == '\r'):
			l.pos++
		case ch == '/' && l.peek() == '/':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		case ch == '/' && l.peek() == '*':
			l.pos += 2
			for l.pos < len(l.input) && !(l.input[l.pos] == '*' && l.peek() == '/') {
				l.advance()
			}
			if l.pos < len(l.input) {
				l.pos += 2
			}
		default:
			return
		}
	}
}

func (l *Lexer) peek() byte {
	if l.pos+1 < len(l.input) {
		return l.input[l.pos+1]
	}
	return 0
}

// readDirective consumes a preprocessor line and returns it with comments
// removed and continuation lines joined by a space.
func (l *Lexer) readDirective() string {
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\n' {
			break
		}
		if ch == '\\' && (l.peek() == '\n' || l.peek() == '\r') {
			l.pos++
			if l.input[l.pos] == '\r' && l.peek() == '\n' {
				l.pos++
			}
			l.advance()
			b.WriteByte(' ')
			continue
		}
		if ch == '/' && l.peek() == '/' {
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
			break
		}
		if ch == '/' && l.peek() == '*' {
			l.pos += 2
			for l.pos < len(l.input) && !(l.input[l.pos] == '*' && l.peek() == '/') {
				l.advance()
			}
			if l.pos < len(l.input) {
				l.pos += 2
			}
			b.WriteByte(' ')
			continue
		}
		if ch == '"' || ch == '\'' {
			start := l.pos
			l.readQuoted(ch)
			b.WriteString(l.input[start:l.pos])
			continue
		}
		b.WriteByte(ch)
		l.pos++
	}
	return strings.TrimRight(b.String(), " \t\r")
}

func (l *Lexer) readQuoted(quote byte) {
	l.pos++
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			l.pos++
			l.advance()
			continue
		case ch == quote:
			l.pos++
			return
		case ch == '\n':
			// Unterminated literal: stop at the line end.
			return
		}
		l.pos++
	}
}

func (l *Lexer) readRawString() {
	l.pos++ // opening quote
	open := strings.IndexByte(l.input[l.pos:], '(')
	if open < 0 {
		l.readQuoted('"')
		return
	}
	delim := ")" + l.input[l.pos:l.pos+open] + "\""
	l.pos += open + 1
	end := strings.Index(l.input[l.pos:], delim)
	if end < 0 {
		end = len(l.input) - l.pos
	} else {
		end += len(delim)
	}
	for i := 0; i < end; i++ {
		l.advance()
	}
}

func (l *Lexer) readNumber() {
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isIdentChar(ch) || ch == '.' || ch == '\'' {
			l.pos++
			continue
		}
		if (ch == '+' || ch == '-') && l.pos > 0 {
			prev := l.input[l.pos-1] | 0x20
			if prev == 'e' || prev == 'p' {
				l.pos++
				continue
			}
		}
		return
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
