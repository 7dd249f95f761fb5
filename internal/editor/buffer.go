// Package editor defines the text buffer surface the resolver reads from
// and provides Document, an in-memory implementation with a C/C++ lexical
// styler.
package editor

// Style is the lexical class of one character.
type Style uint8

const (
	StyleDefault Style = iota
	StyleComment
	StyleCommentLine
	StyleString
	StyleCharacter
	StylePreprocessor
)

// IsComment reports whether the style is any comment form.
func (s Style) IsComment() bool {
	return s == StyleComment || s == StyleCommentLine
}

// IsString reports whether the style is a string literal.
func (s Style) IsString() bool {
	return s == StyleString
}

// IsCharacter reports whether the style is a character literal.
func (s Style) IsCharacter() bool {
	return s == StyleCharacter
}

// IsCharacterOrString reports whether the style is any literal.
func (s Style) IsCharacterOrString() bool {
	return s == StyleString || s == StyleCharacter
}

// Buffer is what the resolver needs from an editor. Positions are byte
// offsets and lines are 0-based. Every method is read only.
type Buffer interface {
	// Identity distinguishes buffers; it does not change when text changes.
	Identity() uint64
	// Revision increases on every modification.
	Revision() uint64
	Filename() string

	CurrentPos() int
	Length() int
	LineFromPosition(pos int) int
	PositionFromLine(line int) int
	LineEndPosition(line int) int
	TextRange(start, end int) string
	CharAt(pos int) byte
	StyleAt(pos int) Style
	BraceMatch(pos int) int
	WordStartPosition(pos int, onlyWordChars bool) int
	WordEndPosition(pos int, onlyWordChars bool) int
}

// IsWordChar reports whether c can be part of a C/C++ identifier.
func IsWordChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// IsSpace reports whether c is white space as far as the resolver cares.
func IsSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
