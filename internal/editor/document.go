package editor

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

var documentSeq atomic.Uint64

// Document is an in-memory Buffer. It is safe for concurrent readers; writes
// must not race with a query that is reading it.
type Document struct {
	mu       sync.RWMutex
	id       uint64
	filename string
	text     string
	caret    int
	revision uint64

	lineStarts []int
	styles     []Style
}

// NewDocument creates a document holding text with the caret at the end.
func NewDocument(filename, text string) *Document {
	seq := documentSeq.Add(1)
	d := &Document{
		id:       xxhash.Sum64String(fmt.Sprintf("%s#%d", filename, seq)),
		filename: filename,
	}
	d.setText(text)
	d.caret = len(text)
	return d
}

// OpenDocument reads filename from disk.
func OpenDocument(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewDocument(filename, string(data)), nil
}

func (d *Document) setText(text string) {
	d.text = text
	d.lineStarts = computeLineStarts(text)
	d.styles = styleText(text)
}

// SetText replaces the whole content.
func (d *Document) SetText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setText(text)
	d.revision++
	if d.caret > len(text) {
		d.caret = len(text)
	}
}

// Insert places s at pos and moves the caret after it.
func (d *Document) Insert(pos int, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pos < 0 || pos > len(d.text) {
		return
	}
	d.setText(d.text[:pos] + s + d.text[pos:])
	d.revision++
	d.caret = pos + len(s)
}

// SetCurrentPos moves the caret. Out of range values are kept as is so that
// queries can observe and reject them.
func (d *Document) SetCurrentPos(pos int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caret = pos
}

// Text returns the whole content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// ContentHash hashes the current text.
func (d *Document) ContentHash() uint64 {
	return xxhash.Sum64String(d.Text())
}

// PositionFromLineColumn converts a 1-based line and column to an offset.
func (d *Document) PositionFromLineColumn(line, col int) int {
	start := d.PositionFromLine(line - 1)
	if start < 0 {
		return -1
	}
	pos := start + col - 1
	if end := d.LineEndPosition(line - 1); pos > end {
		pos = end
	}
	return pos
}

func (d *Document) Identity() uint64 { return d.id }

func (d *Document) Filename() string { return d.filename }

func (d *Document) Revision() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.revision
}

func (d *Document) CurrentPos() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caret
}

func (d *Document) Length() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.text)
}

func (d *Document) LineFromPosition(pos int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos < 0 {
		return 0
	}
	return sort.SearchInts(d.lineStarts, pos+1) - 1
}

// PositionFromLine returns the offset of the first character of line, -1 for
// a negative line and the text length past the last line.
func (d *Document) PositionFromLine(line int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if line < 0 {
		return -1
	}
	if line >= len(d.lineStarts) {
		return len(d.text)
	}
	return d.lineStarts[line]
}

// LineEndPosition returns the offset just before the line terminator.
func (d *Document) LineEndPosition(line int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if line < 0 {
		return -1
	}
	if line+1 >= len(d.lineStarts) {
		return len(d.text)
	}
	end := d.lineStarts[line+1] - 1
	if end > 0 && d.text[end-1] == '\r' {
		end--
	}
	return end
}

func (d *Document) TextRange(start, end int) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if start < 0 {
		start = 0
	}
	if end > len(d.text) {
		end = len(d.text)
	}
	if start >= end {
		return ""
	}
	return d.text[start:end]
}

// CharAt returns 0 outside the text.
func (d *Document) CharAt(pos int) byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos < 0 || pos >= len(d.text) {
		return 0
	}
	return d.text[pos]
}

func (d *Document) StyleAt(pos int) Style {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos < 0 || pos >= len(d.styles) {
		return StyleDefault
	}
	return d.styles[pos]
}

// BraceMatch finds the partner of the brace at pos, ignoring braces in
// comments and literals. It returns -1 when there is none.
func (d *Document) BraceMatch(pos int) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos < 0 || pos >= len(d.text) {
		return -1
	}
	open, close, forward := bracePair(d.text[pos])
	if open == 0 {
		return -1
	}
	style := d.styles[pos]
	depth := 0
	step := 1
	if !forward {
		step = -1
	}
	for i := pos; i >= 0 && i < len(d.text); i += step {
		if d.styles[i] != style {
			continue
		}
		switch d.text[i] {
		case open:
			depth++
		case close:
			depth--
		}
		if depth == 0 {
			return i
		}
	}
	return -1
}

func (d *Document) WordStartPosition(pos int, onlyWordChars bool) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos > len(d.text) {
		pos = len(d.text)
	}
	for pos > 0 && d.wordClassMatch(d.text[pos-1], onlyWordChars) {
		pos--
	}
	return pos
}

func (d *Document) WordEndPosition(pos int, onlyWordChars bool) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if pos < 0 {
		pos = 0
	}
	for pos < len(d.text) && d.wordClassMatch(d.text[pos], onlyWordChars) {
		pos++
	}
	return pos
}

func (d *Document) wordClassMatch(c byte, onlyWordChars bool) bool {
	if onlyWordChars {
		return IsWordChar(c)
	}
	return !IsSpace(c)
}

// bracePair returns the brace opening the search direction, its partner,
// and whether the search runs forward.
func bracePair(c byte) (open, close byte, forward bool) {
	switch c {
	case '(':
		return '(', ')', true
	case '[':
		return '[', ']', true
	case '{':
		return '{', '}', true
	case '<':
		return '<', '>', true
	case ')':
		return ')', '(', false
	case ']':
		return ']', '[', false
	case '}':
		return '}', '{', false
	case '>':
		return '>', '<', false
	}
	return 0, 0, false
}

func computeLineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}
