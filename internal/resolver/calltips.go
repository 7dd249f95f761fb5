package resolver

import (
	"sort"
	"strings"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// ParsingMessage is the single call tip shown while the parser is busy.
const ParsingMessage = "Parsing at the moment..."

// GetCallTips returns the signatures that apply to the call the caret is
// in, the number of commas already typed in that call, and the end of the
// called name (-1 when the caret is not inside a call). Tips longer than
// charsPerLine are wrapped after commas; 0 disables wrapping.
func (s *Session) GetCallTips(sd SearchData, charsPerLine, caretPos int) (items []string, typedCommas, callTipStart int) {
	if !s.parser.Done() {
		return []string{ParsingMessage}, 0, -1
	}
	pos, ok := sd.caret(caretPos)
	if !ok {
		return nil, 0, -1
	}
	buf := sd.Buffer

	nest := 0
	found := false
	for pos > 0 && !found {
		pos--
		if st := buf.StyleAt(pos); st.IsComment() || st.IsCharacterOrString() {
			continue
		}
		switch buf.CharAt(pos) {
		case ';':
			return nil, 0, -1
		case '{', '}':
			if nest == 0 {
				return nil, 0, -1
			}
		case ',':
			if nest == 0 {
				typedCommas++
			}
		case ')':
			nest--
		case '(':
			nest++
			if nest > 0 {
				found = true
			}
		}
	}
	if !found {
		return nil, 0, -1
	}

	for pos > 0 {
		pos--
		if c := buf.CharAt(pos); c <= ' ' || buf.StyleAt(pos).IsComment() {
			continue
		}
		break
	}
	start := buf.WordStartPosition(pos, true)
	end := buf.WordEndPosition(pos, true)
	if buf.TextRange(start, end) == "" {
		return nil, 0, -1
	}

	var result types.IndexSet
	s.MarkItemsByAI(sd, &result, true, false, true, end)

	g := s.parser.TokenTree().Lock()
	defer g.Unlock()
	seen := map[string]bool{}
	for _, idx := range result.Slice() {
		for _, tip := range ComputeCallTip(g, idx) {
			tip = wrapCallTip(tip, charsPerLine)
			if !seen[tip] {
				seen[tip] = true
				items = append(items, tip)
			}
		}
	}
	sort.Strings(items)
	debug.LogResolver("GetCallTips: %d tip(s), %d comma(s)\n", len(items), typedCommas)
	return items, typedCommas, end
}

// ComputeCallTip renders the call signatures of the token at idx. A class
// yields its constructors and a macro whose value names a function yields
// that function's signatures.
func ComputeCallTip(g *tokentree.Guard, idx int) []string {
	tok := g.At(idx)
	if tok == nil {
		return nil
	}
	switch tok.Kind {
	case types.KindFunction, types.KindConstructor, types.KindDestructor:
		return []string{signature(tok)}
	case types.KindClass:
		var tips []string
		for _, child := range g.Children(idx) {
			if c := g.At(child); c != nil && c.Kind == types.KindConstructor {
				tips = append(tips, signature(c))
			}
		}
		return tips
	case types.KindTypedef:
		if strings.HasPrefix(tok.Args, "(") {
			return []string{signature(tok)}
		}
	case types.KindMacroDef:
		if tok.IsFunctionLike() {
			return []string{tok.Name + tok.Args}
		}
		if isIdentifier(tok.BaseType) && tok.BaseType != tok.Name {
			var tips []string
			for _, target := range GenerateResultSet(g, tok.BaseType, types.GlobalScope, true, false, types.KindFunction).Slice() {
				tips = append(tips, ComputeCallTip(g, target)...)
			}
			return tips
		}
	}
	return nil
}

func signature(tok *types.Token) string {
	args := tok.Args
	if args == "" {
		args = "()"
	}
	s := tok.Name + args
	if tok.BaseType != "" && tok.Kind != types.KindConstructor && tok.Kind != types.KindDestructor {
		s = tok.BaseType + " " + s
	}
	if tok.IsConst {
		s += " const"
	}
	return s
}

func wrapCallTip(tip string, width int) string {
	if width <= 0 || len(tip) <= width {
		return tip
	}
	var b strings.Builder
	lineLen := 0
	for _, part := range strings.SplitAfter(tip, ", ") {
		if lineLen > 0 && lineLen+len(part) > width {
			b.WriteString("\n")
			lineLen = 0
		}
		b.WriteString(part)
		lineLen += len(part)
	}
	return b.String()
}
