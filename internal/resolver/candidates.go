package resolver

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/ccindex/internal/browser"
	"github.com/standardbeagle/ccindex/internal/tokentree"
	"github.com/standardbeagle/ccindex/internal/types"
)

// Candidate is one entry of a completion list.
type Candidate struct {
	Index   int
	Name    string
	Display string
	Kind    types.TokenKind
	Image   browser.Image
	Score   float32

	prefix bool
}

// Candidates turns a result set into a ranked completion list: names that
// start with typed first, then by Jaro-Winkler similarity, then by name.
func Candidates(g *tokentree.Guard, set types.IndexSet, typed string) []Candidate {
	lowerTyped := strings.ToLower(typed)
	out := make([]Candidate, 0, set.Len())
	for _, idx := range set.Slice() {
		tok := g.At(idx)
		if tok == nil {
			continue
		}
		lower := strings.ToLower(tok.Name)
		c := Candidate{
			Index:   idx,
			Name:    tok.Name,
			Display: tok.DisplayName(),
			Kind:    tok.Kind,
			Image:   browser.ImageIndex(tok),
			prefix:  strings.HasPrefix(lower, lowerTyped),
		}
		if typed != "" {
			if score, err := edlib.StringsSimilarity(lowerTyped, lower, edlib.JaroWinkler); err == nil {
				c.Score = score
			}
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Index < b.Index
	})
	return out
}
