package parser

import "strings"

// ParseBufferForUsingNamespace returns the namespaces named by "using
// namespace" directives in buffer, in the order they appear. With skipBlocks,
// directives inside braces other than namespace and extern "C" bodies are
// ignored.
func ParseBufferForUsingNamespace(buffer string, skipBlocks bool) []string {
	lexemes := filterConditionals(NewLexer(buffer).Tokenize(), false, nil)

	var (
		result      []string
		blocks      []bool // true for namespace-like braces
		transparent bool
	)
	opaqueDepth := func() bool {
		for _, ns := range blocks {
			if !ns {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(lexemes); i++ {
		lx := lexemes[i]
		switch {
		case lx.IsIdent("namespace"):
			transparent = true
		case lx.IsIdent("extern") && i+1 < len(lexemes) && lexemes[i+1].Kind == LexString:
			transparent = true
		case lx.Is(";"):
			transparent = false
		case lx.Is("{"):
			blocks = append(blocks, transparent)
			transparent = false
		case lx.Is("}"):
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
		case lx.IsIdent("using") && i+1 < len(lexemes) && lexemes[i+1].IsIdent("namespace"):
			var parts []string
			j := i + 2
			for ; j < len(lexemes) && !lexemes[j].Is(";"); j++ {
				if lexemes[j].Kind == LexIdentifier {
					parts = append(parts, lexemes[j].Text)
				} else if !lexemes[j].Is("::") {
					parts = nil
					break
				}
			}
			i = j
			if j < len(lexemes) && !lexemes[j].Is(";") {
				i = j - 1
			}
			if len(parts) == 0 || skipBlocks && opaqueDepth() {
				continue
			}
			result = append(result, strings.Join(parts, "::"))
		}
	}
	return result
}
