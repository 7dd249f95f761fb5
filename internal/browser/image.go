package browser

import "github.com/standardbeagle/ccindex/internal/types"

// Image is an index into the symbol browser's image list.
type Image int

// The order follows the classic browser strip: folders first, then one block
// per kind with a private/protected/public variant.
const (
	ImageNone Image = iota - 1
	ImageClassFolder
	ImageClass
	ImageClassPrivate
	ImageClassProtected
	ImageClassPublic
	ImageCtorPrivate
	ImageCtorProtected
	ImageCtorPublic
	ImageDtorPrivate
	ImageDtorProtected
	ImageDtorPublic
	ImageFuncPrivate
	ImageFuncProtected
	ImageFuncPublic
	ImageVarPrivate
	ImageVarProtected
	ImageVarPublic
	ImageMacroDef
	ImageEnum
	ImageEnumPrivate
	ImageEnumProtected
	ImageEnumPublic
	ImageEnumerator
	ImageNamespace
	ImageTypedef
	ImageTypedefPrivate
	ImageTypedefProtected
	ImageTypedefPublic
	ImageSymbolsFolder
	ImageVarsFolder
	ImageFuncsFolder
	ImageEnumsFolder
	ImageMacroDefFolder
	ImageOthersFolder
	ImageTypedefFolder
	ImageMacroUse
	ImageMacroUsePrivate
	ImageMacroUseProtected
	ImageMacroUsePublic
	ImageMacroUseFolder
)

// scoped picks the variant of a private/protected/public triple.
func scoped(private Image, scope types.TokenScope) Image {
	switch scope {
	case types.ScopePrivate:
		return private
	case types.ScopeProtected:
		return private + 1
	default:
		return private + 2
	}
}

// ImageIndex maps a token to the image shown next to it.
func ImageIndex(tok *types.Token) Image {
	if tok == nil {
		return ImageNone
	}
	switch tok.Kind {
	case types.KindMacroDef:
		return ImageMacroDef
	case types.KindMacroUse:
		return scoped(ImageMacroUsePrivate, tok.Scope)
	case types.KindEnum:
		if tok.Scope == types.ScopeUndefined {
			return ImageEnum
		}
		return scoped(ImageEnumPrivate, tok.Scope)
	case types.KindEnumerator:
		return ImageEnumerator
	case types.KindClass:
		if tok.Scope == types.ScopeUndefined {
			return ImageClass
		}
		return scoped(ImageClassPrivate, tok.Scope)
	case types.KindNamespace:
		return ImageNamespace
	case types.KindTypedef:
		if tok.Scope == types.ScopeUndefined {
			return ImageTypedef
		}
		return scoped(ImageTypedefPrivate, tok.Scope)
	case types.KindConstructor:
		return scoped(ImageCtorPrivate, tok.Scope)
	case types.KindDestructor:
		return scoped(ImageDtorPrivate, tok.Scope)
	case types.KindFunction:
		return scoped(ImageFuncPrivate, tok.Scope)
	case types.KindVariable:
		return scoped(ImageVarPrivate, tok.Scope)
	}
	return ImageNone
}
