package editor

// styleText classifies every byte of C/C++ text. It is a single forward pass
// with no lookahead past the current line except for block comments and
// line continuations.
func styleText(text string) []Style {
	styles := make([]Style, len(text))
	state := StyleDefault
	atLineStart := true

	for i := 0; i < len(text); i++ {
		c := text[i]
		var next byte
		if i+1 < len(text) {
			next = text[i+1]
		}

		switch state {
		case StyleDefault, StylePreprocessor:
			switch {
			case c == '/' && next == '/':
				styles[i], styles[i+1] = StyleCommentLine, StyleCommentLine
				i++
				state = StyleCommentLine
				continue
			case c == '/' && next == '*':
				styles[i], styles[i+1] = StyleComment, StyleComment
				i++
				state = StyleComment
				continue
			case c == '"':
				styles[i] = StyleString
				state = StyleString
				continue
			case c == '\'' && !digitSeparator(text, i):
				styles[i] = StyleCharacter
				state = StyleCharacter
				continue
			case c == '#' && atLineStart && state == StyleDefault:
				state = StylePreprocessor
			case c == '\n' && state == StylePreprocessor && !continued(text, i):
				state = StyleDefault
			}
			styles[i] = state

		case StyleComment:
			styles[i] = StyleComment
			if c == '*' && next == '/' {
				styles[i+1] = StyleComment
				i++
				state = StyleDefault
			}

		case StyleCommentLine:
			styles[i] = StyleCommentLine
			if c == '\n' && !continued(text, i) {
				state = StyleDefault
			}

		case StyleString, StyleCharacter:
			styles[i] = state
			quote := byte('"')
			if state == StyleCharacter {
				quote = '\''
			}
			switch {
			case c == '\\' && i+1 < len(text):
				styles[i+1] = state
				i++
			case c == quote:
				state = StyleDefault
			case c == '\n':
				// Unterminated literal ends at the line break.
				styles[i] = StyleDefault
				state = StyleDefault
			}
		}

		if c == '\n' {
			atLineStart = true
		} else if !IsSpace(c) {
			atLineStart = false
		}
	}
	return styles
}

// continued reports whether the newline at i is escaped by a backslash.
func continued(text string, i int) bool {
	j := i - 1
	if j >= 0 && text[j] == '\r' {
		j--
	}
	return j >= 0 && text[j] == '\\'
}

// digitSeparator reports whether the quote at i is a C++14 digit separator.
func digitSeparator(text string, i int) bool {
	if i == 0 || i+1 >= len(text) {
		return false
	}
	prev, next := text[i-1], text[i+1]
	isDigit := func(c byte) bool { return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F' }
	return prev >= '0' && prev <= '9' && isDigit(next)
}
