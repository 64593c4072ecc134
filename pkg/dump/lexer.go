package dump

// lexer tracks whether the current position of a SQL text is inside a
// quoted literal or a parenthesized group. It is shared by the scanner
// (statement and tuple boundaries) and the tokenizer (value boundaries),
// so both agree on what a string literal is.
//
// The lexer is fed one byte at a time and keeps its state between calls,
// which lets the scanner carry it across physical lines.
type lexer struct {
	quote   byte // opening quote of the literal we are in, 0 outside literals
	escaped bool // previous byte was a backslash inside a literal
	closed  byte // quote that closed the previous literal; a repeat reopens it ('' escape)
	depth   int  // parenthesis depth outside literals
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"' || c == '`'
}

// step consumes c and reports whether c is structural, i.e. outside any
// literal. Parentheses update depth before step returns.
func (l *lexer) step(c byte) bool {
	if l.quote != 0 {
		switch {
		case l.escaped:
			l.escaped = false
		case c == '\\' && l.quote != '`':
			l.escaped = true
		case c == l.quote:
			l.closed = l.quote
			l.quote = 0
		}
		return false
	}
	if l.closed != 0 {
		q := l.closed
		l.closed = 0
		if c == q {
			l.quote = q
			return false
		}
	}
	switch {
	case isQuote(c):
		l.quote = c
		return false
	case c == '(':
		l.depth++
	case c == ')':
		l.depth--
	}
	return true
}

// inLiteral reports whether the lexer stopped inside an unterminated literal.
func (l *lexer) inLiteral() bool {
	return l.quote != 0
}

// reset clears all state.
func (l *lexer) reset() {
	*l = lexer{}
}

// scanGroup returns the index of the ')' balancing the '(' at s[start].
// Parentheses inside string literals are ignored.
func scanGroup(s string, start int) (int, error) {
	if start >= len(s) || s[start] != '(' {
		return -1, errExpectedOpenParen
	}
	var l lexer
	for i := start; i < len(s); i++ {
		if l.step(s[i]) && s[i] == ')' && l.depth == 0 {
			return i, nil
		}
	}
	if l.inLiteral() {
		return -1, errUnterminatedString
	}
	return -1, errUnbalancedParens
}

// skipLiteral returns the index just past the literal opened by the quote at
// s[start]. A doubled quote does not terminate the literal.
func skipLiteral(s string, start int) (int, error) {
	var l lexer
	l.step(s[start])
	for i := start + 1; i < len(s); i++ {
		l.step(s[i])
		if l.quote == 0 {
			if i+1 < len(s) && s[i+1] == s[start] {
				continue // doubled quote, the next step reopens the literal
			}
			return i + 1, nil
		}
	}
	return -1, errUnterminatedString
}
