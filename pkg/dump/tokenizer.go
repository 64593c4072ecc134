package dump

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

var (
	numberRegex      = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	introducerRegex  = regexp.MustCompile(`^(?i)(_[a-z0-9]+|n)\s*$`)
	errTrailingInput = errors.New("unexpected text after string literal")
)

// Tokenize splits the inside of one VALUES tuple into typed scalars.
// The fragment may still carry its outer parentheses; they are removed
// when the first '(' balances the final ')'.
//
// Quoted strings are unescaped: the backslash of an escape sequence is
// dropped and the MySQL meaning of the sequence applied (\n is a newline,
// \' is a quote). A doubled quote inside a literal is a single quote.
// The unquoted keyword NULL, in any case, is the only null; 'NULL' is a
// string. Unquoted text that is not numeric is kept verbatim as a string.
func Tokenize(fragment string) (Tuple, error) {
	s := strings.TrimSpace(fragment)
	if strings.HasPrefix(s, "(") {
		end, err := scanGroup(s, 0)
		if err != nil {
			return nil, err
		}
		if end == len(s)-1 {
			s = s[1:end]
		}
	}
	if strings.TrimSpace(s) == "" {
		return Tuple{}, nil
	}

	var (
		l     lexer
		tuple Tuple
		start int
	)
	for i := range len(s) {
		if l.step(s[i]) {
			if l.depth < 0 {
				return nil, errUnbalancedParens
			}
			if s[i] == ',' && l.depth == 0 {
				v, err := classify(s[start:i])
				if err != nil {
					return nil, err
				}
				tuple = append(tuple, v)
				start = i + 1
			}
		}
	}
	if l.inLiteral() {
		return nil, errUnterminatedString
	}
	if l.depth != 0 {
		return nil, errUnbalancedParens
	}
	v, err := classify(s[start:])
	if err != nil {
		return nil, err
	}
	return append(tuple, v), nil
}

// classify turns one raw token into a Value.
func classify(tok string) (Value, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case tok == "":
		return String(""), nil
	case strings.EqualFold(tok, "NULL"):
		return Null(), nil
	case tok[0] == '\'' || tok[0] == '"':
		return decodeLiteral(tok)
	case numberRegex.MatchString(tok):
		return Number(tok), nil
	}
	if v, ok := decodeHex(tok); ok {
		return v, nil
	}
	if i := strings.IndexAny(tok, `'"`); i > 0 && introducerRegex.MatchString(tok[:i]) {
		// _binary'...', _utf8mb4'...', N'...'
		return decodeLiteral(tok[i:])
	}
	return String(tok), nil
}

// decodeLiteral unescapes a token that must be exactly one quoted literal.
func decodeLiteral(tok string) (Value, error) {
	end, err := skipLiteral(tok, 0)
	if err != nil {
		return Value{}, err
	}
	if end != len(tok) {
		return Value{}, errTrailingInput
	}
	return String(unescape(tok[1:end-1], tok[0])), nil
}

// unescape decodes the body of a literal quoted with q.
func unescape(body string, q byte) string {
	if !strings.ContainsAny(body, `\`+string(q)) {
		return body
	}
	var sb strings.Builder
	sb.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			switch n := body[i]; n {
			case '0':
				sb.WriteByte(0)
			case 'b':
				sb.WriteByte('\b')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'Z':
				sb.WriteByte(0x1a)
			case '%', '_':
				// MySQL keeps the backslash for LIKE wildcards.
				sb.WriteByte('\\')
				sb.WriteByte(n)
			default:
				sb.WriteByte(n)
			}
		case c == q && i+1 < len(body) && body[i+1] == q:
			sb.WriteByte(q)
			i++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// decodeHex decodes 0xABCD and X'ABCD' literals, as written by
// mysqldump --hex-blob.
func decodeHex(tok string) (Value, bool) {
	var digits string
	switch {
	case len(tok) > 2 && (tok[:2] == "0x" || tok[:2] == "0X"):
		digits = tok[2:]
	case len(tok) > 3 && (tok[0] == 'x' || tok[0] == 'X') && tok[1] == '\'' && tok[len(tok)-1] == '\'':
		digits = tok[2 : len(tok)-1]
	default:
		return Value{}, false
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return Value{}, false
	}
	return String(string(b)), true
}
