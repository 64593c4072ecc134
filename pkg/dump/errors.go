package dump

import (
	"errors"
	"fmt"
)

var (
	errExpectedOpenParen  = errors.New("expected '('")
	errUnterminatedString = errors.New("unterminated string literal")
	errUnbalancedParens   = errors.New("unbalanced parentheses")
	errMissingValues      = errors.New("missing VALUES keyword")
	errMissingTable       = errors.New("missing table name")
)

// ParseError is a malformed tuple or statement. The scanner and tokenizer
// return it for input that can be skipped; the run continues with the next
// tuple or statement.
type ParseError struct {
	Line  int    // physical line the statement started on, 0 if unknown
	Table string // empty when the table name could not be read
	Tuple int    // 1-based tuple position within the statement, 0 for statement errors
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Tuple > 0:
		return fmt.Sprintf("line %d: table %q tuple %d: %v", e.Line, e.Table, e.Tuple, e.Err)
	case e.Table != "":
		return fmt.Sprintf("line %d: table %q: %v", e.Line, e.Table, e.Err)
	default:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
