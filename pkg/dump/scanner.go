package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/block/dumpimport/pkg/statement"
)

var (
	insertRegex      = regexp.MustCompile(`(?is)^\s*(?:INSERT(?:\s+(?:LOW_PRIORITY|DELAYED|HIGH_PRIORITY))?(?:\s+IGNORE)?|REPLACE(?:\s+(?:LOW_PRIORITY|DELAYED))?)\s+INTO\s+`)
	createTableRegex = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:TEMPORARY\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?`)
	valuesRegex      = regexp.MustCompile(`(?is)^\s*VALUES?\b`)
	onDuplicateRegex = regexp.MustCompile(`(?is)^\s*ON\s+DUPLICATE\s+KEY\s+UPDATE\b`)
)

// Statement is one INSERT statement of a dump.
type Statement struct {
	Table   string
	Columns ColumnList
	Tuples  []string // raw "(...)" fragments, in order
	Line    int      // physical line the statement started on
}

// Tuple tokenizes the i-th tuple fragment. Errors are *ParseError.
func (s *Statement) Tuple(i int) (Tuple, error) {
	t, err := Tokenize(s.Tuples[i])
	if err != nil {
		return nil, &ParseError{Line: s.Line, Table: s.Table, Tuple: i + 1, Err: err}
	}
	return t, nil
}

type stmtKind int

const (
	kindUndecided stmtKind = iota
	kindInsert
	kindCreateTable
	kindOther
)

// Scanner reads INSERT statements from a dump one at a time. Statements
// may span any number of physical lines; a statement ends at the first ';'
// outside string literals and parentheses.
//
// Only one statement is held in memory at a time. Statements of other
// kinds, and INSERTs into tables excluded by WithTables, are read past
// without being buffered.
type Scanner struct {
	r       *bufio.Reader
	line    int
	pending string // text after the last ';' of the current line
	eof     bool

	tables  map[string]struct{} // lower-cased filter, nil accepts all tables
	schemas map[string][]string // lower-cased table -> CREATE TABLE columns

	// state of the statement being read
	buf       strings.Builder
	lex       lexer
	kind      stmtKind
	discard   bool
	startLine int
	inComment bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithTables restricts the scanner to INSERTs into the named tables,
// compared case-insensitively. Other INSERTs are skipped without error.
func WithTables(names ...string) Option {
	return func(s *Scanner) {
		s.tables = make(map[string]struct{}, len(names))
		for _, name := range names {
			s.tables[strings.ToLower(name)] = struct{}{}
		}
	}
}

// NewScanner returns a scanner reading from r.
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		r:       bufio.NewReaderSize(r, 1<<20),
		schemas: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Line returns the number of physical lines read so far.
func (s *Scanner) Line() int {
	return s.line
}

// Next returns the next INSERT statement. It returns io.EOF when the dump
// is exhausted. A *ParseError is not fatal: the offending statement has
// been consumed and Next may be called again. Any other error comes from
// the underlying reader.
func (s *Scanner) Next() (*Statement, error) {
	for {
		text, fresh, err := s.nextText()
		if err != nil {
			if errors.Is(err, io.EOF) && s.buf.Len() > 0 && !s.discard {
				return s.finishUnterminated()
			}
			return nil, err
		}
		if fresh && s.lex.inLiteral() && startsStatement(text) {
			// A string literal left open at the end of the previous line
			// would otherwise swallow the rest of the dump. A line that
			// starts a new statement means the open literal was malformed.
			s.pending = text
			if err := s.abandon(); err != nil {
				return nil, err
			}
			continue
		}
		if s.kind == kindUndecided && s.buf.Len() == 0 {
			text = s.skipPreamble(text)
			if text == "" {
				continue
			}
			s.startLine = s.line
			s.lex.reset()
		}
		end := s.feed(text)
		if end < 0 {
			continue
		}
		s.pending = text[end+1:]
		stmt, err := s.complete()
		if err != nil || stmt != nil {
			return stmt, err
		}
	}
}

// nextText returns leftover text from the current line, or the next
// line. fresh is true for a newly read line.
func (s *Scanner) nextText() (text string, fresh bool, err error) {
	if s.pending != "" {
		text = s.pending
		s.pending = ""
		return text, false, nil
	}
	if s.eof {
		return "", false, io.EOF
	}
	text, err = s.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, err
		}
		s.eof = true
		if text == "" {
			return "", false, io.EOF
		}
	}
	s.line++
	return text, true, nil
}

func startsStatement(text string) bool {
	return insertRegex.MatchString(text) || createTableRegex.MatchString(text)
}

// abandon drops the statement being read. It returns a *ParseError when
// the statement would have been returned to the caller.
func (s *Scanner) abandon() error {
	var err error
	if !s.discard && s.buf.Len() > 0 {
		table := ""
		if loc := insertRegex.FindStringIndex(s.buf.String()); loc != nil {
			table, _, _ = readTableName(s.buf.String(), loc[1])
		}
		err = &ParseError{Line: s.startLine, Table: table, Err: errUnterminatedString}
	}
	s.buf.Reset()
	s.kind = kindUndecided
	s.discard = false
	s.lex.reset()
	return err
}

// skipPreamble strips blank lines and comments found between statements.
func (s *Scanner) skipPreamble(text string) string {
	for {
		if s.inComment {
			i := strings.Index(text, "*/")
			if i < 0 {
				return ""
			}
			s.inComment = false
			text = text[i+2:]
		}
		trimmed := strings.TrimLeft(text, " \t\r\n")
		switch {
		case trimmed == "", trimmed == ";":
			return ""
		case strings.HasPrefix(trimmed, "--"), strings.HasPrefix(trimmed, "#"):
			return ""
		case strings.HasPrefix(trimmed, "/*!"):
			// Conditional comments are executable statements in MySQL
			// (SET, LOCK TABLES, ...). Read them like any other statement.
			return trimmed
		case strings.HasPrefix(trimmed, "/*"):
			s.inComment = true
			text = trimmed[2:]
		default:
			return trimmed
		}
	}
}

// feed adds text to the current statement and returns the index of the
// terminating ';' in text, or -1.
func (s *Scanner) feed(text string) int {
	end := -1
	for i := range len(text) {
		if s.lex.step(text[i]) && text[i] == ';' && s.lex.depth <= 0 {
			end = i
			break
		}
	}
	chunk := text
	if end >= 0 {
		chunk = text[:end]
	}
	if !s.discard {
		s.buf.WriteString(chunk)
	}
	if s.kind == kindUndecided {
		s.decide()
	}
	return end
}

// decide classifies the statement once enough of it has been read, so that
// statements we do not need are not buffered.
func (s *Scanner) decide() {
	text := s.buf.String()
	switch {
	case insertRegex.MatchString(text):
		loc := insertRegex.FindStringIndex(text)
		table, _, ok := readTableName(text, loc[1])
		if !ok {
			return // table name continues on the next line
		}
		s.kind = kindInsert
		if !s.accepts(table) {
			s.discard = true
		}
	case createTableRegex.MatchString(text):
		loc := createTableRegex.FindStringIndex(text)
		table, _, ok := readTableName(text, loc[1])
		if !ok {
			return
		}
		s.kind = kindCreateTable
		if !s.accepts(table) {
			s.discard = true
		}
	default:
		if word, ok := leadingWord(text); ok && !isStatementKeyword(word) {
			s.kind = kindOther
			s.discard = true
		}
	}
	if s.discard {
		s.buf.Reset()
	}
}

// leadingWord returns the first keyword of text. ok is false while the
// word may still continue.
func leadingWord(text string) (string, bool) {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(trimmed, "/*") {
		return "/*", true
	}
	j := 0
	for j < len(trimmed) && isIdentByte(trimmed[j]) {
		j++
	}
	if j == len(trimmed) {
		return "", false
	}
	return strings.ToUpper(trimmed[:j]), true
}

func isStatementKeyword(word string) bool {
	return word == "INSERT" || word == "REPLACE" || word == "CREATE"
}

func (s *Scanner) accepts(table string) bool {
	if s.tables == nil {
		return true
	}
	_, ok := s.tables[strings.ToLower(table)]
	return ok
}

// complete turns the buffered statement into a result and resets the
// per-statement state. It returns nil, nil for statements that are not
// returned to the caller.
func (s *Scanner) complete() (*Statement, error) {
	text, kind, discard, line := s.buf.String(), s.kind, s.discard, s.startLine
	s.buf.Reset()
	s.kind = kindUndecided
	s.discard = false
	s.lex.reset()

	if discard || strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if kind == kindUndecided {
		// short statements are classified only when they end
		if insertRegex.MatchString(text) {
			kind = kindInsert
		} else if createTableRegex.MatchString(text) {
			kind = kindCreateTable
		}
	}
	switch kind {
	case kindInsert:
		stmt, err := s.parseInsert(text, line)
		if stmt != nil && !s.accepts(stmt.Table) {
			return nil, nil
		}
		return stmt, err
	case kindCreateTable:
		ct, err := statement.ParseCreateTable(text)
		if err != nil {
			return nil, &ParseError{Line: line, Err: err}
		}
		if s.accepts(ct.TableName) {
			s.schemas[strings.ToLower(ct.TableName)] = ct.Columns
		}
	}
	return nil, nil
}

// finishUnterminated handles a dump whose last statement has no ';'.
func (s *Scanner) finishUnterminated() (*Statement, error) {
	if s.lex.inLiteral() {
		return nil, s.abandon()
	}
	stmt, err := s.complete()
	if err != nil || stmt != nil {
		return stmt, err
	}
	return nil, io.EOF
}

// parseInsert splits an INSERT statement (without its ';') into table,
// columns and tuple fragments.
func (s *Scanner) parseInsert(text string, line int) (*Statement, error) {
	loc := insertRegex.FindStringIndex(text)
	table, i, ok := readTableName(text, loc[1])
	if !ok {
		return nil, &ParseError{Line: line, Err: errMissingTable}
	}
	stmt := &Statement{Table: table, Line: line}
	fail := func(err error) (*Statement, error) {
		return nil, &ParseError{Line: line, Table: table, Err: err}
	}

	i = skipSpace(text, i)
	if i < len(text) && text[i] == '(' {
		end, err := scanGroup(text, i)
		if err != nil {
			return fail(fmt.Errorf("column list: %w", err))
		}
		stmt.Columns = splitColumns(text[i+1 : end])
		i = end + 1
	} else if cols, ok := s.schemas[strings.ToLower(table)]; ok {
		stmt.Columns = append(ColumnList(nil), cols...)
	} else {
		return fail(errors.New("no column list and no CREATE TABLE seen for table"))
	}

	loc = valuesRegex.FindStringIndex(text[i:])
	if loc == nil {
		return fail(errMissingValues)
	}
	i += loc[1]
	for {
		i = skipSpace(text, i)
		if i < len(text) && text[i] == ',' {
			i++
			continue
		}
		if i >= len(text) || onDuplicateRegex.MatchString(text[i:]) {
			break
		}
		if text[i] != '(' {
			return fail(fmt.Errorf("unexpected %q after tuple %d", text[i], len(stmt.Tuples)))
		}
		end, err := scanGroup(text, i)
		if err != nil {
			return fail(fmt.Errorf("tuple %d: %w", len(stmt.Tuples)+1, err))
		}
		stmt.Tuples = append(stmt.Tuples, text[i:end+1])
		i = end + 1
	}
	return stmt, nil
}

// readTableName reads a possibly qualified, possibly quoted table name
// starting at i. It returns the unqualified name and the index after it.
// ok is false when the name is not complete yet.
func readTableName(text string, i int) (string, int, bool) {
	var name string
	for {
		ident, next, ok := readIdent(text, i)
		if !ok {
			return "", i, false
		}
		name, i = ident, next
		if i < len(text) && text[i] == '.' {
			i++
			continue
		}
		return name, i, true
	}
}

func readIdent(text string, i int) (string, int, bool) {
	if i >= len(text) {
		return "", i, false
	}
	if q := text[i]; q == '`' || q == '"' {
		end := strings.IndexByte(text[i+1:], q)
		if end < 0 {
			return "", i, false
		}
		return text[i+1 : i+1+end], i + end + 2, true
	}
	j := i
	for j < len(text) && isIdentByte(text[j]) {
		j++
	}
	if j == i || j == len(text) {
		// an unquoted name running to the end of the buffer may continue
		return "", i, false
	}
	return text[i:j], j, true
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	return i
}

// splitColumns splits a column list and strips identifier quotes.
func splitColumns(list string) ColumnList {
	parts := strings.Split(list, ",")
	cols := make(ColumnList, 0, len(parts))
	for _, part := range parts {
		col := strings.TrimSpace(part)
		col = strings.Trim(col, "`\"")
		if col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}
