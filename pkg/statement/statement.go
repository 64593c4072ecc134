// Package statement is a wrapper around the parser for the DDL found in
// dumps. The importer only needs table structure from it: INSERT
// statements written without a column list take their columns from the
// CREATE TABLE that precedes them.
package statement

import (
	"errors"
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

var ErrNotCreateTable = errors.New("not a CREATE TABLE statement")

// CreateTable is the part of a CREATE TABLE statement used for resolving
// column lists. A schema qualifier is dropped from TableName.
type CreateTable struct {
	TableName string
	Columns   []string // in declaration order
}

// ParseCreateTable parses exactly one CREATE TABLE statement.
func ParseCreateTable(sql string) (*CreateTable, error) {
	p := parser.New()
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement, got %d", len(stmts))
	}
	createStmt, ok := stmts[0].(*ast.CreateTableStmt)
	if !ok {
		return nil, ErrNotCreateTable
	}
	ct := &CreateTable{
		TableName: createStmt.Table.Name.String(),
		Columns:   make([]string, 0, len(createStmt.Cols)),
	}
	for _, col := range createStmt.Cols {
		ct.Columns = append(ct.Columns, col.Name.Name.String())
	}
	return ct, nil
}
