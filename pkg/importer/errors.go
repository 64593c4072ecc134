package importer

import (
	"errors"
	"fmt"

	"github.com/block/dumpimport/pkg/record"
)

// expectedFormat is appended to fatal errors, which mean the input is not
// a dump the importer understands.
const expectedFormat = "expected a MySQL dump with INSERT INTO products, orders or payments ... VALUES (...); statements"

// ErrSystemicFailure is returned by Report.Err when a table had records
// but none of them could be imported or matched.
var ErrSystemicFailure = errors.New("no records imported")

// PersistError is a failed call to the store for one record.
type PersistError struct {
	Table record.Table
	Key   string // natural key of the record
	Op    string // find, resolve or create
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s %q: %s: %v", e.Table, e.Key, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// FatalError aborts a run: the dump could not be read, or it contained no
// statement the importer recognizes.
type FatalError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	path := e.Path
	if path == "" {
		path = "dump"
	}
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", path, msg, expectedFormat)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
