package importer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/block/dumpimport/pkg/record"
)

// maxPrintedErrors bounds the error list of Print. The report itself
// keeps every error.
const maxPrintedErrors = 50

// ErrorKind is the stage a record failed in.
type ErrorKind string

const (
	KindParse   ErrorKind = "parse"
	KindMap     ErrorKind = "map"
	KindPersist ErrorKind = "persist"
)

// RecordError is one failed record, or one unreadable statement.
type RecordError struct {
	Table   string // empty when the statement's table is unknown
	Key     string // natural key, or the dump id when the row did not map
	Line    int    // line of the statement in the dump
	Kind    ErrorKind
	Message string
}

func (e RecordError) String() string {
	var b strings.Builder
	if e.Table != "" {
		b.WriteString(e.Table)
	} else {
		b.WriteString("statement")
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " %s", e.Key)
	}
	fmt.Fprintf(&b, " (line %d, %s): %s", e.Line, e.Kind, e.Message)
	return b.String()
}

type Counts struct {
	Imported int
	Skipped  int
	Failed   int
}

func (c Counts) Total() int {
	return c.Imported + c.Skipped + c.Failed
}

// Report is the outcome of one run. It is not modified after Run returns.
type Report struct {
	RunID      string
	Mode       Mode
	Source     string
	Started    time.Time
	Finished   time.Time
	Statements int // INSERT statements read for the imported tables

	counts     map[record.Table]*Counts
	unreadable map[record.Table]int
	Errors     []RecordError
}

func newReport(runID string, mode Mode, started time.Time) *Report {
	r := &Report{
		RunID:   runID,
		Mode:    mode,
		Started: started,
		counts:     make(map[record.Table]*Counts),
		unreadable: make(map[record.Table]int),
	}
	for _, t := range record.ImportOrder {
		r.counts[t] = &Counts{}
	}
	return r
}

// Counts returns the counts of table.
func (r *Report) Counts(table record.Table) Counts {
	if c, ok := r.counts[table]; ok {
		return *c
	}
	return Counts{}
}

// Unreadable returns the number of statements of table that could not be
// parsed at all. Their tuples are not part of Counts.
func (r *Report) Unreadable(table record.Table) int {
	return r.unreadable[table]
}

// Total sums the counts of every table.
func (r *Report) Total() Counts {
	var total Counts
	for _, c := range r.counts {
		total.Imported += c.Imported
		total.Skipped += c.Skipped
		total.Failed += c.Failed
	}
	return total
}

// Systemic returns the tables that had records or unreadable statements
// of which none were imported or matched. A table like this points at a
// dump the mapper does not understand rather than at bad rows.
func (r *Report) Systemic() []record.Table {
	var tables []record.Table
	for _, t := range record.ImportOrder {
		c := r.Counts(t)
		if (c.Total() > 0 || r.unreadable[t] > 0) && c.Imported+c.Skipped == 0 {
			tables = append(tables, t)
		}
	}
	return tables
}

// Err returns an error wrapping ErrSystemicFailure when any table failed
// systemically, and nil otherwise.
func (r *Report) Err() error {
	tables := r.Systemic()
	if len(tables) == 0 {
		return nil
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.String()
	}
	return fmt.Errorf("%w: every %s record failed", ErrSystemicFailure, strings.Join(names, ", "))
}

// Print writes the human readable summary of the run.
func (r *Report) Print(w io.Writer) error {
	fmt.Fprintf(w, "import %s (%s) of %s: %d statements in %s\n",
		r.RunID, r.Mode, r.Source, r.Statements, r.Finished.Sub(r.Started).Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tIMPORTED\tSKIPPED\tFAILED")
	for _, t := range record.ImportOrder {
		c := r.Counts(t)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", t, c.Imported, c.Skipped, c.Failed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(r.Errors) == 0 {
		return nil
	}
	fmt.Fprintf(w, "%d errors:\n", len(r.Errors))
	for i, e := range r.Errors {
		if i == maxPrintedErrors {
			fmt.Fprintf(w, "  ... and %d more\n", len(r.Errors)-maxPrintedErrors)
			break
		}
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}

func (r *Report) addUnreadable(table record.Table, e RecordError) {
	r.unreadable[table]++
	r.addError(e)
}

func (r *Report) addError(e RecordError) {
	r.Errors = append(r.Errors, e)
}
