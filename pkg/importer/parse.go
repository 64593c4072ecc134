package importer

import (
	"context"
	"errors"
	"io"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/block/dumpimport/pkg/dump"
	"github.com/block/dumpimport/pkg/record"
)

// item is one tuple of the dump: a mapped record, or the reason it could
// not be mapped.
type item struct {
	table record.Table
	line  int
	tuple int
	rec   record.Record
	err   error // *dump.ParseError or *record.MapError
}

// parse reads every statement of the dump and maps its tuples. The
// scanner runs in the caller's goroutine; each statement is tokenized and
// mapped on the errgroup. Items are returned per table in dump order.
func (i *Importer) parse(ctx context.Context, r io.Reader, report *Report) (map[record.Table][]item, error) {
	scanner := dump.NewScanner(r, dump.WithTables(record.DumpTableNames()...))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Threads)

	type slot struct {
		table record.Table
		items []item
	}
	var slots []*slot
	for gctx.Err() == nil {
		stmt, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *dump.ParseError
		if errors.As(err, &perr) {
			e := RecordError{Line: perr.Line, Kind: KindParse, Message: perr.Err.Error()}
			table, ok := record.ParseTable(perr.Table)
			if ok {
				e.Table = table.String()
			}
			i.logger.WarnContext(ctx, "skipping malformed statement", "line", perr.Line, "table", e.Table, "error", perr.Err)
			if ok {
				report.addUnreadable(table, e)
			} else {
				report.addError(e)
			}
			continue
		}
		if err != nil {
			_ = g.Wait()
			return nil, &FatalError{Reason: "cannot read dump", Err: err}
		}
		table, ok := record.ParseTable(stmt.Table)
		if !ok {
			continue
		}
		s := &slot{table: table}
		slots = append(slots, s)
		g.Go(func() error {
			s.items = i.mapStatement(gctx, table, stmt)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report.Statements = len(slots)
	i.logger.InfoContext(ctx, "dump parsed", "statements", len(slots), "lines", scanner.Line())
	if len(slots) == 0 {
		return nil, &FatalError{Reason: "no INSERT statements recognized"}
	}

	byTable := make(map[record.Table][]item)
	for _, s := range slots {
		byTable[s.table] = append(byTable[s.table], s.items...)
	}
	return byTable, nil
}

func (i *Importer) mapStatement(ctx context.Context, table record.Table, stmt *dump.Statement) []item {
	items := make([]item, 0, len(stmt.Tuples))
	for n := range stmt.Tuples {
		if ctx.Err() != nil {
			return items
		}
		it := item{table: table, line: stmt.Line, tuple: n + 1}
		tuple, err := stmt.Tuple(n)
		if err != nil {
			it.err = err
			items = append(items, it)
			continue
		}
		it.rec, it.err = record.Map(table, stmt.Columns, tuple, i.clock)
		items = append(items, it)
	}
	return items
}

// failedKey identifies an item that has no record.
func (it item) failedKey() string {
	var mapErr *record.MapError
	if errors.As(it.err, &mapErr) && mapErr.SourceID != 0 {
		return strconv.FormatInt(mapErr.SourceID, 10)
	}
	return "tuple " + strconv.Itoa(it.tuple)
}
