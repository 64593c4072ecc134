package importer

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/block/dumpimport/pkg/record"
)

func TestReportPrint(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := newReport("run-1", ModeDedupByKey, started)
	report.Source = "legacy.sql"
	report.Statements = 3
	report.Finished = started.Add(1500 * time.Millisecond)
	report.counts[record.TableProduct].Imported = 3
	report.counts[record.TableOrder].Imported = 2
	report.counts[record.TableOrder].Failed = 1
	report.counts[record.TablePayment].Skipped = 3
	report.addError(RecordError{Table: "Order", Key: "12", Line: 40, Kind: KindMap, Message: "missing customer email"})
	report.addError(RecordError{Line: 7, Kind: KindParse, Message: "unterminated string"})

	var out bytes.Buffer
	require.NoError(t, report.Print(&out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "import run-1 (dedup-by-key) of legacy.sql: 3 statements in 1.5s", lines[0])
	assert.Equal(t, []string{"TABLE", "IMPORTED", "SKIPPED", "FAILED"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"Product", "3", "0", "0"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"Order", "2", "0", "1"}, strings.Fields(lines[3]))
	assert.Equal(t, []string{"Payment", "0", "3", "0"}, strings.Fields(lines[4]))
	assert.Equal(t, "2 errors:", lines[5])
	assert.Equal(t, "  Order 12 (line 40, map): missing customer email", lines[6])
	assert.Equal(t, "  statement (line 7, parse): unterminated string", lines[7])
	require.NoError(t, report.Err())
	assert.Equal(t, Counts{Imported: 5, Skipped: 3, Failed: 1}, report.Total())
}

func TestReportPrintTruncatesErrors(t *testing.T) {
	report := newReport("run-2", ModeExactID, time.Now())
	for i := range maxPrintedErrors + 5 {
		report.addError(RecordError{Table: "Payment", Key: fmt.Sprint(i), Kind: KindPersist, Message: "duplicate"})
	}
	var out bytes.Buffer
	require.NoError(t, report.Print(&out))
	assert.Contains(t, out.String(), "55 errors:")
	assert.Contains(t, out.String(), "Payment 49 ")
	assert.NotContains(t, out.String(), "Payment 50 ")
	assert.True(t, strings.HasSuffix(out.String(), "  ... and 5 more\n"))
}

func TestReportErr(t *testing.T) {
	tests := []struct {
		name   string
		counts     map[record.Table]Counts
		unreadable map[record.Table]int
		errMsg     string
	}{
		{name: "nothing to import"},
		{name: "partial failure", counts: map[record.Table]Counts{
			record.TableProduct: {Imported: 1, Failed: 4},
		}},
		{name: "all skipped", counts: map[record.Table]Counts{
			record.TableOrder: {Skipped: 2},
		}},
		{name: "every payment failed", counts: map[record.Table]Counts{
			record.TableProduct: {Imported: 1},
			record.TablePayment: {Failed: 2},
		}, errMsg: "no records imported: every Payment record failed"},
		{name: "only unreadable orders", counts: map[record.Table]Counts{
			record.TableProduct: {Imported: 1},
		}, unreadable: map[record.Table]int{record.TableOrder: 1},
			errMsg: "no records imported: every Order record failed"},
		{name: "unreadable statement beside good rows", counts: map[record.Table]Counts{
			record.TableOrder: {Imported: 2},
		}, unreadable: map[record.Table]int{record.TableOrder: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newReport("run", ModeDedupByKey, time.Now())
			for table, c := range tt.counts {
				*report.counts[table] = c
			}
			for table, n := range tt.unreadable {
				report.unreadable[table] = n
			}
			err := report.Err()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrSystemicFailure)
			assert.EqualError(t, err, tt.errMsg)
		})
	}
}
