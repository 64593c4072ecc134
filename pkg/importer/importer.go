// Package importer loads a legacy MySQL dump of products, orders and
// payments into the target schema through a store.Store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/block/dumpimport/pkg/buildinfo"
	"github.com/block/dumpimport/pkg/metrics"
	"github.com/block/dumpimport/pkg/record"
	"github.com/block/dumpimport/pkg/status"
	"github.com/block/dumpimport/pkg/store"
	"github.com/block/dumpimport/pkg/utils"
)

type outcome int

const (
	imported outcome = iota
	skipped
)

// Importer runs imports into one store. Runs must not overlap.
type Importer struct {
	store  store.Store
	config *Config
	logger *slog.Logger
	sink   metrics.Sink
	clock  record.Clock

	state     status.State
	processed atomic.Int64
	total     atomic.Int64

	// per run: dump id to target id
	products     map[int64]int64
	productNames map[int64]string
	orders       map[int64]int64
	existing     map[record.Table]map[int64]*int64
}

var _ status.Task = (*Importer)(nil)

// New returns an importer writing to s. A nil config uses NewConfig.
func New(s store.Store, config *Config) (*Importer, error) {
	if s == nil {
		return nil, errors.New("importer: nil store")
	}
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	i := &Importer{
		store:  s,
		config: config,
		logger: config.Logger,
		sink:   config.Metrics,
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	if i.sink == nil {
		i.sink = &metrics.NoopSink{}
	}
	return i, nil
}

// Run imports the dump at path. Errors are *FatalError when the file
// cannot be read or holds no recognizable statement, and the context's
// error when the run is interrupted; in the latter case the report covers
// the records processed so far.
func (i *Importer) Run(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FatalError{Path: path, Reason: "cannot open dump", Err: err}
	}
	defer utils.CloseAndLogContext(ctx, f, "dump", path)
	info, err := f.Stat()
	if err != nil {
		return nil, &FatalError{Path: path, Reason: "cannot read dump", Err: err}
	}
	if info.IsDir() {
		return nil, &FatalError{Path: path, Reason: "is a directory"}
	}

	report, err := i.Import(ctx, f)
	var fatal *FatalError
	if errors.As(err, &fatal) {
		fatal.Path = path
	}
	if report != nil {
		report.Source = path
	}
	return report, err
}

// Import imports a dump read from r.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	started := time.Now().UTC()
	i.reset(started)
	report := newReport(uuid.NewString(), i.config.Mode, started)
	logger := i.logger.With("run", report.RunID)
	logger.InfoContext(ctx, "starting import", "mode", string(i.config.Mode), "threads", i.config.Threads, "version", buildinfo.Get().Version)
	if i.config.Mode == ModeExactID {
		logger.WarnContext(ctx, "exact-id mode inserts the primary keys of the dump; keys already used by the target fail as duplicates")
	}

	stop := status.WatchTask(ctx, i, logger)
	defer stop()

	i.state.Set(status.ParseDump)
	items, err := i.parse(ctx, r, report)
	if err != nil {
		i.state.Set(status.ErrCleanup)
		return nil, err
	}
	for _, its := range items {
		i.total.Add(int64(len(its)))
	}
	for _, it := range items[record.TableProduct] {
		if p, ok := it.rec.(*record.Product); ok {
			i.productNames[p.ID] = p.Name
		}
	}
	i.send(ctx, &metrics.Metrics{Values: []metrics.MetricValue{
		{Name: metrics.StatementsMetricName, Value: float64(report.Statements), Type: metrics.COUNTER},
	}})

	err = i.persistAll(ctx, items, report)
	report.Finished = time.Now().UTC()
	i.sendProgress(ctx, report, true)
	if err != nil {
		i.state.Set(status.ErrCleanup)
		logger.WarnContext(ctx, "import interrupted", "processed", i.processed.Load(), "error", err)
		return report, err
	}
	i.state.Set(status.Close)
	total := report.Total()
	logger.InfoContext(ctx, "import finished",
		"imported", total.Imported,
		"skipped", total.Skipped,
		"failed", total.Failed,
		"duration", report.Finished.Sub(started).String(),
	)
	return report, nil
}

func (i *Importer) reset(started time.Time) {
	i.state.Set(status.Initial)
	i.processed.Store(0)
	i.total.Store(0)
	i.products = make(map[int64]int64)
	i.productNames = make(map[int64]string)
	i.orders = make(map[int64]int64)
	i.existing = make(map[record.Table]map[int64]*int64)
	i.clock = i.config.Clock
	if i.clock == nil {
		now := started.Truncate(time.Second)
		i.clock = func() time.Time { return now }
	}
}

func phase(table record.Table) status.State {
	switch table {
	case record.TableOrder:
		return status.PersistOrders
	case record.TablePayment:
		return status.PersistPayments
	}
	return status.PersistProducts
}

// persistAll writes the records one at a time, tables in dependency order.
// It only stops early when ctx is done.
func (i *Importer) persistAll(ctx context.Context, items map[record.Table][]item, report *Report) error {
	every := int64(i.config.ProgressEvery)
	for _, table := range record.ImportOrder {
		i.state.Set(phase(table))
		for _, it := range items[table] {
			if err := ctx.Err(); err != nil {
				return err
			}
			i.persistItem(ctx, it, report)
			if n := i.processed.Add(1); n%every == 0 {
				i.sendProgress(ctx, report, false)
			}
		}
	}
	return nil
}

func (i *Importer) persistItem(ctx context.Context, it item, report *Report) {
	counts := report.counts[it.table]
	if it.err != nil {
		kind := KindMap
		var mapErr *record.MapError
		if !errors.As(it.err, &mapErr) {
			kind = KindParse
		}
		key := it.failedKey()
		counts.Failed++
		report.addError(RecordError{Table: it.table.String(), Key: key, Line: it.line, Kind: kind, Message: it.err.Error()})
		i.logger.WarnContext(ctx, "skipping record", "table", it.table.String(), "key", key, "line", it.line, "error", it.err)
		return
	}

	out, err := i.persist(ctx, it.rec)
	if err != nil {
		counts.Failed++
		key := it.rec.NaturalKey()
		report.addError(RecordError{Table: it.table.String(), Key: key, Line: it.line, Kind: KindPersist, Message: err.Error()})
		i.logger.WarnContext(ctx, "record failed", "table", it.table.String(), "key", key, "line", it.line, "error", err)
		return
	}
	switch out {
	case imported:
		counts.Imported++
	case skipped:
		counts.Skipped++
	}
}

func (i *Importer) persist(ctx context.Context, rec record.Record) (outcome, error) {
	switch r := rec.(type) {
	case *record.Product:
		return i.persistProduct(ctx, r)
	case *record.Order:
		return i.persistOrder(ctx, r)
	case *record.Payment:
		return i.persistPayment(ctx, r)
	}
	return 0, fmt.Errorf("unsupported record %T", rec)
}

func (i *Importer) exact() bool {
	return i.config.Mode == ModeExactID
}

func persistErr(rec record.Record, op string, err error) error {
	return &PersistError{Table: rec.Table(), Key: rec.NaturalKey(), Op: op, Err: err}
}

func (i *Importer) persistProduct(ctx context.Context, p *record.Product) (outcome, error) {
	var (
		found *store.Ref
		err   error
	)
	if i.exact() {
		found, err = i.store.FindUnique(ctx, record.TableProduct, "id", p.ID)
	} else {
		found, err = i.store.FindFirst(ctx, record.TableProduct, store.Criteria{"name": p.Name})
	}
	if err != nil {
		return 0, persistErr(p, "find", err)
	}
	if found != nil {
		i.products[p.ID] = found.ID
		return skipped, nil
	}

	row := *p
	if row.TrainerID, err = i.resolveExisting(ctx, record.TableTrainer, p.TrainerID); err != nil {
		return 0, persistErr(p, "resolve", err)
	}
	if !i.exact() {
		row.ID = 0
	}
	id, err := i.store.Create(ctx, &row)
	if err != nil {
		return 0, persistErr(p, "create", err)
	}
	i.products[p.ID] = id
	return imported, nil
}

func (i *Importer) persistOrder(ctx context.Context, o *record.Order) (outcome, error) {
	var (
		found *store.Ref
		err   error
	)
	if i.exact() {
		found, err = i.store.FindUnique(ctx, record.TableOrder, "id", o.ID)
	} else {
		found, err = i.store.FindUnique(ctx, record.TableOrder, "orderNumber", o.OrderNumber)
	}
	if err != nil {
		return 0, persistErr(o, "find", err)
	}
	if found != nil {
		i.orders[o.ID] = found.ID
		return skipped, nil
	}

	row := *o
	if row.ProductID, err = i.resolveProduct(ctx, o.ProductID); err != nil {
		return 0, persistErr(o, "resolve", err)
	}
	if row.UserID, err = i.resolveExisting(ctx, record.TableUser, o.UserID); err != nil {
		return 0, persistErr(o, "resolve", err)
	}
	if row.TrainerID, err = i.resolveExisting(ctx, record.TableTrainer, o.TrainerID); err != nil {
		return 0, persistErr(o, "resolve", err)
	}
	if !i.exact() {
		row.ID = 0
	}
	id, err := i.store.Create(ctx, &row)
	if err != nil {
		return 0, persistErr(o, "create", err)
	}
	i.orders[o.ID] = id
	return imported, nil
}

func (i *Importer) persistPayment(ctx context.Context, p *record.Payment) (outcome, error) {
	orderID, err := i.resolveOrder(ctx, p.OrderID)
	if err != nil {
		return 0, persistErr(p, "resolve", err)
	}

	var found *store.Ref
	switch {
	case i.exact():
		found, err = i.store.FindUnique(ctx, record.TablePayment, "id", p.ID)
	case p.TransactionID != nil:
		found, err = i.store.FindUnique(ctx, record.TablePayment, "transactionId", *p.TransactionID)
	default:
		found, err = i.store.FindFirst(ctx, record.TablePayment, paymentCriteria(p, orderID))
		if found != nil {
			i.logger.DebugContext(ctx, "payment matched without transaction id",
				"key", utils.HashKey([]any{store.Normalize(orderID), p.Amount.String(), p.CreatedAt.Format(time.RFC3339), p.Undated}))
		}
	}
	if err != nil {
		return 0, persistErr(p, "find", err)
	}
	if found != nil {
		return skipped, nil
	}

	row := *p
	row.OrderID = orderID
	if row.UserID, err = i.resolveExisting(ctx, record.TableUser, p.UserID); err != nil {
		return 0, persistErr(p, "resolve", err)
	}
	if !i.exact() {
		row.ID = 0
	}
	if _, err := i.store.Create(ctx, &row); err != nil {
		return 0, persistErr(p, "create", err)
	}
	return imported, nil
}

// paymentCriteria matches a payment that has no transaction id. A payment
// of the same amount, at the same time, for the same order is the same
// payment. Without a creation time in the dump, CreatedAt changes from run
// to run, so the method and the payment time stand in for it.
func paymentCriteria(p *record.Payment, orderID *int64) store.Criteria {
	criteria := store.Criteria{
		"orderId": orderID,
		"amount":  p.Amount,
	}
	if p.Undated {
		criteria["paymentMethod"] = p.PaymentMethod
		criteria["paidAt"] = p.PaidAt
	} else {
		criteria["createdAt"] = p.CreatedAt
	}
	return criteria
}

// Progress implements status.Task.
func (i *Importer) Progress() status.Progress {
	state := i.state.Get()
	return status.Progress{
		CurrentState: state,
		Summary:      fmt.Sprintf("%d/%d records %s", i.processed.Load(), i.total.Load(), state),
	}
}

// Status implements status.Task.
func (i *Importer) Status() string {
	return "import in progress: " + i.Progress().Summary
}

func (i *Importer) sendProgress(ctx context.Context, report *Report, final bool) {
	processed := i.processed.Load()
	values := []metrics.MetricValue{
		{Name: metrics.RecordsProcessedMetricName, Value: float64(processed), Type: metrics.GAUGE},
	}
	for _, t := range record.ImportOrder {
		c := report.Counts(t)
		labels := map[string]string{metrics.TableLabel: t.String()}
		values = append(values,
			metrics.MetricValue{Name: metrics.RecordsImportedMetricName, Value: float64(c.Imported), Type: metrics.GAUGE, Labels: labels},
			metrics.MetricValue{Name: metrics.RecordsSkippedMetricName, Value: float64(c.Skipped), Type: metrics.GAUGE, Labels: labels},
			metrics.MetricValue{Name: metrics.RecordsFailedMetricName, Value: float64(c.Failed), Type: metrics.GAUGE, Labels: labels},
		)
	}
	if final {
		values = append(values, metrics.MetricValue{
			Name:  metrics.DurationMetricName,
			Value: report.Finished.Sub(report.Started).Seconds(),
			Type:  metrics.GAUGE,
		})
	} else {
		i.logger.InfoContext(ctx, "import progress",
			"processed", processed,
			"total", i.total.Load(),
			"state", i.state.Get().String(),
		)
	}
	i.send(ctx, &metrics.Metrics{Values: values})
}

// send delivers metrics within metrics.SinkTimeout. Failures are logged:
// metrics never fail a run.
func (i *Importer) send(ctx context.Context, m *metrics.Metrics) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metrics.SinkTimeout)
	defer cancel()
	if err := i.sink.Send(ctx, m); err != nil {
		i.logger.WarnContext(ctx, "failed to send metrics", "error", err)
	}
}
