package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/metrics"
	"github.com/vainnor/painel/models"
	"github.com/vainnor/painel/normalize"
	"github.com/vainnor/painel/remote"
)

// Local is the table store a dataset falls back on and backs up to.
type Local interface {
	ReadTable(ctx context.Context, schema models.Schema) (models.Table, error)
	ReplaceTable(ctx context.Context, schema models.Schema, t models.Table) error
	AppendRows(ctx context.Context, schema models.Schema, t models.Table) error
}

// Stores are shared by every session.
type Stores struct {
	Remote remote.Store
	Local  Local
}

// Kind binds a record type to its schema and normalizer.
type Kind[T models.Record] struct {
	Schema    models.Schema
	Normalize func(models.Table) (normalize.Result[T], error)
}

var (
	FlightsKind   = Kind[models.Flight]{Schema: models.FlightSchema, Normalize: normalize.Flights}
	LogisticsKind = Kind[models.Logistics]{Schema: models.LogisticsSchema, Normalize: normalize.Logistics}
)

// Source names where a dataset was hydrated from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
	SourceEmpty  Source = "empty"
)

// Mode selects how an import combines with the current rows.
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeMerge:
		return ModeMerge, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", fmt.Errorf("unknown import mode %q", s)
}

// SyncReport tells which stores accepted a flush.
type SyncReport struct {
	Remote   bool     `json:"remote"`
	Local    bool     `json:"local"`
	Warnings []string `json:"warnings,omitempty"`
}

type ImportReport struct {
	Normalize  normalize.Report `json:"normalize"`
	Added      int              `json:"added"`
	Duplicates int              `json:"duplicates"`
	Total      int              `json:"total"`
	Sync       SyncReport       `json:"sync"`
}

// Dataset is one session's cached copy of a dataset. It is hydrated on first
// access and written through to both stores after every mutation.
type Dataset[T models.Record] struct {
	kind   Kind[T]
	stores Stores
	logger *zap.Logger

	mu     sync.Mutex
	loaded bool
	rows   []T
	source Source
	report normalize.Report
}

func NewDataset[T models.Record](kind Kind[T], stores Stores, logger *zap.Logger) *Dataset[T] {
	return &Dataset[T]{
		kind:   kind,
		stores: stores,
		logger: logger.With(zap.String("dataset", kind.Schema.Name)),
	}
}

func (d *Dataset[T]) Schema() models.Schema { return d.kind.Schema }

// Snapshot is a read of the cache.
type Snapshot[T models.Record] struct {
	Rows   []T
	Source Source
	// Report is the normalization report of the hydrating load
	Report normalize.Report
}

// Rows returns a copy of the cached rows, hydrating first if needed.
func (d *Dataset[T]) Rows(ctx context.Context) Snapshot[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hydrate(ctx)
	return Snapshot[T]{Rows: append([]T(nil), d.rows...), Source: d.source, Report: d.report}
}

// hydrate tries the remote store, then the local store, then starts empty.
func (d *Dataset[T]) hydrate(ctx context.Context) {
	if d.loaded {
		return
	}
	d.loaded = true
	schema := d.kind.Schema

	t, ok := d.stores.Remote.Load(ctx, schema.RemoteKey)
	if d.stores.Remote.Name() != config.DriverNone {
		metrics.ObserveStore(d.stores.Remote.Name(), "load", ok)
	}
	if ok && t.Len() > 0 && d.use(t, SourceRemote) {
		return
	}

	t, err := d.stores.Local.ReadTable(ctx, schema)
	metrics.ObserveStore("local", "load", err == nil)
	if err != nil {
		d.logger.Warn("local load failed", zap.Error(err))
	} else if t.Len() > 0 && d.use(t, SourceLocal) {
		return
	}

	d.rows, d.source, d.report = nil, SourceEmpty, normalize.Report{}
}

func (d *Dataset[T]) use(t models.Table, src Source) bool {
	res, err := d.kind.Normalize(t)
	if err != nil {
		d.logger.Warn("stored table unreadable", zap.String("source", string(src)), zap.Error(err))
		return false
	}
	if res.Report.Dropped > 0 {
		metrics.DroppedRows.WithLabelValues(d.kind.Schema.Name).Add(float64(res.Report.Dropped))
	}
	sortByDay(res.Rows)
	d.rows, d.source, d.report = res.Rows, src, res.Report
	d.logger.Info("dataset hydrated", zap.String("source", string(src)), zap.Int("rows", len(res.Rows)))
	return true
}

// Preview normalizes t without touching the cache.
func (d *Dataset[T]) Preview(t models.Table) (normalize.Result[T], error) {
	return d.kind.Normalize(t)
}

// Append adds a single row and flushes.
func (d *Dataset[T]) Append(ctx context.Context, row T, message string) SyncReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hydrate(ctx)
	d.rows = append(d.rows, row)
	metrics.Mutations.WithLabelValues(d.kind.Schema.Name, "append").Inc()
	return d.flush(ctx, []T{row}, message)
}

// Import normalizes t and merges it into the cache, ignoring exact duplicate
// rows, or replaces the cache with it.
func (d *Dataset[T]) Import(ctx context.Context, t models.Table, mode Mode, message string) (ImportReport, error) {
	res, err := d.kind.Normalize(t)
	if err != nil {
		return ImportReport{}, err
	}
	if res.Report.Dropped > 0 {
		metrics.DroppedRows.WithLabelValues(d.kind.Schema.Name).Add(float64(res.Report.Dropped))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hydrate(ctx)

	rep := ImportReport{Normalize: res.Report}
	switch mode {
	case ModeReplace:
		d.rows = res.Rows
		rep.Added = len(res.Rows)
	default:
		seen := make(map[string]struct{}, len(d.rows)+len(res.Rows))
		for _, r := range d.rows {
			seen[models.Key(r)] = struct{}{}
		}
		for _, r := range res.Rows {
			k := models.Key(r)
			if _, dup := seen[k]; dup {
				rep.Duplicates++
				continue
			}
			seen[k] = struct{}{}
			d.rows = append(d.rows, r)
			rep.Added++
		}
	}
	sortByDay(d.rows)
	rep.Total = len(d.rows)
	metrics.Mutations.WithLabelValues(d.kind.Schema.Name, "import_"+string(mode)).Inc()
	rep.Sync = d.flush(ctx, nil, message)
	return rep, nil
}

// ReplaceWhere swaps the rows matched by match for edited. The result is
// re-normalized and sorted by date. Edited rows without a date are dropped.
func (d *Dataset[T]) ReplaceWhere(ctx context.Context, match func(T) bool, edited []T, message string) (SyncReport, normalize.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hydrate(ctx)

	kept := make([]T, 0, len(d.rows)+len(edited))
	for _, r := range d.rows {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	var missing int
	for _, r := range edited {
		if r.Day().IsZero() {
			missing++
			continue
		}
		kept = append(kept, r)
	}

	res, err := d.kind.Normalize(models.Encode(d.kind.Schema, kept))
	if err != nil {
		return SyncReport{}, normalize.Report{}, err
	}
	res.Report.Dropped += missing
	if missing > 0 {
		res.Report.Warnings = append(res.Report.Warnings,
			fmt.Sprintf("%d edited rows were removed because they have no date", missing))
	}
	sortByDay(res.Rows)
	d.rows = res.Rows
	metrics.Mutations.WithLabelValues(d.kind.Schema.Name, "edit").Inc()
	return d.flush(ctx, nil, message), res.Report, nil
}

// Reset drops the cache so the next read hydrates again.
func (d *Dataset[T]) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded, d.rows, d.source, d.report = false, nil, "", normalize.Report{}
}

// flush writes the remote store with the whole cache and the local store
// with either the appended rows or the whole cache. Both run concurrently.
func (d *Dataset[T]) flush(ctx context.Context, appended []T, message string) SyncReport {
	schema := d.kind.Schema
	table := models.Encode(schema, d.rows)
	rs := d.stores.Remote

	var rep SyncReport
	var localErr error
	var g errgroup.Group
	g.Go(func() error {
		rep.Remote = rs.Save(ctx, table, rs.ResolvePath(schema.RemoteKey), message)
		if rs.Name() != config.DriverNone {
			metrics.ObserveStore(rs.Name(), "save", rep.Remote)
		}
		return nil
	})
	g.Go(func() error {
		if appended != nil {
			localErr = d.stores.Local.AppendRows(ctx, schema, models.Encode(schema, appended))
		} else {
			localErr = d.stores.Local.ReplaceTable(ctx, schema, table)
		}
		metrics.ObserveStore("local", "save", localErr == nil)
		return nil
	})
	_ = g.Wait()

	rep.Local = localErr == nil
	if localErr != nil {
		d.logger.Warn("local save failed", zap.Error(localErr))
		rep.Warnings = append(rep.Warnings, "local backup failed: "+localErr.Error())
	}
	if !rep.Remote && rs.Name() != config.DriverNone {
		rep.Warnings = append(rep.Warnings, "remote save failed; changes are kept in this session and the local store")
	}
	return rep
}

func sortByDay[T models.Record](rows []T) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Day().Before(rows[j].Day().Time)
	})
}
