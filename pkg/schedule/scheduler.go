// Package schedule dispatches per-table and per-index work to a pool of
// worker processes and tracks their liveness, pulling the ordering
// guarantees of §4.E directly from the catalog store's claim queries:
// copy workers consume partitions largest table first, index workers wait
// for a table's partitions to finish before claiming any of its indexes.
package schedule

import (
	"context"
	"errors"

	"github.com/pgbulk/pgbulk/pkg/catalog"
)

// Scheduler coordinates claims against one source catalog store.
type Scheduler struct {
	store *catalog.Store
}

// New returns a Scheduler backed by store.
func New(store *catalog.Store) *Scheduler {
	return &Scheduler{store: store}
}

// ErrNoWork is returned by NextCopyUnit/NextIndexUnit when nothing remains
// unclaimed, re-exporting catalog.ErrNoWork so callers in this package
// don't need to import catalog solely for the sentinel.
var ErrNoWork = catalog.ErrNoWork

// NextCopyUnit claims the next unclaimed table partition, consuming
// tables largest-on-disk-first (the candidate list is queried in that
// order; the first table with an unclaimed partition wins).
func (s *Scheduler) NextCopyUnit(ctx context.Context, pid int, title string) (*catalog.TablePart, error) {
	tables, err := s.tablesBySize(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		part, err := s.store.ClaimTablePart(ctx, pid, title, t.OID)
		if err == nil {
			return part, nil
		}
		if !errors.Is(err, catalog.ErrNoWork) {
			return nil, err
		}
	}
	return nil, ErrNoWork
}

// NextIndexUnit claims the next unclaimed, ready-to-build index (its
// owning table's partitions are all complete), largest owning table
// first.
func (s *Scheduler) NextIndexUnit(ctx context.Context, pid int, title string) (*catalog.Index, error) {
	idx, err := s.store.ClaimIndex(ctx, pid, title)
	if errors.Is(err, catalog.ErrNoWork) {
		return nil, ErrNoWork
	}
	return idx, err
}

// tablesBySize returns every table ordered largest-bytes-first, matching
// the "reduce tail latency" scheduling rule.
func (s *Scheduler) tablesBySize(ctx context.Context) ([]catalog.Table, error) {
	it, err := s.store.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := catalog.Collect(it)
	if err != nil {
		return nil, err
	}
	sortTablesBySizeDesc(tables)
	return tables, nil
}

func sortTablesBySizeDesc(tables []catalog.Table) {
	for i := 1; i < len(tables); i++ {
		for j := i; j > 0 && tables[j].Bytes > tables[j-1].Bytes; j-- {
			tables[j], tables[j-1] = tables[j-1], tables[j]
		}
	}
}

// ReapDeadWorkers scans every live process claim and releases the claims
// of pids no longer present on this host, making their units eligible for
// reclaim by the next poller.
func (s *Scheduler) ReapDeadWorkers(ctx context.Context) (int, error) {
	it, err := s.store.ListProcesses(ctx)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var dead []int
	for it.Next() {
		p := it.Item()
		if !processAlive(p.PID) {
			dead = append(dead, p.PID)
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}

	for _, pid := range dead {
		if err := s.store.Unregister(ctx, pid); err != nil {
			return 0, err
		}
	}
	return len(dead), nil
}
