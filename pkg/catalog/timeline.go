package catalog

import (
	"context"
	"database/sql"

	"github.com/pgbulk/pgbulk/pkg/lsn"
)

// TimelineEntry is the §3 timeline_history record: one segment of the
// source's timeline history file, recorded so the receiver can detect and
// follow a timeline switch (failover/promotion on the source) instead of
// silently stalling at the switch point.
type TimelineEntry struct {
	TLI      uint32
	StartLSN lsn.LSN
	EndLSN   lsn.LSN
}

// AddTimelineEntry inserts or replaces one timeline history segment.
func (s *Store) AddTimelineEntry(ctx context.Context, e TimelineEntry) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO timeline_history (tli, start_lsn, end_lsn)
			VALUES (?, ?, ?)
			ON CONFLICT(tli) DO UPDATE SET start_lsn=excluded.start_lsn, end_lsn=excluded.end_lsn`,
			e.TLI, e.StartLSN, e.EndLSN)
		return err
	})
}

// ListTimelineHistory returns every recorded timeline segment in TLI order.
func (s *Store) ListTimelineHistory(ctx context.Context) (*Iterator[TimelineEntry], error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tli, start_lsn, end_lsn FROM timeline_history ORDER BY tli`)
	if err != nil {
		return nil, err
	}
	return newIterator(rows, scanTimelineEntry), nil
}

func scanTimelineEntry(rows *sql.Rows) (TimelineEntry, error) {
	var e TimelineEntry
	err := rows.Scan(&e.TLI, &e.StartLSN, &e.EndLSN)
	return e, err
}
