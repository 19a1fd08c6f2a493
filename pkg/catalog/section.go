package catalog

import (
	"context"
	"database/sql"
	"errors"
)

// SectionName enumerates the named migration stages tracked by §3.
type SectionName string

const (
	SectionDatabaseProperties SectionName = "database-properties"
	SectionCollations         SectionName = "collations"
	SectionExtensions         SectionName = "extensions"
	SectionSchema             SectionName = "schema"
	SectionNamespaces         SectionName = "namespaces"
	SectionTableData          SectionName = "table-data"
	SectionTableDataParts     SectionName = "table-data-parts"
	SectionSetSequences       SectionName = "set-sequences"
	SectionIndexes            SectionName = "indexes"
	SectionConstraints        SectionName = "constraints"
	SectionPgDepend           SectionName = "pg_depend"
	SectionFilters            SectionName = "filters"
	SectionLargeObjects       SectionName = "large-objects"
	SectionVacuum             SectionName = "vacuum"
	SectionAll                SectionName = "all"
)

// Section tracks the fetch/completion lifecycle of one named stage.
type Section struct {
	Name       SectionName
	Fetched    bool
	StartEpoch *int64
	DoneEpoch  *int64
	DurationMS *int64
}

// GetSection returns the section row, creating it (unfetched) on first
// reference, matching the "created on first fetch" lifecycle.
func (s *Store) GetSection(ctx context.Context, name SectionName) (*Section, error) {
	sec, err := s.lookupSection(ctx, name)
	if err != nil {
		return nil, err
	}
	if sec != nil {
		return sec, nil
	}
	if err := s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO section(name, fetched) VALUES (?, 0)`, string(name))
		return err
	}); err != nil {
		return nil, err
	}
	return s.lookupSection(ctx, name)
}

func (s *Store) lookupSection(ctx context.Context, name SectionName) (*Section, error) {
	var sec Section
	var fetched int
	err := s.withRead(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT name, fetched, start_epoch, done_epoch, duration_ms
			FROM section WHERE name = ?`, string(name))
		return row.Scan(&sec.Name, &fetched, &sec.StartEpoch, &sec.DoneEpoch, &sec.DurationMS)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sec.Fetched = fetched != 0
	return &sec, nil
}

// StartSection marks the section's fetch as beginning at startEpoch (unix
// seconds).
func (s *Store) StartSection(ctx context.Context, name SectionName, startEpoch int64) error {
	if _, err := s.GetSection(ctx, name); err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE section SET start_epoch = ? WHERE name = ?`, startEpoch, string(name))
		return err
	})
}

// FinishSection marks the section fetched and records its completion epoch
// and duration.
func (s *Store) FinishSection(ctx context.Context, name SectionName, doneEpoch int64, durationMS int64) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE section SET fetched = 1, done_epoch = ?, duration_ms = ? WHERE name = ?`,
			doneEpoch, durationMS, string(name))
		return err
	})
}
