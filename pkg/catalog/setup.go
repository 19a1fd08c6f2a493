package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Setup is the singleton run-configuration row (§3). Exactly one row may
// exist; subsequent runs compare their parameters against it.
type Setup struct {
	RunID          string
	SourceDSN      string
	TargetDSN      string
	SnapshotID     string
	SplitThreshold int64
	SplitMaxParts  int
	FilterSpec     string
	PluginName     string
	SlotName       string
}

// ErrSetupMismatch is returned by RegisterSetup when the persisted tuple
// conflicts with the supplied one and the caller has not requested
// invalidation.
var ErrSetupMismatch = errors.New("catalog: setup does not match persisted run configuration")

// GetSetup returns the singleton setup row, or nil if none has been
// registered yet.
func (s *Store) GetSetup(ctx context.Context) (*Setup, error) {
	var out Setup
	err := s.withRead(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT run_id, source_dsn, target_dsn, snapshot_id,
			split_threshold, split_max_parts, filter_spec, plugin_name, slot_name FROM setup WHERE id = 1`)
		return row.Scan(&out.RunID, &out.SourceDSN, &out.TargetDSN, &out.SnapshotID,
			&out.SplitThreshold, &out.SplitMaxParts, &out.FilterSpec, &out.PluginName, &out.SlotName)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterSetup inserts the setup row on first run, or compares it against
// the persisted tuple on subsequent runs. partsFetched indicates whether
// the table-data-parts section is marked done, which gates the
// split-threshold/max-parts comparison per §4.A. When force is true a
// mismatch resets the row instead of failing.
func (s *Store) RegisterSetup(ctx context.Context, want Setup, partsFetched, force bool) (*Setup, error) {
	existing, err := s.GetSetup(ctx)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if want.RunID == "" {
			want.RunID = uuid.NewString()
		}
		return &want, s.withWrite(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO setup
				(id, run_id, source_dsn, target_dsn, snapshot_id, split_threshold, split_max_parts, filter_spec, plugin_name, slot_name)
				VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				want.RunID, want.SourceDSN, want.TargetDSN, want.SnapshotID,
				want.SplitThreshold, want.SplitMaxParts, want.FilterSpec, want.PluginName, want.SlotName)
			return err
		})
	}

	mismatch := existing.SourceDSN != want.SourceDSN ||
		existing.TargetDSN != want.TargetDSN ||
		existing.FilterSpec != want.FilterSpec
	if partsFetched {
		mismatch = mismatch || existing.SplitThreshold != want.SplitThreshold || existing.SplitMaxParts != want.SplitMaxParts
	}

	if mismatch && !force {
		return nil, fmt.Errorf("%w: %+v vs %+v", ErrSetupMismatch, existing, want)
	}
	if mismatch && force {
		want.RunID = uuid.NewString()
		if err := s.DropSchema(ctx, KindSource); err != nil {
			return nil, err
		}
		if err := s.CreateSchema(ctx, KindSource); err != nil {
			return nil, err
		}
		return s.RegisterSetup(ctx, want, partsFetched, false)
	}
	return existing, nil
}

// SetSnapshotID persists the exported snapshot identifier (supports
// --resume --snapshot).
func (s *Store) SetSnapshotID(ctx context.Context, id string) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE setup SET snapshot_id = ? WHERE id = 1`, id)
		return err
	})
}
