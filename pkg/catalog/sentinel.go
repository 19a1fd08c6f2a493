package catalog

import (
	"context"
	"database/sql"

	"github.com/pgbulk/pgbulk/pkg/lsn"
)

// Sentinel is the §3 sentinel record: the single control row the streaming
// subsystem (receive/transform/apply) uses to coordinate a bounded or
// open-ended replay, plus the most recently observed confirmation LSNs so
// `stream sentinel status` can report progress without querying Postgres.
type Sentinel struct {
	StartPos  lsn.LSN
	EndPos    lsn.LSN
	Apply     bool
	WriteLSN  lsn.LSN
	FlushLSN  lsn.LSN
	ReplayLSN lsn.LSN
}

// GetSentinel returns the singleton sentinel row, creating it at its
// zero-value defaults if absent.
func (s *Store) GetSentinel(ctx context.Context) (*Sentinel, error) {
	sent, err := s.lookupSentinel(ctx)
	if err != nil {
		return nil, err
	}
	if sent != nil {
		return sent, nil
	}
	if err := s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sentinel (id) VALUES (1)`)
		return err
	}); err != nil {
		return nil, err
	}
	return s.lookupSentinel(ctx)
}

func (s *Store) lookupSentinel(ctx context.Context) (*Sentinel, error) {
	var sent Sentinel
	var apply int
	err := s.withRead(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT startpos, endpos, apply, write_lsn, flush_lsn, replay_lsn FROM sentinel WHERE id = 1`)
		return row.Scan(&sent.StartPos, &sent.EndPos, &apply, &sent.WriteLSN, &sent.FlushLSN, &sent.ReplayLSN)
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sent.Apply = apply != 0
	return &sent, nil
}

// SetStartPos persists the origin LSN the streaming subsystem should
// replay from. Valid only before the first `stream receive` run; callers
// enforce that at the command layer.
func (s *Store) SetStartPos(ctx context.Context, pos lsn.LSN) error {
	if _, err := s.GetSentinel(ctx); err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sentinel SET startpos = ? WHERE id = 1`, pos.String())
		return err
	})
}

// SetEndPos persists the LSN at which replay should stop and request that
// the apply pipeline drain to exactly that point (`stream sentinel
// set-endpos`).
func (s *Store) SetEndPos(ctx context.Context, pos lsn.LSN) error {
	if _, err := s.GetSentinel(ctx); err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sentinel SET endpos = ? WHERE id = 1`, pos.String())
		return err
	})
}

// SetApply toggles whether the apply worker should commit replayed
// transactions (`stream sentinel start`/`stop`: stop lets receive/transform
// continue spooling without applying).
func (s *Store) SetApply(ctx context.Context, apply bool) error {
	if _, err := s.GetSentinel(ctx); err != nil {
		return err
	}
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sentinel SET apply = ? WHERE id = 1`, boolToInt(apply))
		return err
	})
}

// UpdateReplayProgress records the latest write/flush/replay LSNs observed
// by the apply pipeline, consumed by `stream sentinel status` and by the
// durable-LSN feedback loop that acknowledges the replication slot.
func (s *Store) UpdateReplayProgress(ctx context.Context, write, flush, replay lsn.LSN) error {
	return s.withWrite(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sentinel SET write_lsn = ?, flush_lsn = ?, replay_lsn = ? WHERE id = 1`,
			write.String(), flush.String(), replay.String())
		return err
	})
}
