// Package receive consumes the source's logical replication stream and
// appends each decoded message to a file named by the WAL segment number
// containing it, grounded on the corpus' replication-reader service
// (github.com/jackc/pglogrepl + github.com/jackc/pgx/v5/pgproto3 over a
// pgconn.PgConn opened with replication=database).
package receive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pglogrepl"
	pgxconn "github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

// PluginOptions are the wal2json-style output-plugin arguments the
// specification requires: format-version=2, include-xids, include-lsn,
// include-transaction.
var PluginOptions = []string{
	`"format-version" '2'`,
	`"include-xids" '1'`,
	`"include-lsn" '1'`,
	`"include-transaction" '1'`,
}

// Receiver tails one replication slot and writes segment files under Dir.
type Receiver struct {
	Conn      *pgxconn.PgConn
	Store     *catalog.Store
	Dir       string
	SlotName  string
	SegSize   uint64
	Timeline  uint32
	StandbyEvery time.Duration

	current   *os.File
	currentLog uint32
	currentSeg uint32
	written   lsn.LSN
}

// Run starts replication at startLSN and tails the stream until ctx is
// cancelled, flushing and closing the current segment on the way out so no
// pending write is discarded on shutdown.
func (r *Receiver) Run(ctx context.Context, startLSN lsn.LSN) error {
	if r.StandbyEvery == 0 {
		r.StandbyEvery = 10 * time.Second
	}
	defer r.closeCurrent()

	if err := pglogrepl.StartReplication(ctx, r.Conn, r.SlotName, pglogrepl.LSN(startLSN),
		pglogrepl.StartReplicationOptions{PluginArgs: PluginOptions}); err != nil {
		return fmt.Errorf("starting replication on slot %s: %w", r.SlotName, err)
	}

	nextStandby := time.Now().Add(r.StandbyEvery)
	for {
		if time.Now().After(nextStandby) {
			if err := r.sendStandbyStatus(ctx); err != nil {
				return err
			}
			nextStandby = time.Now().Add(r.StandbyEvery)
		}

		recvCtx, cancel := context.WithDeadline(ctx, nextStandby)
		raw, err := r.Conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			return err
		}

		switch msg := raw.(type) {
		case *pgproto3.ErrorResponse:
			return fmt.Errorf("replication stream error: %s", msg.Message)
		case *pgproto3.CopyData:
			if err := r.handleCopyData(msg.Data); err != nil {
				return err
			}
		}
	}
}

func (r *Receiver) handleCopyData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case pglogrepl.PrimaryKeepaliveMessageByteID:
		pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(data[1:])
		if err != nil {
			return err
		}
		if pkm.ReplyRequested {
			return nil
		}
		return nil
	case pglogrepl.XLogDataByteID:
		xld, err := pglogrepl.ParseXLogData(data[1:])
		if err != nil {
			return err
		}
		return r.appendMessage(lsn.LSN(xld.WALStart), xld.WALData)
	}
	return nil
}

// appendMessage writes one raw wal2json line to the segment file that
// contains at, switching files (and emitting the synthetic SWITCH record)
// when at crosses into a new segment.
func (r *Receiver) appendMessage(at lsn.LSN, data []byte) error {
	logID, segID := at.WALSegment(r.Timeline, r.SegSize)
	if r.current == nil || logID != r.currentLog || segID != r.currentSeg {
		if err := r.switchSegment(logID, segID, at); err != nil {
			return err
		}
	}

	if _, err := r.current.Write(data); err != nil {
		return err
	}
	if _, err := r.current.Write([]byte("\n")); err != nil {
		return err
	}
	r.written = at
	return nil
}

func (r *Receiver) switchSegment(logID, segID uint32, at lsn.LSN) error {
	if r.current != nil {
		switchRecord, err := json.Marshal(map[string]any{"action": "switch", "lsn": at.String()})
		if err != nil {
			return err
		}
		if _, err := r.current.Write(switchRecord); err != nil {
			return err
		}
		if _, err := r.current.Write([]byte("\n")); err != nil {
			return err
		}
		r.closeCurrent()
	}

	name := lsn.SegmentFileName(r.Timeline, logID, segID) + ".json"
	f, err := os.OpenFile(filepath.Join(r.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.current, r.currentLog, r.currentSeg = f, logID, segID
	return nil
}

// closeCurrent flushes and closes the open segment file, never discarding
// pending writes.
func (r *Receiver) closeCurrent() {
	if r.current == nil {
		return
	}
	r.current.Sync()
	r.current.Close()
	r.current = nil
}

func (r *Receiver) sendStandbyStatus(ctx context.Context) error {
	if r.written == lsn.Zero {
		return nil
	}
	err := pglogrepl.SendStandbyStatusUpdate(ctx, r.Conn, pglogrepl.StandbyStatusUpdate{
		WALWritePosition: pglogrepl.LSN(r.written),
	})
	if err != nil {
		return err
	}
	flush, replay := lsn.Zero, lsn.Zero
	sent, err := r.Store.GetSentinel(ctx)
	if err != nil {
		return err
	}
	if sent != nil {
		flush, replay = sent.FlushLSN, sent.ReplayLSN
	}
	return r.Store.UpdateReplayProgress(ctx, r.written, flush, replay)
}
