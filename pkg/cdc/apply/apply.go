// Package apply executes a transformed SQL stream against the target,
// maintaining the replication origin atomically with the data changes it
// replays and honoring the sentinel control surface, the final stage of
// the change-capture pipeline.
package apply

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/lsn"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// state is the applier's replay state machine, named exactly as the
// specification's control contract does.
type state int

const (
	waitingStart state = iota
	inTransaction
	idle
	reachedEnd
)

// Applier replays transformed segment files against target, reporting its
// durable progress back to store's sentinel row.
type Applier struct {
	target *pgconn.DB
	store  *catalog.Store

	origin      string
	previousLSN lsn.LSN
	endpos      lsn.LSN

	state    state
	tx       pgx.Tx
	prepared map[string]bool

	// commitLSN and commitTS are the open transaction's resolved BEGIN
	// fields, carried forward to COMMIT so the origin advance and the
	// commit-vs-rollback decision both use the transaction's real commit
	// point instead of a stale one.
	commitLSN lsn.LSN
	commitTS  string

	track lsn.Track
}

// New returns an Applier that replays against target using the named
// replication origin, reporting progress through store.
func New(target *pgconn.DB, store *catalog.Store, origin string) *Applier {
	return &Applier{target: target, store: store, origin: origin, state: waitingStart}
}

// AwaitStart polls the sentinel every interval until apply=true, returning
// the replay starting point the caller should resume from. It is
// cancellable via ctx.
func (a *Applier) AwaitStart(ctx context.Context, interval time.Duration) (replayFrom lsn.LSN, err error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		sent, err := a.store.GetSentinel(ctx)
		if err != nil {
			return lsn.Zero, err
		}
		if sent.Apply {
			a.endpos = sent.EndPos
			a.previousLSN = sent.ReplayLSN
			return sent.ReplayLSN, nil
		}
		select {
		case <-ctx.Done():
			return lsn.Zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetEndpos overrides the sentinel's endpos, used when a --endpos CLI flag
// is present and differs from the persisted value. The caller is
// responsible for logging the override warning.
func (a *Applier) SetEndpos(pos lsn.LSN) { a.endpos = pos }

// ReplayFile processes every line of one transformed segment file in
// order, returning true if the reached-end state was entered.
func (a *Applier) ReplayFile(ctx context.Context, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		done, err := a.replayLine(ctx, line)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, err
	}

	return a.reportDurableProgress(ctx)
}

func (a *Applier) replayLine(ctx context.Context, line string) (bool, error) {
	switch {
	case strings.HasPrefix(line, "-- SWITCH"):
		return false, nil
	case strings.HasPrefix(line, "-- BEGIN"):
		return a.handleBegin(ctx, line)
	case strings.HasPrefix(line, "-- KEEPALIVE"):
		return false, a.handleKeepalive(ctx, line)
	case strings.HasPrefix(line, "-- ENDPOS"):
		return a.handleEndpos(ctx, line)
	case line == "COMMIT;":
		return a.handleCommit(ctx)
	case line == "ROLLBACK;":
		return false, a.handleRollback(ctx)
	case strings.HasPrefix(line, "PREPARE "):
		return false, a.handlePrepare(ctx, line)
	case strings.HasPrefix(line, "EXECUTE "):
		return false, a.handleExecute(ctx, line)
	default:
		return false, fmt.Errorf("apply: unrecognised line %q", line)
	}
}

// handleBegin decides whether this transaction must be replayed: if
// endpos has already been reached the file is done; if replay_lsn is
// already past this transaction's commit point it is skipped entirely
// (already durable from a prior run); a BEGIN with no resolvable
// commit_lsn opens a continued transaction whose fate is decided at
// COMMIT.
func (a *Applier) handleBegin(ctx context.Context, line string) (bool, error) {
	fields := parseBraceFields(line)
	beginLSN, _ := lsn.Parse(fields["lsn"])
	commitLSN, hasCommit := lsn.Zero, false
	if v, ok := fields["commit_lsn"]; ok && v != "" && v != "0/0" {
		if parsed, err := lsn.Parse(v); err == nil {
			commitLSN, hasCommit = parsed, true
		}
	}
	ts := fields["ts"]

	if a.endpos != lsn.Zero && a.endpos <= beginLSN {
		return true, nil
	}
	if hasCommit && a.previousLSN >= commitLSN {
		a.state = idle
		return false, nil
	}

	tx, err := a.target.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_replication_origin_xact_setup($1, $2)`, beginLSN.String(), ts); err != nil {
		tx.Rollback(ctx)
		return false, err
	}

	syncCommit := "off"
	if hasCommit && a.endpos != lsn.Zero && commitLSN >= a.endpos {
		syncCommit = "on"
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET synchronous_commit = %s", syncCommit)); err != nil {
		tx.Rollback(ctx)
		return false, err
	}

	a.tx = tx
	a.state = inTransaction
	a.prepared = make(map[string]bool)
	a.commitLSN = commitLSN
	a.commitTS = ts
	return false, nil
}

func (a *Applier) handlePrepare(ctx context.Context, line string) error {
	rest := strings.TrimPrefix(line, "PREPARE ")
	name, body, ok := strings.Cut(rest, " AS ")
	if !ok {
		return fmt.Errorf("apply: malformed PREPARE line %q", line)
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), ";")
	if a.prepared[name] {
		return nil
	}
	if a.tx == nil {
		return fmt.Errorf("apply: PREPARE %s outside a transaction", name)
	}
	if _, err := a.tx.Exec(ctx, fmt.Sprintf("PREPARE %s AS %s", name, body)); err != nil {
		return fmt.Errorf("preparing %s: %w", name, err)
	}
	a.prepared[name] = true
	return nil
}

func (a *Applier) handleExecute(ctx context.Context, line string) error {
	rest := strings.TrimPrefix(line, "EXECUTE ")
	rest = strings.TrimSuffix(rest, ";")
	name, paramsJSON, ok := strings.Cut(rest, "[")
	var params []any
	if ok {
		var err error
		params, err = decodeParams("[" + paramsJSON)
		if err != nil {
			return err
		}
	}
	if a.tx == nil {
		return fmt.Errorf("apply: EXECUTE %s outside a transaction", name)
	}
	args := fmt.Sprintf("EXECUTE %s", name)
	if len(params) > 0 {
		placeholders := make([]string, len(params))
		for i := range params {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		args = fmt.Sprintf("EXECUTE %s (%s)", name, strings.Join(placeholders, ", "))
	}
	_, err := a.tx.Exec(ctx, args, params...)
	return err
}

func decodeParams(raw string) ([]any, error) {
	var params []any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("decoding EXECUTE params: %w", err)
	}
	return params, nil
}

// handleCommit decides between an ordinary commit and a rollback of a
// transaction whose commit point lies beyond endpos, per the round-trip
// rule: a transaction is emitted iff previousLSN < commitLSN <= endpos.
func (a *Applier) handleCommit(ctx context.Context) (bool, error) {
	if a.tx == nil {
		a.state = idle
		return false, nil
	}

	commitLSN := a.commitLSN
	if commitLSN != lsn.Zero && a.endpos != lsn.Zero && commitLSN > a.endpos {
		a.tx.Rollback(ctx)
		a.tx = nil
		a.state = reachedEnd
		return true, nil
	}

	if _, err := a.tx.Exec(ctx, `SELECT pg_replication_origin_xact_setup($1, $2)`, commitLSN.String(), a.commitTS); err != nil {
		a.tx.Rollback(ctx)
		a.tx = nil
		return false, err
	}
	if err := a.tx.Commit(ctx); err != nil {
		a.tx = nil
		return false, err
	}
	a.tx = nil
	a.state = idle

	if commitLSN != lsn.Zero {
		a.previousLSN = commitLSN
	}

	insertLSN, err := a.currentInsertLSN(ctx)
	if err == nil {
		a.track.Append(lsn.Pair{Source: a.previousLSN, Insert: insertLSN})
	}

	if a.endpos != lsn.Zero && a.endpos <= a.previousLSN {
		a.state = reachedEnd
		return true, nil
	}
	return false, nil
}

func (a *Applier) handleRollback(ctx context.Context) error {
	if a.tx != nil {
		a.tx.Rollback(ctx)
		a.tx = nil
	}
	a.state = waitingStart
	return nil
}

// handleKeepalive advances the origin outside of a data transaction by
// running a one-statement transaction that does nothing else.
func (a *Applier) handleKeepalive(ctx context.Context, line string) error {
	if a.tx != nil {
		return nil
	}
	fields := parseBraceFields(line)
	at, err := lsn.Parse(fields["lsn"])
	if err != nil {
		return nil
	}
	return a.target.WithRetryableTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT pg_replication_origin_xact_setup($1, $2)`, at.String(), fields["ts"])
		return err
	})
}

func (a *Applier) handleEndpos(ctx context.Context, line string) (bool, error) {
	if a.tx != nil {
		a.tx.Rollback(ctx)
		a.tx = nil
	}
	a.state = reachedEnd
	return true, nil
}

// reportDurableProgress implements the after-each-file durable-LSN rule:
// query the target's current WAL insert position, then pick the greatest
// source LSN known to have reached at or below it.
func (a *Applier) reportDurableProgress(ctx context.Context) (bool, error) {
	flushLSN, err := a.currentInsertLSN(ctx)
	if err != nil {
		return a.state == reachedEnd, nil
	}
	replayLSN := a.track.GreatestSourceAtOrBelow(flushLSN)
	if replayLSN == lsn.Zero {
		replayLSN = a.previousLSN
	}
	a.track.TrimBefore(replayLSN)

	if err := a.store.UpdateReplayProgress(ctx, flushLSN, flushLSN, replayLSN); err != nil {
		// Sentinel sync is best-effort; a failure here never aborts replay.
		return a.state == reachedEnd, nil
	}
	return a.state == reachedEnd, nil
}

func (a *Applier) currentInsertLSN(ctx context.Context) (lsn.LSN, error) {
	row := a.target.QueryRow(ctx, `SELECT pg_current_wal_insert_lsn()::text`)
	var text string
	if err := row.Scan(&text); err != nil {
		return lsn.Zero, err
	}
	return lsn.Parse(text)
}

// parseBraceFields extracts the "key=value,key2=value2" contents of a
// "-- KIND {...}" comment line into a map, tolerating quoted values.
func parseBraceFields(line string) map[string]string {
	out := map[string]string{}
	start := strings.IndexByte(line, '{')
	end := strings.LastIndexByte(line, '}')
	if start < 0 || end < 0 || end <= start {
		return out
	}
	body := line[start+1 : end]
	for _, part := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"`)
		if unquoted, err := strconv.Unquote(strconv.Quote(v)); err == nil {
			v = unquoted
		}
		out[strings.TrimSpace(k)] = v
	}
	return out
}
