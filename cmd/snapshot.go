// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgbulk/pgbulk/cmd/flags"
)

// snapshotCmd exports a synchronized snapshot on the source connection. By
// default it rolls back the exporting transaction and only persists the
// snapshot id, so the id is available to other commands but no longer
// guarantees isolation beyond this process's recorded view; pass --hold to
// keep the exporting transaction (and the connection it lives on) open
// until interrupted, which is what every subsequent fetch/copy step that
// passes the same --snapshot id actually relies on for consistency.
func snapshotCmd() *cobra.Command {
	var hold bool
	c := &cobra.Command{
		Use:   "snapshot",
		Short: "Export a synchronized snapshot on the source and record it",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()

			src, err := openSourceDB(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			conn, err := src.Pool.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("acquiring connection to export snapshot: %w", err)
			}
			if !hold {
				defer conn.Release()
			}

			tx, err := conn.Begin(ctx)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY`); err != nil {
				tx.Rollback(ctx)
				return err
			}

			var snapshotID string
			row := tx.QueryRow(ctx, `SELECT pg_export_snapshot()`)
			if err := row.Scan(&snapshotID); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("exporting snapshot: %w", err)
			}

			if err := os.MkdirAll(flags.Dir(), 0o755); err != nil {
				tx.Rollback(ctx)
				return err
			}
			if err := os.WriteFile(snapshotFile(), []byte(snapshotID), 0o644); err != nil {
				tx.Rollback(ctx)
				return err
			}

			cats, err := openCatalogs(ctx)
			if err != nil {
				tx.Rollback(ctx)
				return err
			}
			defer cats.Close()
			if err := cats.Source.SetSnapshotID(ctx, snapshotID); err != nil {
				tx.Rollback(ctx)
				return err
			}

			log.Info("snapshot exported", "snapshot_id", snapshotID)
			fmt.Fprintln(cmdStdout, snapshotID)

			if !hold {
				return tx.Rollback(ctx)
			}

			log.Info("holding snapshot transaction open; press Ctrl-C to release")
			<-ctx.Done()
			return tx.Rollback(context.Background())
		},
	}
	c.Flags().BoolVar(&hold, "hold", false, "keep the exporting transaction open until interrupted")
	return c
}

// readSnapshotID resolves the snapshot id to use for a fetch/copy step:
// the --snapshot flag if given, else the id persisted by a prior `snapshot`
// invocation, else empty (no snapshot pinning).
func readSnapshotID() (string, error) {
	id := flags.Snapshot()
	if id != "" {
		return id, nil
	}
	b, err := os.ReadFile(snapshotFile())
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}
