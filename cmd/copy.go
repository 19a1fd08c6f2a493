// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/pgbulk/pgbulk/cmd/flags"
	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/copyworker"
	"github.com/pgbulk/pgbulk/pkg/fetch"
	"github.com/pgbulk/pgbulk/pkg/indexworker"
	"github.com/pgbulk/pgbulk/pkg/partition"
	"github.com/pgbulk/pgbulk/pkg/schedule"
)

func copyCmd() *cobra.Command {
	root := &cobra.Command{Use: "copy", Short: "Run the parallel copy pipeline"}
	root.AddCommand(copySchemaCmd(), copyTableDataCmd(), copyIndexesCmd(), copySequencesCmd())
	return root
}

// copySchemaCmd fetches the source's tables, attributes, indexes,
// constraints, sequences and dependencies into the source catalog and plans
// each table's copy partitions. It does not dump or restore anything on the
// target.
func copySchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Fetch the source schema into the catalog and plan table partitions",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			src, err := openSourceDB(ctx)
			if err != nil {
				return err
			}
			defer src.Close()

			snapshotID, err := readSnapshotID()
			if err != nil {
				return err
			}

			f := fetch.New(src, cats.Source)
			if err := f.FetchTables(ctx, snapshotID, nil); err != nil {
				return err
			}

			it, err := cats.Source.ListTables(ctx)
			if err != nil {
				return err
			}
			tables, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			for _, t := range tables {
				if err := f.FetchAttributes(ctx, snapshotID, t.OID); err != nil {
					return err
				}
			}
			if err := f.FetchIndexes(ctx, snapshotID); err != nil {
				return err
			}
			if err := f.FetchConstraints(ctx, snapshotID); err != nil {
				return err
			}
			if err := f.FetchSequences(ctx, snapshotID); err != nil {
				return err
			}
			if err := f.FetchDepends(ctx, snapshotID); err != nil {
				return err
			}

			planner := partition.New(src, cats.Source)
			for _, t := range tables {
				if _, err := planner.Plan(ctx, t, flags.SplitThreshold(), flags.SplitMaxParts()); err != nil {
					return fmt.Errorf("planning partitions for %s: %w", t.Qname, err)
				}
			}

			log.Info("schema catalogued", "tables", len(tables))
			return touchDone("schema")
		},
	}
}

// copyTableDataCmd runs a pool of copy workers that pull partitions from
// the scheduler until none remain.
func copyTableDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "table-data",
		Short: "Copy table data in parallel, largest tables first",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			src, err := openSourceDB(ctx)
			if err != nil {
				return err
			}
			defer src.Close()
			tgt, err := openTargetDB(ctx)
			if err != nil {
				return err
			}
			defer tgt.Close()

			snapshotID, err := readSnapshotID()
			if err != nil {
				return err
			}

			sched := schedule.New(cats.Source)
			n := flags.Workers()
			if n < 1 {
				n = 1
			}

			var wg sync.WaitGroup
			errCh := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(workerNum int) {
					defer wg.Done()
					pid := os.Getpid()*1000 + workerNum
					worker := copyworker.New(pid, src, tgt, cats.Source, snapshotID)
					if err := runCopyWorker(ctx, sched, cats.Source, worker, pid); err != nil {
						errCh <- err
					}
				}(i)
			}
			wg.Wait()
			close(errCh)
			for err := range errCh {
				if err != nil {
					return err
				}
			}
			return touchDone("tables")
		},
	}
}

func runCopyWorker(ctx context.Context, sched *schedule.Scheduler, store *catalog.Store, worker *copyworker.Worker, pid int) error {
	title := "copy-worker"
	for {
		part, err := sched.NextCopyUnit(ctx, pid, title)
		if errors.Is(err, schedule.ErrNoWork) {
			return nil
		}
		if err != nil {
			return err
		}

		table, err := store.GetTable(ctx, part.TableOID)
		if err != nil {
			return err
		}
		attrsIt, err := store.ListAttributes(ctx, part.TableOID)
		if err != nil {
			return err
		}
		attrs, err := catalog.Collect(attrsIt)
		if err != nil {
			return err
		}

		var unitPart *catalog.TablePart
		if part.PartCount > 1 {
			unitPart = part
		}
		if err := worker.CopyUnit(ctx, *table, attrs, unitPart); err != nil {
			log.Error("copy unit failed", "table", table.Qname, "part", part.PartNum, "error", err)
			return err
		}
		log.Info("copy unit done", "table", table.Qname, "part", part.PartNum)
	}
}

// copyIndexesCmd runs a pool of index workers that build indexes and
// attach constraints, largest owning table first, only once every
// partition of that table has finished.
func copyIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Build indexes and attach constraints",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			tgt, err := openTargetDB(ctx)
			if err != nil {
				return err
			}
			defer tgt.Close()

			sched := schedule.New(cats.Source)
			n := flags.Workers()
			if n < 1 {
				n = 1
			}

			var wg sync.WaitGroup
			errCh := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(workerNum int) {
					defer wg.Done()
					pid := os.Getpid()*1000 + workerNum
					worker := indexworker.New(pid, tgt, cats.Source)
					if err := runIndexWorker(ctx, sched, cats.Source, worker, pid); err != nil {
						errCh <- err
					}
				}(i)
			}
			wg.Wait()
			close(errCh)
			for err := range errCh {
				if err != nil {
					return err
				}
			}
			return touchDone("indexes")
		},
	}
}

func runIndexWorker(ctx context.Context, sched *schedule.Scheduler, store *catalog.Store, worker *indexworker.Worker, pid int) error {
	title := "index-worker"
	for {
		idx, err := sched.NextIndexUnit(ctx, pid, title)
		if errors.Is(err, schedule.ErrNoWork) {
			return nil
		}
		if err != nil {
			return err
		}

		table, err := store.GetTable(ctx, idx.TableOID)
		if err != nil {
			return err
		}

		var constraint *catalog.Constraint
		consIt, err := store.ListConstraints(ctx)
		if err != nil {
			return err
		}
		cons, err := catalog.Collect(consIt)
		if err != nil {
			return err
		}
		for i := range cons {
			if cons[i].IndexOID.Valid && cons[i].IndexOID.Int64 == idx.OID {
				constraint = &cons[i]
				break
			}
		}

		if err := worker.BuildIndex(ctx, table.Qname, *idx, constraint); err != nil {
			log.Error("index build failed", "index", idx.Qname, "error", err)
			return err
		}
		log.Info("index build done", "index", idx.Qname)
	}
}

// copySequencesCmd sets every selected sequence's value on the target to
// match the source's snapshot-time (last_value, is_called) pair.
func copySequencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sequences",
		Short: "Set sequence values on the target to match the source snapshot",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			tgt, err := openTargetDB(ctx)
			if err != nil {
				return err
			}
			defer tgt.Close()

			it, err := cats.Source.ListSequences(ctx)
			if err != nil {
				return err
			}
			seqs, err := catalog.Collect(it)
			if err != nil {
				return err
			}

			// The filter engine records a sequence-kind row for a sequence
			// only when that sequence is not selected.
			skipIt, err := cats.Filter.ListFilterEntries(ctx, catalog.FilterKindSequence)
			if err != nil {
				return err
			}
			skipEntries, err := catalog.Collect(skipIt)
			if err != nil {
				return err
			}
			skip := map[int64]bool{}
			for _, e := range skipEntries {
				skip[e.OID] = true
			}

			for _, s := range seqs {
				if skip[s.OID] {
					continue
				}
				if _, err := tgt.Exec(ctx, `SELECT setval($1, $2, $3)`, s.Qname, s.LastValue, s.IsCalled); err != nil {
					return fmt.Errorf("setting sequence %s: %w", s.Qname, err)
				}
			}
			log.Info("sequences set", "count", len(seqs))
			return touchDone("sequences")
		},
	}
}

func touchDone(stage string) error {
	if err := os.MkdirAll(runDir(), 0o755); err != nil {
		return err
	}
	f, err := os.Create(runDir() + "/" + stage + ".done")
	if err != nil {
		return err
	}
	return f.Close()
}
