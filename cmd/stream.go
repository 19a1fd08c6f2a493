// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	pgxconn "github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/pgbulk/pgbulk/cmd/flags"
	"github.com/pgbulk/pgbulk/internal/procsignal"
	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/cdc/apply"
	"github.com/pgbulk/pgbulk/pkg/cdc/receive"
	"github.com/pgbulk/pgbulk/pkg/cdc/transform"
	"github.com/pgbulk/pgbulk/pkg/lsn"
)

const defaultWALSegmentSize = 16 * 1024 * 1024

func streamCmd() *cobra.Command {
	root := &cobra.Command{Use: "stream", Short: "Run the change-capture receive/transform/apply pipeline"}
	root.AddCommand(streamReceiveCmd(), streamTransformCmd(), streamApplyCmd(), streamSentinelCmd())
	return root
}

func segmentDir() string    { return filepath.Join(cdcDir(), "segments") }
func sqlDir() string        { return filepath.Join(cdcDir(), "sql") }
func xidMetaDir() string    { return filepath.Join(cdcDir(), "xid") }

// streamReceiveCmd opens a dedicated replication connection to the source
// and tails the slot named by --slot, writing one JSON segment file per
// WAL segment under cdc/segments. It runs until a graceful-stop signal is
// observed, matching the corpus' signal-driven daemon loop.
func streamReceiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "Tail the source's logical replication slot into segment files",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			conn, err := connectReplication(ctx, flags.Source())
			if err != nil {
				return err
			}
			defer conn.Close(ctx)

			sent, err := cats.Source.GetSentinel(ctx)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(segmentDir(), 0o755); err != nil {
				return err
			}

			r := &receive.Receiver{
				Conn:         conn,
				Store:        cats.Source,
				Dir:          segmentDir(),
				SlotName:     flags.SlotName(),
				SegSize:      defaultWALSegmentSize,
				Timeline:     1,
				StandbyEvery: 10 * time.Second,
			}

			watcher := procsignal.Watch()
			defer watcher.Stop()
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if lvl, ok := <-watcher.Levels(); ok {
					log.Info("stream receive stopping", "level", lvl)
				}
				cancel()
			}()

			log.Info("stream receive starting", "slot", flags.SlotName(), "from", sent.StartPos)
			if err := r.Run(runCtx, sent.StartPos); err != nil && runCtx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// connectReplication opens a dedicated non-pooled connection in logical
// replication mode, which pgxpool cannot provide (a replication connection
// speaks the replication sub-protocol instead of simple/extended query).
func connectReplication(ctx context.Context, dsn string) (*pgxconn.PgConn, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return pgxconn.Connect(ctx, dsn+sep+"replication=database")
}

// streamTransformCmd converts every segment file that does not yet have a
// corresponding .sql file into one, in segment order, so the applier
// always has a contiguous run of SQL files to replay.
func streamTransformCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transform",
		Short: "Convert spooled replication segments into replayable SQL",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()
			cats, err := openCatalogs(ctx)
			if err != nil {
				return err
			}
			defer cats.Close()

			if err := os.MkdirAll(sqlDir(), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(xidMetaDir(), 0o755); err != nil {
				return err
			}

			sent, err := cats.Source.GetSentinel(ctx)
			if err != nil {
				return err
			}

			segments, err := sortedSegmentFiles()
			if err != nil {
				return err
			}

			t := transform.New(xidMetaDir())
			for _, name := range segments {
				outPath := filepath.Join(sqlDir(), strings.TrimSuffix(name, ".json")+".sql")
				if _, err := os.Stat(outPath); err == nil {
					continue
				}
				inPath := filepath.Join(segmentDir(), name)
				if err := t.TransformFile(inPath, outPath, sent.EndPos); err != nil {
					return fmt.Errorf("transforming %s: %w", name, err)
				}
				log.Info("segment transformed", "segment", name)
			}
			return nil
		},
	}
}

func sortedSegmentFiles() ([]string, error) {
	entries, err := os.ReadDir(segmentDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// streamApplyCmd replays every SQL file produced by transform against the
// target in order, waiting on the sentinel's apply flag before starting
// and stopping once --endpos (or the sentinel endpos) is reached.
func streamApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Replay transformed SQL against the target",
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

			a := apply.New(tgt, cats.Source, flags.OriginName())

			watcher := procsignal.Watch()
			defer watcher.Stop()
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				<-watcher.Levels()
				cancel()
			}()

			log.Info("stream apply waiting for start signal")
			if _, err := a.AwaitStart(runCtx, 2*time.Second); err != nil {
				return err
			}
			if endpos := flags.Endpos(); endpos != "" {
				pos, err := lsn.Parse(endpos)
				if err != nil {
					return fmt.Errorf("parsing --endpos: %w", err)
				}
				a.SetEndpos(pos)
			}

			for {
				select {
				case <-runCtx.Done():
					return nil
				default:
				}

				files, err := sortedSQLFiles()
				if err != nil {
					return err
				}
				if len(files) == 0 {
					select {
					case <-time.After(time.Second):
						continue
					case <-runCtx.Done():
						return nil
					}
				}

				for _, name := range files {
					done, err := a.ReplayFile(runCtx, filepath.Join(sqlDir(), name))
					if err != nil {
						return fmt.Errorf("replaying %s: %w", name, err)
					}
					log.Info("sql file replayed", "file", name)
					if done {
						log.Info("reached endpos, stopping apply")
						return nil
					}
				}
			}
		},
	}
}

func sortedSQLFiles() ([]string, error) {
	entries, err := os.ReadDir(sqlDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// streamSentinelCmd groups the sentinel control subcommands that operators
// use to bound and start/stop a replay independently of the long-running
// receive/transform/apply processes.
func streamSentinelCmd() *cobra.Command {
	root := &cobra.Command{Use: "sentinel", Short: "Inspect and control the replay sentinel"}

	root.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Create the sentinel row at its defaults",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			_, err := s.GetSentinel(ctx)
			return err
		}),
	})

	setStartCmd := &cobra.Command{
		Use:   "set-startpos <lsn>",
		Short: "Set the LSN replay should begin from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			pos, err := lsn.Parse(args[0])
			if err != nil {
				return err
			}
			fn := withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
				return s.SetStartPos(ctx, pos)
			})
			return fn(cc, args)
		},
	}
	root.AddCommand(setStartCmd)

	setEndCmd := &cobra.Command{
		Use:   "set-endpos <lsn>",
		Short: "Set the LSN replay should stop at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			pos, err := lsn.Parse(args[0])
			if err != nil {
				return err
			}
			fn := withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
				return s.SetEndPos(ctx, pos)
			})
			return fn(cc, args)
		},
	}
	root.AddCommand(setEndCmd)

	root.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Allow the apply pipeline to commit replayed transactions",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			return s.SetApply(ctx, true)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the apply pipeline from committing further transactions",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			return s.SetApply(ctx, false)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current sentinel state",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			sent, err := s.GetSentinel(ctx)
			if err != nil {
				return err
			}
			return printRows(sent)
		}),
	})

	return root
}
