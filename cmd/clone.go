// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgbulk/pgbulk/cmd/flags"
	"github.com/pgbulk/pgbulk/internal/archive"
	"github.com/pgbulk/pgbulk/internal/config"
	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/filter"
)

// cloneCmd runs every stage of an end-to-end migration in order, skipping
// any stage whose run/<stage>.done sentinel already exists so an
// interrupted clone resumes instead of redoing completed work.
func cloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone",
		Short: "Run the full pre-data, filter, copy, index, post-data pipeline",
		RunE: func(cc *cobra.Command, args []string) error {
			ctx := cc.Context()

			// Validate the full run configuration up front: clone is
			// the one command that exercises every stage, so it is
			// also the one that needs --target, unlike list or
			// snapshot which only touch the source.
			if _, err := config.FromViper(viper.GetViper()); err != nil {
				return err
			}
			if flags.Target() == "" {
				return fmt.Errorf("--target (or PGBULK_TARGET) is required")
			}

			stages := []struct {
				name string
				run  func(context.Context) error
			}{
				{"predata-dump", stageArchiveDump(archive.SectionPreData, "predata")},
				{"schema", stageFetchSchema},
				{"filter", stageFilter},
				{"predata-restore", stageArchiveRestore("predata")},
				{"tables", stageCopyTables},
				{"indexes", stageCopyIndexes},
				{"sequences", stageCopySequences},
				{"postdata-dump", stageArchiveDump(archive.SectionPostData, "postdata")},
				{"postdata-restore", stageArchiveRestore("postdata")},
			}

			for _, st := range stages {
				if isDone(st.name) {
					log.Info("stage already done, skipping", "stage", st.name)
					continue
				}
				log.Info("stage starting", "stage", st.name)
				if err := st.run(ctx); err != nil {
					return fmt.Errorf("stage %s: %w", st.name, err)
				}
				if err := touchDone(st.name); err != nil {
					return err
				}
				log.Info("stage done", "stage", st.name)
			}
			return nil
		},
	}
}

func isDone(stage string) bool {
	_, err := os.Stat(filepath.Join(runDir(), stage+".done"))
	return err == nil
}

func archiveDir(section string) string {
	return filepath.Join(flags.Dir(), "archive", section)
}

// stageArchiveDump dumps the named section of the source into
// flags.Dir()/archive/<label>, for later filtered restore onto the target.
func stageArchiveDump(section archive.Section, label string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := os.MkdirAll(filepath.Join(flags.Dir(), "archive"), 0o755); err != nil {
			return err
		}
		r := archive.New("", "")
		return r.Dump(ctx, flags.Source(), archiveDir(label), section)
	}
}

// stageFetchSchema populates the source catalog from a live connection to
// the source, planning table partitions along the way.
func stageFetchSchema(ctx context.Context) error {
	return runSubcommand(ctx, copySchemaCmd())
}

// runSubcommand invokes a copy subcommand's RunE directly, as a stage of
// clone, threading ctx through cobra's per-command context instead of the
// ambient background context RunE would otherwise see.
func runSubcommand(ctx context.Context, c *cobra.Command) error {
	c.SetContext(ctx)
	return c.RunE(c, nil)
}

// stageFilter loads the filter specification (from --filter, or an
// include-everything default) and materialises its decisions into the
// filter catalog.
func stageFilter(ctx context.Context) error {
	cats, err := openCatalogs(ctx)
	if err != nil {
		return err
	}
	defer cats.Close()

	spec, err := loadFilterSpec()
	if err != nil {
		return err
	}

	eng := filter.New(cats.Source, cats.Filter, spec)
	return eng.Run(ctx)
}

func loadFilterSpec() (filter.Spec, error) {
	path := flags.FilterPath()
	if path == "" {
		return filter.Spec{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return filter.Spec{}, fmt.Errorf("reading filter spec %s: %w", path, err)
	}
	var spec filter.Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return filter.Spec{}, fmt.Errorf("parsing filter spec %s: %w", path, err)
	}
	return spec, nil
}

// stageArchiveRestore restores the named archive section onto the target,
// limited to restore-list names the filter engine selected, via a
// generated --use-list file.
func stageArchiveRestore(label string) func(context.Context) error {
	return func(ctx context.Context) error {
		cats, err := openCatalogs(ctx)
		if err != nil {
			return err
		}
		defer cats.Close()

		r := archive.New("", "")
		dir := archiveDir(label)
		entries, err := r.List(ctx, dir)
		if err != nil {
			return err
		}

		selected, err := selectedRestoreListNames(ctx, cats.Filter)
		if err != nil {
			return err
		}

		keep := map[int]bool{}
		for _, e := range entries {
			if selected[e.RestoreListName] || selected[e.Schema+"."+e.RestoreListName] {
				keep[e.DumpID] = true
			}
		}
		useList := archive.BuildUseList(entries, keep)
		return r.Restore(ctx, flags.Target(), dir, useList)
	}
}

// selectedRestoreListNames collects every restore_list_name the filter
// engine recorded across all object kinds, since a single archive section
// (pre-data or post-data) mixes tables, constraints, sequences and their
// dependent clauses together.
func selectedRestoreListNames(ctx context.Context, filterStore *catalog.Store) (map[string]bool, error) {
	names := map[string]bool{}
	for _, kind := range []catalog.FilterObjectKind{
		catalog.FilterKindTable, catalog.FilterKindIndex, catalog.FilterKindConstraint,
		catalog.FilterKindSequence, catalog.FilterKindNamespace,
	} {
		it, err := filterStore.ListFilterEntries(ctx, kind)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			e := it.Item()
			if e.RestoreListName != "" {
				names[e.RestoreListName] = true
			}
		}
		if err := it.Err(); err != nil {
			it.Close()
			return nil, err
		}
		it.Close()
	}
	return names, nil
}

func stageCopyTables(ctx context.Context) error {
	return runSubcommand(ctx, copyTableDataCmd())
}

func stageCopyIndexes(ctx context.Context) error {
	return runSubcommand(ctx, copyIndexesCmd())
}

func stageCopySequences(ctx context.Context) error {
	return runSubcommand(ctx, copySequencesCmd())
}
