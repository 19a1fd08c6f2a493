// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pgbulk/pgbulk/cmd/flags"
	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

func listCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "list",
		Short: "Inspect the local catalog cache",
	}
	root.AddCommand(
		listDatabasesCmd(), listExtensionsCmd(), listCollationsCmd(),
		listTablesCmd(), listTablePartsCmd(), listSequencesCmd(),
		listIndexesCmd(), listDependsCmd(), listSchemaCmd(), listProgressCmd(),
	)
	return root
}

// listDatabasesCmd, listExtensionsCmd and listCollationsCmd query the
// source directly rather than the catalog cache: unlike tables, sequences
// and indexes, these are single global lists with no per-run split/filter
// bookkeeping worth caching, so there is nothing the catalog would add.
func listDatabasesCmd() *cobra.Command {
	return &cobra.Command{
		Use: "databases",
		RunE: withSourceDB(func(ctx context.Context, db *pgconn.DB) error {
			rows, err := db.Query(ctx, `SELECT datname, pg_encoding_to_char(encoding), datcollate, datctype
				FROM pg_catalog.pg_database WHERE NOT datistemplate ORDER BY datname`)
			if err != nil {
				return err
			}
			defer rows.Close()
			var out []map[string]string
			for rows.Next() {
				var name, encoding, collate, ctype string
				if err := rows.Scan(&name, &encoding, &collate, &ctype); err != nil {
					return err
				}
				out = append(out, map[string]string{"name": name, "encoding": encoding, "collate": collate, "ctype": ctype})
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return printRows(out)
		}),
	}
}

func listExtensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use: "extensions",
		RunE: withSourceDB(func(ctx context.Context, db *pgconn.DB) error {
			rows, err := db.Query(ctx, `SELECT e.extname, e.extversion, n.nspname
				FROM pg_catalog.pg_extension e
				JOIN pg_catalog.pg_namespace n ON n.oid = e.extnamespace
				ORDER BY e.extname`)
			if err != nil {
				return err
			}
			defer rows.Close()
			var out []map[string]string
			for rows.Next() {
				var name, version, schema string
				if err := rows.Scan(&name, &version, &schema); err != nil {
					return err
				}
				out = append(out, map[string]string{"name": name, "version": version, "schema": schema})
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return printRows(out)
		}),
	}
}

func listCollationsCmd() *cobra.Command {
	return &cobra.Command{
		Use: "collations",
		RunE: withSourceDB(func(ctx context.Context, db *pgconn.DB) error {
			rows, err := db.Query(ctx, `SELECT n.nspname || '.' || c.collname, c.collcollate, c.collctype
				FROM pg_catalog.pg_collation c
				JOIN pg_catalog.pg_namespace n ON n.oid = c.collnamespace
				WHERE n.nspname != 'pg_catalog'
				ORDER BY 1`)
			if err != nil {
				return err
			}
			defer rows.Close()
			var out []map[string]string
			for rows.Next() {
				var name, collate, ctype string
				if err := rows.Scan(&name, &collate, &ctype); err != nil {
					return err
				}
				out = append(out, map[string]string{"name": name, "collate": collate, "ctype": ctype})
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return printRows(out)
		}),
	}
}

// withSourceDB opens a live connection to --source, runs fn, and closes it
// on the way out; used by the handful of list subcommands whose output is
// a direct live projection rather than anything the catalog cache stores.
func withSourceDB(fn func(ctx context.Context, db *pgconn.DB) error) func(*cobra.Command, []string) error {
	return func(cc *cobra.Command, args []string) error {
		ctx := cc.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, err := openSourceDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(ctx, db)
	}
}

func listTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "tables",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			it, err := s.ListTables(ctx)
			if err != nil {
				return err
			}
			rows, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			return printRows(rows)
		}),
	}
}

func listTablePartsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "table-parts"}
	cmd.RunE = withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
		tablesIt, err := s.ListTables(ctx)
		if err != nil {
			return err
		}
		tables, err := catalog.Collect(tablesIt)
		if err != nil {
			return err
		}
		var all []catalog.TablePart
		for _, t := range tables {
			it, err := s.ListTableParts(ctx, t.OID)
			if err != nil {
				return err
			}
			parts, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			all = append(all, parts...)
		}
		return printRows(all)
	})
	return cmd
}

func listSequencesCmd() *cobra.Command {
	return &cobra.Command{
		Use: "sequences",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			it, err := s.ListSequences(ctx)
			if err != nil {
				return err
			}
			rows, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			return printRows(rows)
		}),
	}
}

func listIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use: "indexes",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			it, err := s.ListAllIndexes(ctx)
			if err != nil {
				return err
			}
			rows, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			return printRows(rows)
		}),
	}
}

func listDependsCmd() *cobra.Command {
	return &cobra.Command{
		Use: "depends",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			it, err := s.ListDepends(ctx)
			if err != nil {
				return err
			}
			rows, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			return printRows(rows)
		}),
	}
}

func listSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use: "schema",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			tablesIt, err := s.ListTables(ctx)
			if err != nil {
				return err
			}
			tables, err := catalog.Collect(tablesIt)
			if err != nil {
				return err
			}
			indexesIt, err := s.ListAllIndexes(ctx)
			if err != nil {
				return err
			}
			indexes, err := catalog.Collect(indexesIt)
			if err != nil {
				return err
			}
			return printRows(map[string]any{"tables": tables, "indexes": indexes})
		}),
	}
}

func listProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use: "progress",
		RunE: withSourceCatalog(func(ctx context.Context, s *catalog.Store) error {
			it, err := s.ListSummaries(ctx)
			if err != nil {
				return err
			}
			rows, err := catalog.Collect(it)
			if err != nil {
				return err
			}
			return printRows(rows)
		}),
	}
}

// withSourceCatalog opens the catalog triple, runs fn against the source
// store, and closes every store on the way out regardless of outcome.
func withSourceCatalog(fn func(ctx context.Context, s *catalog.Store) error) func(*cobra.Command, []string) error {
	return func(cc *cobra.Command, args []string) error {
		ctx := cc.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if _, err := os.Stat(filepath.Join(flags.Dir(), "schema", "source.db")); os.IsNotExist(err) {
			return errCacheNotInitialized
		}
		cats, err := openCatalogs(ctx)
		if err != nil {
			return err
		}
		defer cats.Close()
		return fn(ctx, cats.Source)
	}
}

func printRows(v any) error {
	if flags.JSONOutput() {
		enc := json.NewEncoder(cmdStdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintf(cmdStdout, "%+v\n", v)
	return nil
}
