// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pgbulk/pgbulk/cmd/flags"
	"github.com/pgbulk/pgbulk/internal/exitcode"
	"github.com/pgbulk/pgbulk/internal/logging"
	"github.com/pgbulk/pgbulk/internal/retry"
	"github.com/pgbulk/pgbulk/pkg/catalog"
	"github.com/pgbulk/pgbulk/pkg/pgconn"
)

// Version is the pgbulk version, set at build time via -ldflags.
var Version = "development"

func init() {
	viper.SetEnvPrefix("PGBULK")
	viper.AutomaticEnv()
	flags.CommonFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "pgbulk",
	Short:        "Parallel Postgres-to-Postgres bulk migration and change-capture replay",
	SilenceUsage: true,
	Version:      Version,
}

// log is the process-wide structured logger. It carries no mutable state
// beyond the fields a WithFields-derived logger adds, so sharing it across
// commands is safe.
var log = logging.New()

// cmdStdout is where list/status output is written; overridable by tests.
var cmdStdout io.Writer = os.Stdout

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(cloneCmd())
	rootCmd.AddCommand(copyCmd())
	rootCmd.AddCommand(streamCmd())

	if err := rootCmd.Execute(); err != nil {
		return exitcode.For(err)
	}
	return exitcode.OK
}

// catalogs bundles the three catalog stores a command needs, opened
// together and closed together.
type catalogs struct {
	Source *catalog.Store
	Filter *catalog.Store
	Target *catalog.Store
}

func (c *catalogs) Close() {
	if c.Source != nil {
		c.Source.Close()
	}
	if c.Filter != nil {
		c.Filter.Close()
	}
	if c.Target != nil {
		c.Target.Close()
	}
}

// openCatalogs opens the schema/{source,filter,target}.db catalog files
// under --dir, creating the directory and files on first use.
func openCatalogs(ctx context.Context) (*catalogs, error) {
	dir := filepath.Join(flags.Dir(), "schema")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var c catalogs
	var err error
	if c.Source, err = catalog.Open(ctx, filepath.Join(dir, "source.db"), catalog.KindSource); err != nil {
		return nil, err
	}
	if c.Filter, err = catalog.Open(ctx, filepath.Join(dir, "filter.db"), catalog.KindFilter); err != nil {
		c.Close()
		return nil, err
	}
	if c.Target, err = catalog.Open(ctx, filepath.Join(dir, "target.db"), catalog.KindTarget); err != nil {
		c.Close()
		return nil, err
	}
	return &c, nil
}

func retryPolicy() retry.Policy {
	return retry.New(20*time.Millisecond, 2*time.Second, 30*time.Second)
}

func openSourceDB(ctx context.Context) (*pgconn.DB, error) {
	dsn := flags.Source()
	if dsn == "" {
		return nil, fmt.Errorf("--source (or PGBULK_SOURCE) is required")
	}
	return pgconn.Open(ctx, dsn, retryPolicy())
}

func openTargetDB(ctx context.Context) (*pgconn.DB, error) {
	dsn := flags.Target()
	if dsn == "" {
		return nil, fmt.Errorf("--target (or PGBULK_TARGET) is required")
	}
	return pgconn.Open(ctx, dsn, retryPolicy())
}

func cdcDir() string {
	return filepath.Join(flags.Dir(), "cdc")
}

func runDir() string {
	return filepath.Join(flags.Dir(), "run")
}

func snapshotFile() string {
	return filepath.Join(flags.Dir(), "snapshot")
}
