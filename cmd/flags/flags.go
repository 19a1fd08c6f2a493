// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Source returns the source Postgres DSN.
func Source() string { return viper.GetString("SOURCE") }

// Target returns the target Postgres DSN.
func Target() string { return viper.GetString("TARGET") }

// Dir returns the working directory holding schema/, cdc/, run/, snapshot.
func Dir() string { return viper.GetString("DIR") }

// FilterPath returns the path to an external filter specification file, or
// empty to use the default, an empty specification that selects every
// object.
func FilterPath() string { return viper.GetString("FILTER") }

func ListSkipped() bool     { return viper.GetBool("LIST_SKIPPED") }
func WithoutPKey() bool     { return viper.GetBool("WITHOUT_PKEY") }
func JSONOutput() bool      { return viper.GetBool("JSON") }
func Force() bool           { return viper.GetBool("FORCE") }
func Resume() bool          { return viper.GetBool("RESUME") }
func NotConsistent() bool   { return viper.GetBool("NOT_CONSISTENT") }
func Snapshot() string      { return viper.GetString("SNAPSHOT") }
func DropCache() bool       { return viper.GetBool("DROP_CACHE") }
func SplitThreshold() int64 { return viper.GetInt64("SPLIT_TABLES_LARGER_THAN") }
func SplitMaxParts() int    { return viper.GetInt("SPLIT_MAX_PARTS") }
func Workers() int          { return viper.GetInt("WORKERS") }
func Endpos() string        { return viper.GetString("ENDPOS") }
func SlotName() string      { return viper.GetString("SLOT") }
func OriginName() string    { return viper.GetString("ORIGIN") }

// CommonFlags registers the flags shared by every subcommand that touches
// the source/target/catalog triple, binding each to a PGBULK_* environment
// variable fallback.
func CommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("source", "", "Source Postgres DSN (or PGBULK_SOURCE)")
	cmd.PersistentFlags().String("target", "", "Target Postgres DSN (or PGBULK_TARGET)")
	cmd.PersistentFlags().String("dir", ".pgbulk", "Working directory for catalog, snapshot and CDC state")
	cmd.PersistentFlags().String("filter", "", "Path to a filter specification file")
	cmd.PersistentFlags().Bool("list-skipped", false, "List only objects excluded by the filter")
	cmd.PersistentFlags().Bool("without-pkey", false, "List only tables lacking a usable key for partitioning")
	cmd.PersistentFlags().Bool("json", false, "Emit machine-readable JSON instead of a table")
	cmd.PersistentFlags().Bool("force", false, "Override a mismatched persisted run configuration")
	cmd.PersistentFlags().Bool("resume", false, "Resume a previously interrupted run")
	cmd.PersistentFlags().Bool("not-consistent", false, "Skip snapshot-consistency guarantees (faster, weaker)")
	cmd.PersistentFlags().String("snapshot", "", "Exported snapshot identifier to pin reads to")
	cmd.PersistentFlags().Bool("drop-cache", false, "Drop and recreate the local catalog cache before running")
	cmd.PersistentFlags().Int64("split-tables-larger-than", 256*1024*1024, "Partition tables larger than this many bytes")
	cmd.PersistentFlags().Int("split-max-parts", 64, "Maximum number of partitions per table")
	cmd.PersistentFlags().Int("workers", 4, "Number of worker processes")
	cmd.PersistentFlags().String("endpos", "", "Stop replay at this source LSN, overriding the sentinel")
	cmd.PersistentFlags().String("slot", "pgbulk", "Logical replication slot name")
	cmd.PersistentFlags().String("origin", "pgbulk", "Replication origin name")

	viper.BindPFlag("SOURCE", cmd.PersistentFlags().Lookup("source"))
	viper.BindPFlag("TARGET", cmd.PersistentFlags().Lookup("target"))
	viper.BindPFlag("DIR", cmd.PersistentFlags().Lookup("dir"))
	viper.BindPFlag("FILTER", cmd.PersistentFlags().Lookup("filter"))
	viper.BindPFlag("LIST_SKIPPED", cmd.PersistentFlags().Lookup("list-skipped"))
	viper.BindPFlag("WITHOUT_PKEY", cmd.PersistentFlags().Lookup("without-pkey"))
	viper.BindPFlag("JSON", cmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("FORCE", cmd.PersistentFlags().Lookup("force"))
	viper.BindPFlag("RESUME", cmd.PersistentFlags().Lookup("resume"))
	viper.BindPFlag("NOT_CONSISTENT", cmd.PersistentFlags().Lookup("not-consistent"))
	viper.BindPFlag("SNAPSHOT", cmd.PersistentFlags().Lookup("snapshot"))
	viper.BindPFlag("DROP_CACHE", cmd.PersistentFlags().Lookup("drop-cache"))
	viper.BindPFlag("SPLIT_TABLES_LARGER_THAN", cmd.PersistentFlags().Lookup("split-tables-larger-than"))
	viper.BindPFlag("SPLIT_MAX_PARTS", cmd.PersistentFlags().Lookup("split-max-parts"))
	viper.BindPFlag("WORKERS", cmd.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("ENDPOS", cmd.PersistentFlags().Lookup("endpos"))
	viper.BindPFlag("SLOT", cmd.PersistentFlags().Lookup("slot"))
	viper.BindPFlag("ORIGIN", cmd.PersistentFlags().Lookup("origin"))
}
