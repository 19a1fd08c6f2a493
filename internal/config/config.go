// Package config assembles the engine's immutable run configuration from
// flags and environment, matching the corpus' convention of binding
// github.com/spf13/viper env vars behind a typed accessor layer
// (cmd/flags in the teacher) instead of threading *cobra.Command through
// business logic.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pgbulk/pgbulk/internal/engineerr"
)

// EnvPrefix is the environment variable prefix every setting is bound
// under, e.g. PGBULK_SOURCE.
const EnvPrefix = "PGBULK"

func init() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
}

// Config is the immutable tuple read once at process startup and passed
// by reference to every component that needs it; no package-level mutable
// configuration state exists outside of this type.
type Config struct {
	SourceDSN string
	TargetDSN string

	Dir string // working directory holding schema/, cdc/, run/, snapshot

	SplitThreshold int64
	SplitMaxParts  int

	PluginName string
	SlotName   string
	OriginName string

	Force        bool
	Resume       bool
	NotConsistent bool
	SnapshotID   string

	WALSegmentSize uint64

	SentinelPollInterval time.Duration
}

// FromViper builds a Config from whatever viper has bound (flags merged
// with PGBULK_* environment variables by the caller's cobra wiring),
// applying the defaults the specification mandates.
func FromViper(v *viper.Viper) (*Config, error) {
	c := &Config{
		SourceDSN:            v.GetString("SOURCE"),
		TargetDSN:            v.GetString("TARGET"),
		Dir:                  v.GetString("DIR"),
		SplitThreshold:       v.GetInt64("SPLIT_TABLES_LARGER_THAN"),
		SplitMaxParts:        v.GetInt("SPLIT_MAX_PARTS"),
		PluginName:           orDefault(v.GetString("PLUGIN"), "wal2json"),
		SlotName:             orDefault(v.GetString("SLOT"), "pgbulk"),
		OriginName:           orDefault(v.GetString("ORIGIN"), "pgbulk"),
		Force:                v.GetBool("FORCE"),
		Resume:               v.GetBool("RESUME"),
		NotConsistent:        v.GetBool("NOT_CONSISTENT"),
		SnapshotID:           v.GetString("SNAPSHOT"),
		WALSegmentSize:       16 * 1024 * 1024,
		SentinelPollInterval: 10 * time.Second,
	}
	if c.SplitThreshold == 0 {
		c.SplitThreshold = 256 * 1024 * 1024
	}
	if c.SplitMaxParts == 0 {
		c.SplitMaxParts = 64
	}

	if c.SourceDSN == "" {
		return nil, engineerr.New(engineerr.KindConfiguration, fmt.Errorf("source DSN is required (--source or %s_SOURCE)", EnvPrefix))
	}
	if c.Dir == "" {
		return nil, engineerr.New(engineerr.KindConfiguration, fmt.Errorf("working directory is required (--dir)"))
	}
	return c, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
