package config_test

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/internal/config"
	"github.com/pgbulk/pgbulk/internal/engineerr"
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("SOURCE", "postgres://source")
	v.Set("DIR", "/tmp/pgbulk")
	return v
}

func TestFromViperAppliesDefaults(t *testing.T) {
	v := baseViper()

	c, err := config.FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, int64(256*1024*1024), c.SplitThreshold)
	assert.Equal(t, 64, c.SplitMaxParts)
	assert.Equal(t, "wal2json", c.PluginName)
	assert.Equal(t, "pgbulk", c.SlotName)
	assert.Equal(t, "pgbulk", c.OriginName)
	assert.Equal(t, uint64(16*1024*1024), c.WALSegmentSize)
	assert.Equal(t, 10*time.Second, c.SentinelPollInterval)
}

func TestFromViperHonorsExplicitValues(t *testing.T) {
	v := baseViper()
	v.Set("TARGET", "postgres://target")
	v.Set("SPLIT_TABLES_LARGER_THAN", int64(1024))
	v.Set("SPLIT_MAX_PARTS", 8)
	v.Set("SLOT", "myslot")
	v.Set("ORIGIN", "myorigin")
	v.Set("FORCE", true)
	v.Set("RESUME", true)
	v.Set("NOT_CONSISTENT", true)
	v.Set("SNAPSHOT", "00000003-1")

	c, err := config.FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "postgres://source", c.SourceDSN)
	assert.Equal(t, "postgres://target", c.TargetDSN)
	assert.Equal(t, int64(1024), c.SplitThreshold)
	assert.Equal(t, 8, c.SplitMaxParts)
	assert.Equal(t, "myslot", c.SlotName)
	assert.Equal(t, "myorigin", c.OriginName)
	assert.True(t, c.Force)
	assert.True(t, c.Resume)
	assert.True(t, c.NotConsistent)
	assert.Equal(t, "00000003-1", c.SnapshotID)
}

func TestFromViperRequiresSourceDSN(t *testing.T) {
	v := viper.New()
	v.Set("DIR", "/tmp/pgbulk")

	_, err := config.FromViper(v)
	require.Error(t, err)
	assert.Equal(t, engineerr.KindConfiguration, engineerr.As(err))
}

func TestFromViperRequiresDir(t *testing.T) {
	v := viper.New()
	v.Set("SOURCE", "postgres://source")

	_, err := config.FromViper(v)
	require.Error(t, err)
	assert.Equal(t, engineerr.KindConfiguration, engineerr.As(err))
}
