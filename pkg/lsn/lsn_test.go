package lsn_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgbulk/pgbulk/pkg/lsn"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		Name     string
		Input    string
		Expected lsn.LSN
	}{
		{"zero", "0/0", lsn.Zero},
		{"typical", "16/B374D848", lsn.LSN(0x16<<32 | 0xB374D848)},
		{"max low half", "0/FFFFFFFF", lsn.LSN(0xFFFFFFFF)},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			got, err := lsn.Parse(tt.Input)
			require.NoError(t, err)
			assert.Equal(t, tt.Expected, got)
			assert.Equal(t, tt.Input, got.String())
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{"", "garbage", "16", "ZZ/10"} {
		_, err := lsn.Parse(in)
		assert.Error(t, err, in)
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { lsn.MustParse("not an lsn") })
}

func TestScanRoundTrip(t *testing.T) {
	var l lsn.LSN
	require.NoError(t, l.Scan("1/0"))
	assert.Equal(t, lsn.LSN(1<<32), l)

	require.NoError(t, l.Scan([]byte("2/0")))
	assert.Equal(t, lsn.LSN(2<<32), l)

	require.NoError(t, l.Scan(nil))
	assert.Equal(t, lsn.Zero, l)

	assert.Error(t, l.Scan(3.14))
}

func TestWALSegment(t *testing.T) {
	const segSize = 16 * 1024 * 1024

	logID, segID := lsn.LSN(0).WALSegment(1, segSize)
	assert.Equal(t, uint32(0), logID)
	assert.Equal(t, uint32(0), segID)

	// One byte past the first segment rolls over to segment 1.
	logID, segID = lsn.LSN(segSize).WALSegment(1, segSize)
	assert.Equal(t, uint32(0), logID)
	assert.Equal(t, uint32(1), segID)

	// 0x100000000 / segSize segments fit in one log id.
	segsPerLogID := uint32(0x100000000 / segSize)
	logID, segID = lsn.LSN(uint64(segsPerLogID) * segSize).WALSegment(1, segSize)
	assert.Equal(t, uint32(1), logID)
	assert.Equal(t, uint32(0), segID)
}

func TestSegmentFileName(t *testing.T) {
	assert.Equal(t, "00000001000000020000000A", lsn.SegmentFileName(1, 2, 10))
}

func TestJSONRoundTrip(t *testing.T) {
	l := lsn.MustParse("16/B374D848")

	b, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `"16/B374D848"`, string(b))

	var got lsn.LSN
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, l, got)
}

func TestJSONUnmarshalEmptyIsZero(t *testing.T) {
	var got lsn.LSN
	require.NoError(t, json.Unmarshal([]byte(`""`), &got))
	assert.Equal(t, lsn.Zero, got)
}

func TestJSONUnmarshalMalformed(t *testing.T) {
	var got lsn.LSN
	assert.Error(t, json.Unmarshal([]byte(`"garbage"`), &got))
}
