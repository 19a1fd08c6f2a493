// Package lsn implements the Postgres log-sequence-number type used
// throughout the CDC pipeline: a 64-bit unsigned integer with a canonical
// "hi/lo" textual form, e.g. "16/B374D848".
package lsn

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// MarshalJSON renders the canonical "hi/lo" textual form, matching
// wal2json's own encoding of LSN values as quoted strings.
func (l LSN) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON accepts wal2json's quoted "hi/lo" string form. An empty
// string (omitted field round-tripped through omitempty on the zero
// value) decodes to Zero.
func (l *LSN) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*l = Zero
		return nil
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// LSN is a Postgres log sequence number.
type LSN uint64

// Zero is the sentinel "no position" value.
const Zero LSN = 0

// Parse decodes the canonical "hi/lo" textual form.
func Parse(s string) (LSN, error) {
	hi, lo, ok := strings.Cut(s, "/")
	if !ok {
		return 0, fmt.Errorf("lsn: malformed value %q", s)
	}
	hiV, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("lsn: malformed high half of %q: %w", s, err)
	}
	loV, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("lsn: malformed low half of %q: %w", s, err)
	}
	return LSN(hiV<<32 | loV), nil
}

// MustParse is like Parse but panics on error; used for constants in tests.
func MustParse(s string) LSN {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the canonical "hi/lo" textual form.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(l>>32), uint32(l))
}

// Value implements driver.Valuer for storage as TEXT in the catalog store.
func (l LSN) Value() (driver.Value, error) {
	return l.String(), nil
}

// Scan implements sql.Scanner.
func (l *LSN) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	case int64:
		*l = LSN(v)
		return nil
	case nil:
		*l = 0
		return nil
	default:
		return fmt.Errorf("lsn: cannot scan %T", src)
	}
}

// WALSegment computes the (log id, segment id) pair of the WAL segment that
// contains l, given a segment size in bytes (normally 16MiB, but
// configurable via the source's wal_segment_size setting). tli does not
// enter the computation.
func (l LSN) WALSegment(tli uint32, segSize uint64) (logID, segID uint32) {
	segNo := uint64(l) / segSize
	segsPerXlogID := uint64(0x100000000) / segSize
	logID = uint32(segNo / segsPerXlogID)
	segID = uint32(segNo % segsPerXlogID)
	return logID, segID
}

// SegmentFileName formats the canonical 24-hex-digit WAL segment file name
// stem (without extension) for (tli, logID, segID).
func SegmentFileName(tli, logID, segID uint32) string {
	return fmt.Sprintf("%08X%08X%08X", tli, logID, segID)
}
