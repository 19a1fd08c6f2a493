package lsn

import "sort"

// Pair associates a source transaction's commit LSN with the target's WAL
// insert LSN observed immediately after that transaction was applied.
type Pair struct {
	Source LSN
	Insert LSN
}

// Track is an append-only, ascending-by-Insert vector of (source, insert)
// pairs. It replaces the teacher corpus' pointer-linked list with a slice
// searched by binary search, per DESIGN NOTES §9.
type Track struct {
	pairs []Pair
}

// Append records a new pair. Callers must append in non-decreasing Insert
// order (true by construction: insert LSNs are read from the target after
// each transactional advance).
func (t *Track) Append(p Pair) {
	t.pairs = append(t.pairs, p)
}

// GreatestSourceAtOrBelow returns the greatest Source LSN whose Insert LSN
// is <= flushed, or Zero if no such pair exists. This implements the
// applier's durable-LSN reporting rule (spec §4.J): among all transactions
// applied so far, the newest one guaranteed to have reached the target's
// flushed WAL.
func (t *Track) GreatestSourceAtOrBelow(flushed LSN) LSN {
	// pairs is sorted ascending by Insert; find the last index whose
	// Insert <= flushed.
	idx := sort.Search(len(t.pairs), func(i int) bool {
		return t.pairs[i].Insert > flushed
	})
	if idx == 0 {
		return Zero
	}
	best := Zero
	for i := 0; i < idx; i++ {
		if t.pairs[i].Source > best {
			best = t.pairs[i].Source
		}
	}
	return best
}

// TrimBefore discards pairs whose Insert LSN is strictly below keep,
// bounding memory growth across a long-running apply session.
func (t *Track) TrimBefore(keep LSN) {
	idx := sort.Search(len(t.pairs), func(i int) bool {
		return t.pairs[i].Insert >= keep
	})
	t.pairs = t.pairs[idx:]
}

// Len reports the number of tracked pairs.
func (t *Track) Len() int { return len(t.pairs) }
