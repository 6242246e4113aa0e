package pricing

import (
	"sort"
	"time"
)

// Resolve returns the record with the latest EffectiveFrom not after at, or
// nil when none is effective yet. Records may be in any order.
func Resolve(records []Record, at time.Time) *Record {
	var best *Record
	for i := range records {
		rec := &records[i]
		if rec.EffectiveFrom.After(at) {
			continue
		}
		if best == nil || rec.EffectiveFrom.After(best.EffectiveFrom) {
			best = rec
		}
	}
	return best
}

// Predecessor returns the record that rec superseded: the latest record
// strictly before rec.EffectiveFrom.
func Predecessor(records []Record, rec Record) *Record {
	var best *Record
	for i := range records {
		cand := &records[i]
		if !cand.EffectiveFrom.Before(rec.EffectiveFrom) {
			continue
		}
		if best == nil || cand.EffectiveFrom.After(best.EffectiveFrom) {
			best = cand
		}
	}
	return best
}

// Referenced reports whether a later record exists for rec's lineage, which
// makes rec that record's predecessor.
func Referenced(records []Record, rec Record) bool {
	for i := range records {
		if records[i].EffectiveFrom.After(rec.EffectiveFrom) {
			return true
		}
	}
	return false
}

// Chain orders a lineage by EffectiveFrom and fills in Previous links.
func Chain(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	for i := range out {
		out[i].Previous = nil
		if i > 0 {
			prev := out[i-1].ID
			out[i].Previous = &prev
		}
	}
	return out
}
