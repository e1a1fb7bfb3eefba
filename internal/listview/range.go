package listview

import "sort"

// Range is a half-open [Start, End) index interval.
type Range struct {
	Start int
	End   int
}

func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

func (r Range) Empty() bool { return r.End <= r.Start }

// NormalizeRanges sorts ranges and collapses overlapping or adjacent
// ones, dropping empties. The result is the canonical stored form for
// hidden areas.
func NormalizeRanges(ranges []Range) []Range {
	rs := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if !r.Empty() {
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 {
		return nil
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// shiftRanges adjusts index ranges for a splice at start that removed
// deleted items and inserted inserted items. Ranges beyond the edit
// shift by the length delta; ranges overlapping it are clamped.
func shiftRanges(ranges []Range, start, deleted, inserted int) []Range {
	delta := inserted - deleted
	end := start + deleted
	var out []Range
	for _, r := range ranges {
		switch {
		case r.End <= start:
			out = append(out, r)
		case r.Start >= end:
			out = append(out, Range{Start: r.Start + delta, End: r.End + delta})
		default:
			clamped := Range{Start: min(r.Start, start), End: max(r.End+delta, start)}
			if !clamped.Empty() {
				out = append(out, clamped)
			}
		}
	}
	return NormalizeRanges(out)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
