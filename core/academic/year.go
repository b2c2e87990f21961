// Package academic models academic years, running from September 15th to September 14th.
package academic

import (
	"fmt"
	"sort"
	"time"
)

const (
	startMonth = time.September
	startDay   = 15
)

// Year is the academic year starting in the calendar year Year.
type Year int

func (y Year) Start() time.Time {
	return time.Date(int(y), startMonth, startDay, 0, 0, 0, 0, time.UTC)
}

func (y Year) End() time.Time {
	return time.Date(int(y)+1, startMonth, startDay-1, 0, 0, 0, 0, time.UTC)
}

// String returns the usual label of the year, e.g. `2023-24`.
func (y Year) String() string {
	return fmt.Sprintf("%d-%02d", int(y), (int(y)+1)%100)
}

func (y Year) Next() Year     { return y + 1 }
func (y Year) Previous() Year { return y - 1 }

// Contains reports whether the date t falls within the academic year.
func (y Year) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(y.Start()) && !d.After(y.End())
}

// Containing returns the academic year the date t falls within.
func Containing(t time.Time) Year {
	y := Year(t.Year())
	if y.Contains(t) {
		return y
	}
	return y - 1
}

// Range returns all years from `from` to `to`, both included.
func Range(from, to Year) []Year {
	if to < from {
		return nil
	}
	years := make([]Year, 0, int(to-from)+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

// Span is an inclusive range of academic years.
type Span struct {
	Start Year `json:"start"`
	End   Year `json:"end"`
}

// Covers reports whether y falls within the span.
func (s Span) Covers(y Year) bool {
	return s.Start <= y && y <= s.End
}

// MergeSpans returns the union of spans, sorted by start.
// Adjacent spans (e.g. 2010-2012 and 2013-2014) are merged.
func MergeSpans(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End+1 {
			if s.End > last.End {
				last.End = s.End
			}
		} else {
			merged = append(merged, s)
		}
	}
	return merged
}
