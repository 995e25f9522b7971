package domain

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// thousandsGrouped matches numbers written with comma thousands separators.
var thousandsGrouped = regexp.MustCompile(`^[-+]?\d{1,3}(,\d{3})+(\.\d+)?$`)

// ParseValue parses a raw record value. Whitespace is trimmed and commas are
// stripped only when they group thousands, so "1,234" parses but "30,5" does
// not. Unparseable, NaN and infinite values report false.
func ParseValue(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if thousandsGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatValue renders a parsed number as record value text.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GroupByRegionAndPeriod groups records using the embedded region table.
func GroupByRegionAndPeriod(records []Record) []AggregateSeries {
	return DefaultRegions().GroupByRegionAndPeriod(records)
}

// mean accumulates the parseable values of one (region, period) pair.
type mean struct {
	sum float64
	n   int
}

// GroupByRegionAndPeriod partitions records by canonical region, then by
// period, and averages the parseable values of each pair. Pairs with no
// parseable value are omitted. Records that do not reconcile land in a
// series keyed Unresolved, ordered last.
func (t *RegionTable) GroupByRegionAndPeriod(records []Record) []AggregateSeries {
	series, _ := t.Group(records)
	return series
}

// Group is GroupByRegionAndPeriod that also reports how many records were
// left out of every mean because their value did not parse.
func (t *RegionTable) Group(records []Record) (series []AggregateSeries, malformed int) {
	byRegion := make(map[CanonicalRegion]map[int]*mean)

	for _, rec := range records {
		region := t.Reconcile(rec.Region, SchemeAny)
		periods, ok := byRegion[region]
		if !ok {
			periods = make(map[int]*mean)
			byRegion[region] = periods
		}

		v, ok := ParseValue(rec.Value)
		if !ok {
			malformed++
			continue
		}
		m := periods[rec.Period]
		if m == nil {
			m = &mean{}
			periods[rec.Period] = m
		}
		m.sum += v
		m.n++
	}

	out := make([]AggregateSeries, 0, len(byRegion))
	for region, periods := range byRegion {
		points := make([]Point, 0, len(periods))
		for period, m := range periods {
			points = append(points, Point{Period: period, Value: m.sum / float64(m.n)})
		}
		slices.SortFunc(points, func(a, b Point) int { return cmp.Compare(a.Period, b.Period) })
		out = append(out, AggregateSeries{Key: region, Points: points})
	}
	slices.SortFunc(out, func(a, b AggregateSeries) int { return compareRegions(a.Key, b.Key) })
	return out, malformed
}

// CountByRegion counts records per canonical region regardless of value,
// e.g. hospitals per state.
func CountByRegion(records []Record) []RegionCount {
	return DefaultRegions().CountByRegion(records)
}

// CountByRegion counts records per canonical region using t.
func (t *RegionTable) CountByRegion(records []Record) []RegionCount {
	counts := make(map[CanonicalRegion]int)
	for _, rec := range records {
		counts[t.Reconcile(rec.Region, SchemeAny)]++
	}

	out := make([]RegionCount, 0, len(counts))
	for region, n := range counts {
		out = append(out, RegionCount{Region: region, Count: n})
	}
	slices.SortFunc(out, func(a, b RegionCount) int { return compareRegions(a.Region, b.Region) })
	return out
}

// compareRegions orders resolved regions alphabetically with Unresolved last.
func compareRegions(a, b CanonicalRegion) int {
	switch {
	case a == b:
		return 0
	case a == Unresolved:
		return 1
	case b == Unresolved:
		return -1
	default:
		return strings.Compare(string(a), string(b))
	}
}
