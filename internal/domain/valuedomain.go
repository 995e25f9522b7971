package domain

import "math"

// DefaultFallbackDomain is the [0, 100] domain the dashboard uses for
// percentage datasets with no positive values.
func DefaultFallbackDomain() ValueDomain {
	return ValueDomain{Min: 0, Max: 100}
}

// ComputeSeriesDomain returns the [min, max] of all positive point values,
// or fallback when there are none.
func ComputeSeriesDomain(series []AggregateSeries, fallback ValueDomain) ValueDomain {
	var values []float64
	for _, s := range series {
		for _, p := range s.Points {
			values = append(values, p.Value)
		}
	}
	return ComputeDomain(values, fallback)
}

// ComputeRecordDomain returns the [min, max] of all positive parseable
// record values, or fallback when there are none.
func ComputeRecordDomain(records []Record, fallback ValueDomain) ValueDomain {
	values := make([]float64, 0, len(records))
	for _, rec := range records {
		if v, ok := ParseValue(rec.Value); ok {
			values = append(values, v)
		}
	}
	return ComputeDomain(values, fallback)
}

// ComputeDomain returns the [min, max] of the strictly positive values.
// Zero and negative values mean "no data". NaN never compares greater than
// zero, so it is dropped with them; +Inf is dropped too.
func ComputeDomain(values []float64, fallback ValueDomain) ValueDomain {
	var (
		d     ValueDomain
		found bool
	)
	for _, v := range values {
		if !(v > 0) || math.IsInf(v, 1) {
			continue
		}
		if !found {
			d = ValueDomain{Min: v, Max: v}
			found = true
			continue
		}
		d.Min = min(d.Min, v)
		d.Max = max(d.Max, v)
	}
	if !found {
		return fallback
	}
	return d
}
