package rates

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Metric names a derived rate on a Summary.
type Metric string

const (
	MetricSearchRate Metric = "search_rate"
	MetricHitRate    Metric = "hit_rate"
)

// of returns the chosen rate from a summary.
func (m Metric) of(s Summary) (Rate, error) {
	switch m {
	case MetricSearchRate:
		return s.SearchRate, nil
	case MetricHitRate:
		return s.HitRate, nil
	default:
		return Rate{}, fmt.Errorf("unknown metric %q", string(m))
	}
}

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	return m == MetricSearchRate || m == MetricHitRate
}

// ComparisonRow pairs one comparison group's rate against the reference
// group's rate for the same secondary key (e.g. the same county).
type ComparisonRow struct {
	Secondary       string  `json:"secondary"`
	Group           string  `json:"group"`
	ReferenceRate   float64 `json:"reference_rate"`
	ComparisonRate  float64 `json:"comparison_rate"`
	ComparisonStops int     `json:"comparison_stops"`
}

// Compare joins each non-reference primary group against the reference
// group sharing the same secondary key, producing the paired rates used
// for disparity scatterplots.
//
// The result must come from an Aggregate call with exactly two
// selectors: the primary attribute first (e.g. driver race) and the
// secondary attribute second (e.g. county). The join is inner: secondary
// keys present on only one side are dropped, as are pairs where either
// side's rate is undefined — a plotted point needs both coordinates.
// Output order follows the first appearance of each (secondary, group)
// pair among the non-reference rows.
func Compare(res *Result, reference string, metric Metric) ([]ComparisonRow, error) {
	if res == nil || len(res.GroupBy) != 2 {
		return nil, fmt.Errorf("compare requires aggregation by exactly two attributes, got %d", len(resGroupBy(res)))
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", string(metric))
	}

	refRates := make(map[string]Rate)
	for _, row := range res.Rows {
		if row.Key[0] != reference {
			continue
		}
		r, err := metric.of(row.Summary)
		if err != nil {
			return nil, err
		}
		refRates[row.Key[1]] = r
	}

	var out []ComparisonRow
	for _, row := range res.Rows {
		if row.Key[0] == reference {
			continue
		}
		cmpRate, err := metric.of(row.Summary)
		if err != nil {
			return nil, err
		}
		refRate, ok := refRates[row.Key[1]]
		if !ok || !refRate.Valid || !cmpRate.Valid {
			continue
		}
		out = append(out, ComparisonRow{
			Secondary:       row.Key[1],
			Group:           row.Key[0],
			ReferenceRate:   refRate.Value,
			ComparisonRate:  cmpRate.Value,
			ComparisonStops: row.Stops,
		})
	}
	return out, nil
}

func resGroupBy(res *Result) []string {
	if res == nil {
		return nil
	}
	return res.GroupBy
}

// PooledRate returns the stop-weighted mean of the defined rates across
// rows. Rows whose rate is undefined contribute nothing, so a group with
// zero searches cannot drag a pooled hit rate toward zero. Undefined
// when no row has a defined rate.
func PooledRate(rows []Row, metric Metric) Rate {
	var values, weights []float64
	for _, row := range rows {
		r, err := metric.of(row.Summary)
		if err != nil || !r.Valid {
			continue
		}
		values = append(values, r.Value)
		weights = append(weights, float64(row.Stops))
	}
	if len(values) == 0 {
		return Undefined()
	}
	return Defined(stat.Mean(values, weights))
}
