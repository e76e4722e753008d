// Package rates computes group-wise search and contraband hit statistics
// from traffic-stop observations.
//
// The engine is a single-pass batch aggregation: observations are
// partitioned by one or more categorical selectors and each group
// accumulates three counters (stops, searches, hits) from which the
// search rate and hit rate are derived. Rates with a zero denominator
// are carried as explicitly undefined values rather than zero so that
// downstream joins and averages cannot mistake "no searches" for
// "never finds contraband".
package rates

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// keySep joins grouping values into a map key. ASCII unit separator, so
// ordinary categorical values cannot collide.
const keySep = "\x1f"

// Observation is one traffic stop as seen by the aggregator.
//
// ContrabandFound is meaningful only when SearchConducted is true; for
// stops without a search it should be left invalid (NULL), matching how
// the column is stored. Values holds the categorical grouping attributes
// (county, driver race, ...); an attribute that is absent or empty is
// treated as missing.
type Observation struct {
	SearchConducted bool
	ContrabandFound sql.NullBool
	Values          map[string]string
}

// Selector extracts one grouping value from an observation. Key returns
// ok=false when the observation has no usable value for this attribute,
// which excludes the observation from the aggregation entirely.
type Selector struct {
	Name string
	Key  func(Observation) (string, bool)
}

// ByAttr selects the named attribute from Observation.Values. Empty
// strings count as missing.
func ByAttr(name string) Selector {
	return Selector{
		Name: name,
		Key: func(o Observation) (string, bool) {
			v, ok := o.Values[name]
			return v, ok && v != ""
		},
	}
}

// Rate is a fraction that may be undefined. A Rate with Valid=false has
// no numeric value: it serializes as JSON null and must not be folded
// into averages or comparisons.
type Rate struct {
	Value float64
	Valid bool
}

// Defined returns a valid Rate.
func Defined(v float64) Rate { return Rate{Value: v, Valid: true} }

// Undefined returns the missing Rate.
func Undefined() Rate { return Rate{} }

// Float64 returns the numeric value and whether it is defined.
func (r Rate) Float64() (float64, bool) { return r.Value, r.Valid }

// MarshalJSON encodes undefined rates as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON decodes null as an undefined rate.
func (r *Rate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Rate{}
		return nil
	}
	if err := json.Unmarshal(data, &r.Value); err != nil {
		return err
	}
	r.Valid = true
	return nil
}

// Summary is the aggregate for one group. Invariants:
// Hits <= Searches <= Stops, SearchRate is always defined (a group only
// exists with at least one stop), HitRate is undefined when Searches==0.
type Summary struct {
	Stops      int  `json:"n_stops"`
	Searches   int  `json:"n_searches"`
	Hits       int  `json:"n_hits"`
	SearchRate Rate `json:"search_rate"`
	HitRate    Rate `json:"hit_rate"`
}

// Row pairs a group key with its summary. Key holds one value per
// selector, in selector order.
type Row struct {
	Key []string `json:"key"`
	Summary
}

// Result is the output of one aggregation pass.
type Result struct {
	// GroupBy names the selectors that produced the keys, in order.
	GroupBy []string `json:"group_by"`
	// Rows are emitted in first-appearance order of each group key,
	// so repeated aggregation of the same snapshot is order-stable.
	Rows []Row `json:"rows"`
	// Excluded counts observations dropped for missing grouping values.
	Excluded int `json:"excluded"`
}

type accumulator struct {
	stops    int
	searches int
	hits     int
}

// Aggregate partitions observations by the groupBy selectors and returns
// one row per distinct key, in first-appearance order.
//
// Observations with a missing value for any selector are excluded from
// every group (not bucketed under a synthetic "unknown") and tallied in
// Result.Excluded. An empty groupBy list yields a single group with an
// empty key covering all observations. Empty input yields zero rows.
func Aggregate(observations []Observation, groupBy []Selector) *Result {
	res := &Result{GroupBy: make([]string, len(groupBy))}
	for i, sel := range groupBy {
		res.GroupBy[i] = sel.Name
	}

	var order []string
	accs := make(map[string]*accumulator)
	keys := make(map[string][]string)

	for _, o := range observations {
		key := make([]string, len(groupBy))
		missing := false
		for i, sel := range groupBy {
			v, ok := sel.Key(o)
			if !ok {
				missing = true
				break
			}
			key[i] = v
		}
		if missing {
			res.Excluded++
			continue
		}

		k := strings.Join(key, keySep)
		acc, ok := accs[k]
		if !ok {
			acc = &accumulator{}
			accs[k] = acc
			keys[k] = key
			order = append(order, k)
		}

		acc.stops++
		if o.SearchConducted {
			acc.searches++
			if o.ContrabandFound.Valid && o.ContrabandFound.Bool {
				acc.hits++
			}
		}
	}

	res.Rows = make([]Row, 0, len(order))
	for _, k := range order {
		acc := accs[k]
		s := Summary{
			Stops:    acc.stops,
			Searches: acc.searches,
			Hits:     acc.hits,
			// Denominator is non-zero: the group exists only because
			// at least one observation landed in it.
			SearchRate: Defined(float64(acc.searches) / float64(acc.stops)),
		}
		if acc.searches > 0 {
			s.HitRate = Defined(float64(acc.hits) / float64(acc.searches))
		}
		res.Rows = append(res.Rows, Row{Key: keys[k], Summary: s})
	}
	return res
}
