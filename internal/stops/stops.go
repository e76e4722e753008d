// Package stops models individual traffic-stop records and their
// conversion into observations for rate aggregation.
package stops

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/majidrgold/openpolicing/internal/attrs"
	"github.com/majidrgold/openpolicing/internal/rates"
)

// Stop is one recorded traffic stop. Optional columns use sql.Null types
// so that an absent value never masquerades as a zero or false:
// ContrabandFound in particular is NULL whenever no search happened.
type Stop struct {
	Date            time.Time     `json:"stop_date"`
	County          string        `json:"county_name"`
	DriverRace      string        `json:"driver_race"`
	DriverGender    string        `json:"driver_gender"`
	DriverAge       sql.NullInt64 `json:"driver_age"`
	Violation       string        `json:"violation"`
	SearchConducted bool          `json:"search_conducted"`
	ContrabandFound sql.NullBool  `json:"contraband_found"`
	Outcome         string        `json:"stop_outcome"`
}

// AgeBucket returns the categorical age bucket used as a grouping
// attribute, or "" when the age is unknown.
func (s Stop) AgeBucket() string {
	if !s.DriverAge.Valid {
		return ""
	}
	age := s.DriverAge.Int64
	switch {
	case age < 16:
		return ""
	case age < 26:
		return "16-25"
	case age < 36:
		return "26-35"
	case age < 46:
		return "36-45"
	case age < 56:
		return "46-55"
	default:
		return "56+"
	}
}

// Attr returns the named grouping attribute value. Unknown values come
// back empty, which the aggregator treats as missing.
func (s Stop) Attr(name string) string {
	switch name {
	case attrs.County:
		return s.County
	case attrs.DriverRace:
		return s.DriverRace
	case attrs.DriverGender:
		return s.DriverGender
	case attrs.AgeBucket:
		return s.AgeBucket()
	case attrs.Violation:
		return s.Violation
	default:
		return ""
	}
}

// Filter selects a slice of the dataset. Zero fields are open: a zero
// From or To leaves that end of the date range unbounded, empty Counties
// or Races match everything. From is inclusive, To exclusive.
type Filter struct {
	From     time.Time
	To       time.Time
	Counties []string
	Races    []string
}

func matchesAny(value string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// Apply returns the stops matching the filter, preserving input order.
func (f Filter) Apply(all []Stop) []Stop {
	var out []Stop
	for _, s := range all {
		if !f.From.IsZero() && s.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !s.Date.Before(f.To) {
			continue
		}
		if !matchesAny(s.County, f.Counties) {
			continue
		}
		if !matchesAny(s.DriverRace, f.Races) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Validate rejects filters with an inverted date range.
func (f Filter) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("filter range ends (%s) before it starts (%s)",
			f.To.Format("2006-01-02"), f.From.Format("2006-01-02"))
	}
	return nil
}

// Observations converts stops into aggregator observations, carrying
// every valid grouping attribute. Attributes with no value for a stop
// are simply absent from the map.
func Observations(all []Stop) []rates.Observation {
	out := make([]rates.Observation, 0, len(all))
	for _, s := range all {
		values := make(map[string]string, len(attrs.ValidAttrs))
		for _, name := range attrs.ValidAttrs {
			if v := s.Attr(name); v != "" {
				values[name] = v
			}
		}
		out = append(out, rates.Observation{
			SearchConducted: s.SearchConducted,
			ContrabandFound: s.ContrabandFound,
			Values:          values,
		})
	}
	return out
}
