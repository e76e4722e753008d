package stops

import (
	"database/sql"
	"testing"
	"time"

	"github.com/majidrgold/openpolicing/internal/attrs"
	"github.com/majidrgold/openpolicing/internal/rates"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAgeBucket(t *testing.T) {
	cases := []struct {
		age  sql.NullInt64
		want string
	}{
		{sql.NullInt64{}, ""},
		{sql.NullInt64{Int64: 12, Valid: true}, ""},
		{sql.NullInt64{Int64: 16, Valid: true}, "16-25"},
		{sql.NullInt64{Int64: 25, Valid: true}, "16-25"},
		{sql.NullInt64{Int64: 26, Valid: true}, "26-35"},
		{sql.NullInt64{Int64: 45, Valid: true}, "36-45"},
		{sql.NullInt64{Int64: 55, Valid: true}, "46-55"},
		{sql.NullInt64{Int64: 90, Valid: true}, "56+"},
	}
	for _, tc := range cases {
		s := Stop{DriverAge: tc.age}
		if got := s.AgeBucket(); got != tc.want {
			t.Errorf("AgeBucket(%+v) = %q, want %q", tc.age, got, tc.want)
		}
	}
}

func TestFilterApply(t *testing.T) {
	all := []Stop{
		{Date: date("2013-06-01"), County: "Wake County", DriverRace: "White"},
		{Date: date("2014-06-01"), County: "Durham County", DriverRace: "Black"},
		{Date: date("2015-06-01"), County: "Wake County", DriverRace: "Hispanic"},
		{Date: date("2016-01-01"), County: "Wake County", DriverRace: "White"},
	}

	// Date range: From inclusive, To exclusive.
	f := Filter{From: date("2014-01-01"), To: date("2016-01-01")}
	got := f.Apply(all)
	if len(got) != 2 {
		t.Fatalf("expected 2 stops in range, got %d", len(got))
	}

	// County filter.
	f = Filter{Counties: []string{"Wake County"}}
	if got := f.Apply(all); len(got) != 3 {
		t.Errorf("expected 3 Wake County stops, got %d", len(got))
	}

	// Combined.
	f = Filter{From: date("2014-01-01"), Races: []string{"Hispanic", "Black"}}
	if got := f.Apply(all); len(got) != 2 {
		t.Errorf("expected 2 minority stops after 2014, got %d", len(got))
	}

	// Open filter passes everything through unchanged.
	if got := (Filter{}).Apply(all); len(got) != len(all) {
		t.Errorf("open filter dropped rows: %d != %d", len(got), len(all))
	}
}

func TestFilterValidate(t *testing.T) {
	bad := Filter{From: date("2016-01-01"), To: date("2014-01-01")}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inverted range")
	}
	if err := (Filter{}).Validate(); err != nil {
		t.Errorf("open filter should validate: %v", err)
	}
}

func TestObservations(t *testing.T) {
	all := []Stop{
		{
			Date:            date("2014-03-01"),
			County:          "Wake County",
			DriverRace:      "Black",
			DriverGender:    "M",
			DriverAge:       sql.NullInt64{Int64: 30, Valid: true},
			Violation:       "Speed Limit",
			SearchConducted: true,
			ContrabandFound: sql.NullBool{Bool: true, Valid: true},
		},
		{Date: date("2014-03-02"), SearchConducted: false},
	}

	obs := Observations(all)
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}

	first := obs[0]
	if !first.SearchConducted || !first.ContrabandFound.Valid {
		t.Errorf("observation = %+v", first)
	}
	if first.Values[attrs.AgeBucket] != "26-35" {
		t.Errorf("age bucket = %q, want 26-35", first.Values[attrs.AgeBucket])
	}
	if first.Values[attrs.County] != "Wake County" {
		t.Errorf("county = %q", first.Values[attrs.County])
	}

	// The second stop has no attribute values at all; grouping by any
	// attribute must exclude it.
	res := rates.Aggregate(obs, []rates.Selector{rates.ByAttr(attrs.County)})
	if res.Excluded != 1 {
		t.Errorf("excluded = %d, want 1", res.Excluded)
	}
	if len(res.Rows) != 1 || res.Rows[0].Hits != 1 {
		t.Errorf("rows = %+v", res.Rows)
	}
}
