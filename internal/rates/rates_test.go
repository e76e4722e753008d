package rates

import (
	"database/sql"
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func obs(search bool, found sql.NullBool, values map[string]string) Observation {
	return Observation{SearchConducted: search, ContrabandFound: found, Values: values}
}

func yes() sql.NullBool  { return sql.NullBool{Bool: true, Valid: true} }
func no() sql.NullBool   { return sql.NullBool{Bool: false, Valid: true} }
func null() sql.NullBool { return sql.NullBool{} }

func TestAggregateSingleGroup(t *testing.T) {
	// search=T/hit=T, search=T/hit=F, search=F
	observations := []Observation{
		obs(true, yes(), map[string]string{"race": "black"}),
		obs(true, no(), map[string]string{"race": "black"}),
		obs(false, null(), map[string]string{"race": "black"}),
	}

	res := Aggregate(observations, []Selector{ByAttr("race")})
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 group, got %d", len(res.Rows))
	}

	row := res.Rows[0]
	if row.Stops != 3 || row.Searches != 2 || row.Hits != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", row.Stops, row.Searches, row.Hits)
	}
	if v, ok := row.SearchRate.Float64(); !ok || math.Abs(v-2.0/3.0) > 1e-12 {
		t.Errorf("search rate = %v/%v, want 0.667", v, ok)
	}
	if v, ok := row.HitRate.Float64(); !ok || math.Abs(v-0.5) > 1e-12 {
		t.Errorf("hit rate = %v/%v, want 0.5", v, ok)
	}
}

func TestAggregateStopTotalsMatchInput(t *testing.T) {
	observations := []Observation{
		obs(false, null(), map[string]string{"county": "Alpha"}),
		obs(true, no(), map[string]string{"county": "Alpha"}),
		obs(false, null(), map[string]string{"county": "Beta"}),
		obs(true, yes(), map[string]string{"county": "Beta"}),
		obs(false, null(), map[string]string{}), // missing county, excluded
		obs(false, null(), map[string]string{"county": ""}),
	}

	res := Aggregate(observations, []Selector{ByAttr("county")})

	total := 0
	for _, row := range res.Rows {
		total += row.Stops
		if row.Searches < 0 || row.Searches > row.Stops {
			t.Errorf("group %v: searches %d out of range [0,%d]", row.Key, row.Searches, row.Stops)
		}
		if row.Hits < 0 || row.Hits > row.Searches {
			t.Errorf("group %v: hits %d out of range [0,%d]", row.Key, row.Hits, row.Searches)
		}
	}
	if total != 4 {
		t.Errorf("total stops = %d, want 4 (excluding missing keys)", total)
	}
	if res.Excluded != 2 {
		t.Errorf("excluded = %d, want 2", res.Excluded)
	}
}

func TestAggregateZeroSearchGroup(t *testing.T) {
	observations := []Observation{
		obs(false, null(), map[string]string{"gender": "F"}),
		obs(false, null(), map[string]string{"gender": "F"}),
		obs(true, yes(), map[string]string{"gender": "M"}),
	}

	res := Aggregate(observations, []Selector{ByAttr("gender")})
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(res.Rows))
	}

	f := res.Rows[0]
	if got := f.Key[0]; got != "F" {
		t.Fatalf("first group = %q, want F (first appearance order)", got)
	}
	if f.Searches != 0 {
		t.Errorf("searches = %d, want 0", f.Searches)
	}
	if v, ok := f.SearchRate.Float64(); !ok || v != 0 {
		t.Errorf("search rate = %v/%v, want defined 0", v, ok)
	}
	if _, ok := f.HitRate.Float64(); ok {
		t.Error("hit rate should be undefined for a zero-search group")
	}
}

func TestAggregateIdempotent(t *testing.T) {
	observations := []Observation{
		obs(true, yes(), map[string]string{"race": "hispanic", "county": "Gamma"}),
		obs(false, null(), map[string]string{"race": "white", "county": "Gamma"}),
		obs(true, no(), map[string]string{"race": "white", "county": "Delta"}),
	}
	sel := []Selector{ByAttr("race"), ByAttr("county")}

	first := Aggregate(observations, sel)
	second := Aggregate(observations, sel)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated aggregation differs (-first +second):\n%s", diff)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	res := Aggregate(nil, []Selector{ByAttr("race")})
	if len(res.Rows) != 0 {
		t.Errorf("expected zero groups, got %d", len(res.Rows))
	}
	if res.Excluded != 0 {
		t.Errorf("excluded = %d, want 0", res.Excluded)
	}
}

func TestAggregateNoSelectors(t *testing.T) {
	observations := []Observation{
		obs(true, yes(), nil),
		obs(false, null(), nil),
	}
	res := Aggregate(observations, nil)
	if len(res.Rows) != 1 {
		t.Fatalf("expected a single statewide group, got %d", len(res.Rows))
	}
	if res.Rows[0].Stops != 2 || res.Rows[0].Searches != 1 || res.Rows[0].Hits != 1 {
		t.Errorf("counts = %+v, want 2/1/1", res.Rows[0].Summary)
	}
}

func TestContrabandIgnoredWithoutSearch(t *testing.T) {
	// A spurious contraband_found=true on a non-searched stop must not count.
	observations := []Observation{
		obs(false, yes(), map[string]string{"race": "asian"}),
	}
	res := Aggregate(observations, []Selector{ByAttr("race")})
	if res.Rows[0].Hits != 0 {
		t.Errorf("hits = %d, want 0 when no search was conducted", res.Rows[0].Hits)
	}
}

func TestRateJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Summary{Stops: 2, SearchRate: Defined(0), HitRate: Undefined()})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := string(decoded["hit_rate"]); got != "null" {
		t.Errorf("undefined hit rate encoded as %s, want null", got)
	}
	if got := string(decoded["search_rate"]); got != "0" {
		t.Errorf("zero search rate encoded as %s, want 0", got)
	}

	var r Rate
	if err := json.Unmarshal([]byte("null"), &r); err != nil {
		t.Fatalf("unmarshal null failed: %v", err)
	}
	if r.Valid {
		t.Error("null should decode as undefined")
	}
	if err := json.Unmarshal([]byte("0.25"), &r); err != nil {
		t.Fatalf("unmarshal value failed: %v", err)
	}
	if !r.Valid || r.Value != 0.25 {
		t.Errorf("decoded rate = %+v, want defined 0.25", r)
	}
}

func TestByAttrMissingValues(t *testing.T) {
	sel := ByAttr("county")
	if _, ok := sel.Key(obs(false, null(), nil)); ok {
		t.Error("nil values map should be missing")
	}
	if _, ok := sel.Key(obs(false, null(), map[string]string{"county": ""})); ok {
		t.Error("empty string should be missing")
	}
	if v, ok := sel.Key(obs(false, null(), map[string]string{"county": "Alpha"})); !ok || v != "Alpha" {
		t.Errorf("got %q/%v, want Alpha/true", v, ok)
	}
}
