package main

import (
	"testing"
)

func TestFilterFlagsParsing(t *testing.T) {
	ff := filterFlags{from: "2014-01-01", to: "2015-01-01", county: "Wake County,Durham County", race: "Black"}
	f, err := ff.filter()
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if f.From.IsZero() || f.To.IsZero() {
		t.Error("dates not parsed")
	}
	if len(f.Counties) != 2 || len(f.Races) != 1 {
		t.Errorf("filter lists = %v / %v", f.Counties, f.Races)
	}
}

func TestFilterFlagsBadDate(t *testing.T) {
	ff := filterFlags{from: "01/02/2014"}
	if _, err := ff.filter(); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestFilterFlagsInvertedRange(t *testing.T) {
	ff := filterFlags{from: "2015-01-01", to: "2014-01-01"}
	if _, err := ff.filter(); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestParseSelectors(t *testing.T) {
	selectors, err := parseSelectors("driver_race, county")
	if err != nil {
		t.Fatalf("parseSelectors failed: %v", err)
	}
	if len(selectors) != 2 || selectors[0].Name != "driver_race" || selectors[1].Name != "county" {
		t.Errorf("selectors = %+v", selectors)
	}
}

func TestParseSelectorsRejectsUnknown(t *testing.T) {
	if _, err := parseSelectors("speed"); err == nil {
		t.Error("expected error for unknown attribute")
	}
	if _, err := parseSelectors(""); err == nil {
		t.Error("expected error for empty list")
	}
}
