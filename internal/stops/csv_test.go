package stops

import (
	"strings"
	"testing"
)

const sampleCSV = `stop_date,county_name,driver_race,driver_gender,driver_age,violation,search_conducted,contraband_found,stop_outcome
2014-03-01,Mecklenburg County,Black,M,24,Speed Limit,TRUE,TRUE,Citation
2014-03-02,Wake County,White,F,41,Stop Light/Sign,FALSE,NA,Verbal Warning
2014-03-03,NA,Hispanic,M,NA,Speed Limit,TRUE,FALSE,Citation
2014-03-04,Durham County,White,M,58,Seat Belt,FALSE,TRUE,Citation
`

func TestReadCSV(t *testing.T) {
	stops, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(stops) != 4 {
		t.Fatalf("expected 4 stops, got %d", len(stops))
	}

	first := stops[0]
	if first.Date.Format("2006-01-02") != "2014-03-01" {
		t.Errorf("date = %v", first.Date)
	}
	if !first.SearchConducted {
		t.Error("first stop should have a search")
	}
	if !first.ContrabandFound.Valid || !first.ContrabandFound.Bool {
		t.Errorf("contraband = %+v, want valid true", first.ContrabandFound)
	}
	if !first.DriverAge.Valid || first.DriverAge.Int64 != 24 {
		t.Errorf("age = %+v, want 24", first.DriverAge)
	}

	// NA cells become NULL, not zero values.
	second := stops[1]
	if second.ContrabandFound.Valid {
		t.Errorf("contraband without a search = %+v, want NULL", second.ContrabandFound)
	}
	third := stops[2]
	if third.County != "" {
		t.Errorf("NA county = %q, want empty", third.County)
	}
	if third.DriverAge.Valid {
		t.Errorf("NA age = %+v, want NULL", third.DriverAge)
	}

	// contraband_found=TRUE without a search is data noise; the loader
	// refuses to carry it as a value.
	fourth := stops[3]
	if fourth.ContrabandFound.Valid {
		t.Errorf("contraband on non-searched stop = %+v, want NULL", fourth.ContrabandFound)
	}
}

func TestReadCSVColumnOrderIndependent(t *testing.T) {
	reordered := "search_conducted,stop_date\nTRUE,2015-06-01\n"
	stops, err := ReadCSV(strings.NewReader(reordered))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(stops) != 1 || !stops[0].SearchConducted {
		t.Errorf("stops = %+v", stops)
	}
}

func TestReadCSVMissingRequiredColumn(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("county_name\nWake County\n")); err == nil {
		t.Error("expected error for missing required columns")
	}
}

func TestReadCSVBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad date", "stop_date,search_conducted\n03/01/2014,TRUE\n"},
		{"bad bool", "stop_date,search_conducted\n2014-03-01,yes\n"},
		{"bad age", "stop_date,search_conducted,driver_age\n2014-03-01,TRUE,old\n"},
		{"missing date", "stop_date,search_conducted\nNA,TRUE\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tc.body)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestReadCSVEmptyBody(t *testing.T) {
	stops, err := ReadCSV(strings.NewReader("stop_date,search_conducted\n"))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(stops) != 0 {
		t.Errorf("expected no stops, got %d", len(stops))
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV("does-not-exist.csv"); err == nil {
		t.Error("expected error for missing file")
	}
}
