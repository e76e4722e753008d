// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// SampleStopsCSV is a small but representative dataset fixture: searched
// and unsearched stops, contraband hits and misses, NA cells, and two
// counties so group-by tests have something to split on.
const SampleStopsCSV = `stop_date,county_name,driver_race,driver_gender,driver_age,violation,search_conducted,contraband_found,stop_outcome
2014-01-05,Wake County,White,M,34,Speed Limit,FALSE,NA,Verbal Warning
2014-01-06,Wake County,Black,M,22,Speed Limit,TRUE,TRUE,Arrest
2014-02-10,Wake County,Black,F,28,Stop Light/Sign,TRUE,FALSE,Citation
2014-02-11,Durham County,White,F,45,Speed Limit,TRUE,FALSE,Citation
2014-03-01,Durham County,Hispanic,M,31,Seat Belt,FALSE,NA,Citation
2014-03-15,NA,White,M,52,Speed Limit,FALSE,NA,Verbal Warning
`

// WriteTempCSV writes contents to a temporary file and returns its path.
// The file is removed automatically when the test finishes.
func WriteTempCSV(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stops.csv")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write fixture CSV: %v", err)
	}
	return path
}

// TempDBPath returns a path for a throwaway sqlite database file.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
