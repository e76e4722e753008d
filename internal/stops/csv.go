package stops

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names recognised in the input CSV header. The loader maps
// columns by name, so extra columns and arbitrary ordering are fine.
const (
	colDate            = "stop_date"
	colCounty          = "county_name"
	colRace            = "driver_race"
	colGender          = "driver_gender"
	colAge             = "driver_age"
	colViolation       = "violation"
	colSearchConducted = "search_conducted"
	colContraband      = "contraband_found"
	colOutcome         = "stop_outcome"
)

const dateLayout = "2006-01-02"

// isNA reports whether a CSV cell holds no value. The openpolicing
// exports write literal NA for missing cells.
func isNA(v string) bool {
	return v == "" || v == "NA"
}

func parseBool(v string) (bool, error) {
	switch strings.ToUpper(v) {
	case "TRUE", "T", "1":
		return true, nil
	case "FALSE", "F", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", v)
	}
}

// ReadCSV parses stop records from r. The first row must be a header
// containing at least stop_date and search_conducted; other recognised
// columns are optional. Missing cells ("" or NA) become NULL values,
// never zero values. A contraband_found cell on a row without a search
// is forced to NULL regardless of its content.
func ReadCSV(r io.Reader) ([]Stop, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colDate, colSearchConducted} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var out []Stop
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var s Stop

		dateStr := field(record, colDate)
		if isNA(dateStr) {
			return nil, fmt.Errorf("line %d: missing stop_date", line)
		}
		if s.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse stop_date: %w", line, err)
		}

		searchStr := field(record, colSearchConducted)
		if isNA(searchStr) {
			return nil, fmt.Errorf("line %d: missing search_conducted", line)
		}
		if s.SearchConducted, err = parseBool(searchStr); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse search_conducted: %w", line, err)
		}

		if v := field(record, colContraband); s.SearchConducted && !isNA(v) {
			found, err := parseBool(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: failed to parse contraband_found: %w", line, err)
			}
			s.ContrabandFound = sql.NullBool{Bool: found, Valid: true}
		}

		if v := field(record, colAge); !isNA(v) {
			age, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: failed to parse driver_age: %w", line, err)
			}
			s.DriverAge = sql.NullInt64{Int64: age, Valid: true}
		}

		for _, cell := range []struct {
			name string
			dst  *string
		}{
			{colCounty, &s.County},
			{colRace, &s.DriverRace},
			{colGender, &s.DriverGender},
			{colViolation, &s.Violation},
			{colOutcome, &s.Outcome},
		} {
			if v := field(record, cell.name); !isNA(v) {
				*cell.dst = v
			}
		}

		out = append(out, s)
	}
	return out, nil
}

// LoadCSV reads stop records from a file on disk.
func LoadCSV(path string) ([]Stop, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	stops, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stops, nil
}
