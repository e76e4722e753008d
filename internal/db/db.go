// Package db stores traffic-stop records in sqlite and serves them back
// as filtered snapshots for aggregation.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/majidrgold/openpolicing/internal/stops"
)

const dateLayout = "2006-01-02"

type DB struct {
	*sql.DB
}

// OpenDB opens the sqlite database without touching the schema. Use
// NewDB unless you are running migration commands.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &DB{db}, nil
}

// NewDB opens the database and brings the schema up to date by applying
// any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// InsertStops writes a batch of stop records inside one transaction.
func (db *DB) InsertStops(records []stops.Stop) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO stops (
			stop_date, county_name, driver_race, driver_gender, driver_age,
			violation, search_conducted, contraband_found, stop_outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range records {
		_, err := stmt.Exec(
			s.Date.Format(dateLayout),
			nullString(s.County),
			nullString(s.DriverRace),
			nullString(s.DriverGender),
			s.DriverAge,
			nullString(s.Violation),
			s.SearchConducted,
			s.ContrabandFound,
			nullString(s.Outcome),
		)
		if err != nil {
			return fmt.Errorf("failed to insert stop: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stops: %w", err)
	}
	return nil
}

// nullString maps empty strings to NULL so missing categorical values
// stay distinguishable from real ones.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StopsMatching returns the stops selected by the filter, in ingestion
// order. The date and county conditions run in SQL; race filtering
// reuses the in-memory filter to keep the query simple.
func (db *DB) StopsMatching(f stops.Filter) ([]stops.Stop, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT stop_date, county_name, driver_race, driver_gender, driver_age,
		       violation, search_conducted, contraband_found, stop_outcome
		FROM stops`
	var conds []string
	var args []any
	if !f.From.IsZero() {
		conds = append(conds, "stop_date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		conds = append(conds, "stop_date < ?")
		args = append(args, f.To.Format(dateLayout))
	}
	if len(f.Counties) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Counties)), ",")
		conds = append(conds, fmt.Sprintf("county_name IN (%s)", placeholders))
		for _, c := range f.Counties {
			args = append(args, c)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	defer rows.Close()

	var out []stops.Stop
	for rows.Next() {
		var (
			s       stops.Stop
			dateStr string
			county  sql.NullString
			race    sql.NullString
			gender  sql.NullString
			viol    sql.NullString
			outcome sql.NullString
		)
		if err := rows.Scan(
			&dateStr, &county, &race, &gender, &s.DriverAge,
			&viol, &s.SearchConducted, &s.ContrabandFound, &outcome,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		if s.Date, err = time.Parse(dateLayout, dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse stored stop_date %q: %w", dateStr, err)
		}
		s.County = county.String
		s.DriverRace = race.String
		s.DriverGender = gender.String
		s.Violation = viol.String
		s.Outcome = outcome.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stops.Filter{Races: f.Races}.Apply(out), nil
}

// CountStops returns the total number of stored stop records.
func (db *DB) CountStops() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM stops").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stops: %w", err)
	}
	return n, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://stops.db", db.DB, &tailsql.DBOptions{
		Label: "Stops DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
