// Package api serves aggregated stop statistics as JSON and HTML charts.
package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/majidrgold/openpolicing/internal/attrs"
	"github.com/majidrgold/openpolicing/internal/charts"
	"github.com/majidrgold/openpolicing/internal/db"
	"github.com/majidrgold/openpolicing/internal/httputil"
	"github.com/majidrgold/openpolicing/internal/rates"
	"github.com/majidrgold/openpolicing/internal/stops"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const dateLayout = "2006-01-02"

type Server struct {
	db *db.DB
}

func NewServer(database *db.DB) *Server {
	return &Server{db: database}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/summary", s.showSummary)
	mux.HandleFunc("/compare", s.showComparison)
	mux.HandleFunc("/charts/disparity", s.showDisparityChart)
	mux.HandleFunc("/stops/count", s.showStopCount)
	mux.HandleFunc("/config", s.showConfig)
	return mux
}

// parseFilter builds the dataset filter from from/to/county query params.
func parseFilter(r *http.Request) (stops.Filter, error) {
	var f stops.Filter
	var err error
	if from := r.URL.Query().Get("from"); from != "" {
		if f.From, err = time.Parse(dateLayout, from); err != nil {
			return f, fmt.Errorf("invalid 'from' date %q (want YYYY-MM-DD)", from)
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if f.To, err = time.Parse(dateLayout, to); err != nil {
			return f, fmt.Errorf("invalid 'to' date %q (want YYYY-MM-DD)", to)
		}
	}
	if county := r.URL.Query().Get("county"); county != "" {
		f.Counties = strings.Split(county, ",")
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// parseGroupBy resolves a comma-separated attribute list into selectors.
func parseGroupBy(raw string) ([]rates.Selector, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing 'group_by' parameter (valid: %s)", attrs.ValidAttrsString())
	}
	var selectors []rates.Selector
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if !attrs.IsValid(name) {
			return nil, fmt.Errorf("invalid grouping attribute %q (valid: %s)", name, attrs.ValidAttrsString())
		}
		selectors = append(selectors, rates.ByAttr(name))
	}
	return selectors, nil
}

// aggregateFromDB loads the filtered snapshot and aggregates it.
func (s *Server) aggregateFromDB(f stops.Filter, selectors []rates.Selector) (*rates.Result, error) {
	records, err := s.db.StopsMatching(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load stops: %w", err)
	}
	return rates.Aggregate(stops.Observations(records), selectors), nil
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	selectors, err := parseGroupBy(r.URL.Query().Get("group_by"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.aggregateFromDB(f, selectors)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to aggregate stops: %v", err))
		return
	}
	httputil.WriteJSONOK(w, res)
}

// compareParams parses the /compare and chart query surface.
func (s *Server) compareRows(r *http.Request) ([]rates.ComparisonRow, rates.Metric, string, error) {
	primary := r.URL.Query().Get("group_by")
	secondary := r.URL.Query().Get("by")
	if secondary == "" {
		secondary = attrs.County
	}
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		return nil, "", "", fmt.Errorf("missing 'reference' parameter")
	}
	metric := rates.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = rates.MetricHitRate
	}
	if !metric.Valid() {
		return nil, "", "", fmt.Errorf("invalid metric %q (valid: %s, %s)",
			metric, rates.MetricSearchRate, rates.MetricHitRate)
	}

	selectors, err := parseGroupBy(primary + "," + secondary)
	if err != nil {
		return nil, "", "", err
	}
	if len(selectors) != 2 {
		return nil, "", "", fmt.Errorf("compare requires one 'group_by' and one 'by' attribute")
	}
	f, err := parseFilter(r)
	if err != nil {
		return nil, "", "", err
	}

	res, err := s.aggregateFromDB(f, selectors)
	if err != nil {
		return nil, "", "", err
	}
	rows, err := rates.Compare(res, reference, metric)
	if err != nil {
		return nil, "", "", err
	}
	return rows, metric, reference, nil
}

func (s *Server) showComparison(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rows, metric, reference, err := s.compareRows(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"reference": reference,
		"metric":    metric,
		"rows":      rows,
	})
}

func (s *Server) showDisparityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rows, metric, reference, err := s.compareRows(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := charts.RenderHTML(w, rows, metric, reference); err != nil {
		log.Printf("failed to render disparity chart: %v", err)
	}
}

func (s *Server) showStopCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	n, err := s.db.CountStops()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count stops: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"count": n})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"grouping_attributes": attrs.ValidAttrs,
		"metrics":             []rates.Metric{rates.MetricSearchRate, rates.MetricHitRate},
	})
}
