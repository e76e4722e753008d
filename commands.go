package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/majidrgold/openpolicing/internal/attrs"
	"github.com/majidrgold/openpolicing/internal/charts"
	"github.com/majidrgold/openpolicing/internal/db"
	"github.com/majidrgold/openpolicing/internal/rates"
	"github.com/majidrgold/openpolicing/internal/regress"
	"github.com/majidrgold/openpolicing/internal/stops"
	"github.com/majidrgold/openpolicing/internal/timeutil"
)

const dateLayout = "2006-01-02"

// filterFlags registers the shared dataset filter flags on a command's
// flag set.
type filterFlags struct {
	from   string
	to     string
	county string
	race   string
}

func (ff *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&ff.from, "from", "", "Earliest stop date to include (YYYY-MM-DD, inclusive)")
	fs.StringVar(&ff.to, "to", "", "Stop date cutoff (YYYY-MM-DD, exclusive)")
	fs.StringVar(&ff.county, "county", "", "Comma-separated counties to include")
	fs.StringVar(&ff.race, "race", "", "Comma-separated driver races to include")
}

func (ff *filterFlags) filter() (stops.Filter, error) {
	var f stops.Filter
	var err error
	if ff.from != "" {
		if f.From, err = time.Parse(dateLayout, ff.from); err != nil {
			return f, fmt.Errorf("invalid -from date %q (want YYYY-MM-DD)", ff.from)
		}
	}
	if ff.to != "" {
		if f.To, err = time.Parse(dateLayout, ff.to); err != nil {
			return f, fmt.Errorf("invalid -to date %q (want YYYY-MM-DD)", ff.to)
		}
	}
	if ff.county != "" {
		f.Counties = strings.Split(ff.county, ",")
	}
	if ff.race != "" {
		f.Races = strings.Split(ff.race, ",")
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// parseSelectors resolves a comma-separated attribute list into selectors.
func parseSelectors(raw string) ([]rates.Selector, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing -group-by (valid: %s)", attrs.ValidAttrsString())
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

func openDatabase() *db.DB {
	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return database
}

// recordRun stores an analysis run record; analysis output should remain
// usable even when bookkeeping fails, so errors only warn.
func recordRun(database *db.DB, command, params string) {
	run := &db.AnalysisRun{Command: command, Params: params}
	if err := database.CreateAnalysisRun(run, timeutil.RealClock{}); err != nil {
		log.Printf("failed to record analysis run: %v", err)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("failed to encode output: %v", err)
	}
}

func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		log.Fatal("Usage: openpolicing load <file.csv>")
	}

	records, err := stops.LoadCSV(fs.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read CSV: %v", err)
	}

	database := openDatabase()
	defer database.Close()

	if err := database.InsertStops(records); err != nil {
		log.Fatalf("Failed to insert stops: %v", err)
	}
	total, err := database.CountStops()
	if err != nil {
		log.Fatalf("Failed to count stops: %v", err)
	}
	log.Printf("Loaded %d stops (%d total in database)", len(records), total)
}

func runSummary(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	groupBy := fs.String("group-by", "", "Comma-separated grouping attributes")
	var ff filterFlags
	ff.register(fs)
	fs.Parse(args)

	selectors, err := parseSelectors(*groupBy)
	if err != nil {
		log.Fatal(err)
	}
	f, err := ff.filter()
	if err != nil {
		log.Fatal(err)
	}

	database := openDatabase()
	defer database.Close()

	records, err := database.StopsMatching(f)
	if err != nil {
		log.Fatalf("Failed to load stops: %v", err)
	}
	res := rates.Aggregate(stops.Observations(records), selectors)
	recordRun(database, "summary", fmt.Sprintf("group_by=%s from=%s to=%s", *groupBy, ff.from, ff.to))
	printJSON(res)
}

func runCompare(args []string) {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	groupBy := fs.String("group-by", attrs.DriverRace, "Primary grouping attribute")
	by := fs.String("by", attrs.County, "Secondary attribute joined across groups")
	reference := fs.String("reference", "", "Reference group value (required)")
	metric := fs.String("metric", string(rates.MetricHitRate), "Metric to compare: search_rate or hit_rate")
	var ff filterFlags
	ff.register(fs)
	fs.Parse(args)

	rows, m := compareRows(*groupBy, *by, *reference, *metric, ff)
	printJSON(map[string]interface{}{
		"reference": *reference,
		"metric":    m,
		"rows":      rows,
	})
}

// compareRows runs the shared aggregate-then-join pipeline behind the
// compare and chart commands.
func compareRows(groupBy, by, reference, metric string, ff filterFlags) ([]rates.ComparisonRow, rates.Metric) {
	if reference == "" {
		log.Fatal("missing -reference")
	}
	m := rates.Metric(metric)
	if !m.Valid() {
		log.Fatalf("invalid metric %q (valid: %s, %s)", metric, rates.MetricSearchRate, rates.MetricHitRate)
	}
	selectors, err := parseSelectors(groupBy + "," + by)
	if err != nil {
		log.Fatal(err)
	}
	if len(selectors) != 2 {
		log.Fatal("compare requires one -group-by and one -by attribute")
	}
	f, err := ff.filter()
	if err != nil {
		log.Fatal(err)
	}

	database := openDatabase()
	defer database.Close()

	records, err := database.StopsMatching(f)
	if err != nil {
		log.Fatalf("Failed to load stops: %v", err)
	}
	res := rates.Aggregate(stops.Observations(records), selectors)
	rows, err := rates.Compare(res, reference, m)
	if err != nil {
		log.Fatalf("Failed to compare groups: %v", err)
	}
	recordRun(database, "compare",
		fmt.Sprintf("group_by=%s by=%s reference=%s metric=%s", groupBy, by, reference, metric))
	return rows, m
}

func runRegress(args []string) {
	fs := flag.NewFlagSet("regress", flag.ExitOnError)
	predictorList := fs.String("predictors", attrs.DriverRace, "Comma-separated predictor attributes")
	var ff filterFlags
	ff.register(fs)
	fs.Parse(args)

	selectors, err := parseSelectors(*predictorList)
	if err != nil {
		log.Fatal(err)
	}
	var predictors []string
	for _, sel := range selectors {
		predictors = append(predictors, sel.Name)
	}
	f, err := ff.filter()
	if err != nil {
		log.Fatal(err)
	}

	database := openDatabase()
	defer database.Close()

	records, err := database.StopsMatching(f)
	if err != nil {
		log.Fatalf("Failed to load stops: %v", err)
	}
	res := rates.Aggregate(stops.Observations(records), selectors)
	model, err := regress.FitLogistic(regress.GroupsFromResult(res), predictors)
	if err != nil {
		log.Fatalf("Failed to fit model: %v", err)
	}
	recordRun(database, "regress", fmt.Sprintf("predictors=%s", *predictorList))

	fmt.Printf("Logistic search model (%d iterations, log-likelihood %.2f)\n\n",
		model.Iterations, model.LogLikelihood)
	fmt.Printf("%-30s %10s %10s %8s %10s\n", "term", "estimate", "std err", "z", "odds")
	for _, c := range model.Coefficients {
		fmt.Printf("%-30s %10.4f %10.4f %8.2f %10.3f\n",
			c.Term, c.Estimate, c.StdErr, c.Z, c.OddsRatio)
	}
}

func runChart(args []string) {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	groupBy := fs.String("group-by", attrs.DriverRace, "Primary grouping attribute")
	by := fs.String("by", attrs.County, "Secondary attribute joined across groups")
	reference := fs.String("reference", "", "Reference group value (required)")
	metric := fs.String("metric", string(rates.MetricHitRate), "Metric to plot: search_rate or hit_rate")
	output := fs.String("o", "disparity.html", "Output file (.html or .png)")
	var ff filterFlags
	ff.register(fs)
	fs.Parse(args)

	rows, m := compareRows(*groupBy, *by, *reference, *metric, ff)

	switch {
	case strings.HasSuffix(*output, ".png"):
		if err := charts.SavePNG(rows, m, *reference, *output); err != nil {
			log.Fatalf("Failed to save plot: %v", err)
		}
	case strings.HasSuffix(*output, ".html"):
		out, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer out.Close()
		if err := charts.RenderHTML(out, rows, m, *reference); err != nil {
			log.Fatalf("Failed to render chart: %v", err)
		}
	default:
		log.Fatalf("unsupported output extension for %q (want .html or .png)", *output)
	}
	log.Printf("Wrote %s (%d points)", *output, len(rows))
}

func runRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(args)

	database := openDatabase()
	defer database.Close()

	runs, err := database.RecentAnalysisRuns(*limit)
	if err != nil {
		log.Fatalf("Failed to list analysis runs: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No analysis runs recorded yet.")
		return
	}
	for _, run := range runs {
		fmt.Printf("%s  %-8s %-10s %s\n",
			run.CreatedAt.Format(time.RFC3339), run.Command, run.RunID[:8], run.Params)
	}
}
