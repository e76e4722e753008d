package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/majidrgold/openpolicing/internal/api"
	"github.com/majidrgold/openpolicing/internal/db"
)

var dbFile = flag.String("db", "stops.db", "Path to the sqlite database")

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printHelp()
		os.Exit(1)
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "load":
		runLoad(rest)
	case "summary":
		runSummary(rest)
	case "compare":
		runCompare(rest)
	case "regress":
		runRegress(rest)
	case "chart":
		runChart(rest)
	case "serve":
		runServe(rest)
	case "runs":
		runRuns(rest)
	case "migrate":
		db.RunMigrateCommand(rest, *dbFile)
	case "help":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: openpolicing [-db <path>] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  load <file.csv>  Load stop records from a CSV file")
	fmt.Println("  summary          Aggregate stop, search, and hit rates by attribute")
	fmt.Println("  compare          Compare group rates against a reference group")
	fmt.Println("  regress          Fit a logistic search model over grouped counts")
	fmt.Println("  chart            Render a disparity scatterplot (HTML or PNG)")
	fmt.Println("  serve            Serve the aggregation API over HTTP")
	fmt.Println("  runs             List recent analysis runs")
	fmt.Println("  migrate          Manage the database schema")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Run 'openpolicing <command> -h' for command flags.")
}

// runServe starts the HTTP API with the admin debug routes mounted, and
// shuts down cleanly on SIGINT or SIGTERM.
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8080", "Listen address")
	fs.Parse(args)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()

	// mount the admin debugging routes
	database.AttachAdminRoutes(mux)

	// mount the API handlers
	apiMux := api.NewServer(database).ServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	go func() {
		log.Printf("HTTP server listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
