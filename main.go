package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/splatmaps/georef/api"
	"github.com/splatmaps/georef/internal/config"
	"github.com/splatmaps/georef/internal/monitoring"
	"github.com/splatmaps/georef/internal/sessiondb"
	"github.com/splatmaps/georef/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "sessions.db", "Path to the session database (empty for in-memory sessions only)")
	configFile    = flag.String("config", "", "Path to a JSON settings file")
	migrationsDir = flag.String("migrations", "migrations", "Path to the schema migrations directory")
	debugMode     = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	monitoring.SetLogger(log.Printf)
	monitoring.SetDebug(*debugMode)

	log.Printf("georef %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	settings := &config.Settings{}
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		settings = loaded
	}

	var db *sessiondb.DB
	if *dbFile != "" {
		var err error
		db, err = sessiondb.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		schemaVer, dirty, err := db.MigrateVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Printf("session database ready (schema v%d, dirty=%v)", schemaVer, dirty)
	} else {
		log.Print("running without a database; sessions are in-memory only")
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(settings, db).ServeMux()

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			monitoring.Debugf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("alignment server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
