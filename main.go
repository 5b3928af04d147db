package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luxapientia/wanyumba-scrapper/api"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/httputil"
	"github.com/luxapientia/wanyumba-scrapper/logging"
	"github.com/luxapientia/wanyumba-scrapper/scheduler"
	"github.com/luxapientia/wanyumba-scrapper/scraper"
	"github.com/luxapientia/wanyumba-scrapper/storage"
	"github.com/luxapientia/wanyumba-scrapper/workers"
	"github.com/luxapientia/wanyumba-scrapper/ws"
)

var scrapeNow = flag.String("scrape", "", "Run a basic sweep for one site and exit")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting wanyumba-scrapper...")
	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	hub := ws.NewHub(nil)

	orchestrator, err := scraper.NewOrchestrator(cfg, store, hub, func(sc *config.SiteConfig) scraper.Pager {
		return scraper.NewSession(sc, cfg.Scraper.Headless)
	})
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}
	hub.SetSnapshot(orchestrator.Status)

	if *scrapeNow != "" {
		result, err := orchestrator.ScrapeListings(ctx, *scrapeNow, false, scraper.DefaultRunOptions())
		if err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Printf("Scrape complete: %d listings found, %d saved", result.ListingsFound, result.ListingsSaved)
		orchestrator.CloseAll()
		return
	}

	clients := httputil.NewClients(cfg.ProxyURL)
	healthcheck := workers.NewHealthcheckWorker(store, clients, orchestrator.Sites())
	go healthcheck.Run(ctx)

	sched := scheduler.New(cfg, orchestrator)
	sched.SetWorkers(healthcheck)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	server := api.NewServer(cfg, orchestrator, store, hub)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Printf("Received %v, shutting down...", s)
	case err := <-serverErr:
		log.Printf("API server exited: %v", err)
	}

	cancel()
	sched.Stop()
	orchestrator.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown: %v", err)
	}

	log.Println("Shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		log.Printf("Using SQLite store: %s", cfg.Database.Path)
		return storage.NewSQLiteStore(cfg.Database.Path)
	default:
		log.Printf("Using Postgres store: %s", maskConnectionString(cfg.Database.URL))
		return storage.NewPostgresStore(ctx, cfg.Database.URL)
	}
}

// maskConnectionString hides credentials when logging a DSN.
func maskConnectionString(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at == -1 {
		return dsn
	}
	scheme := strings.Index(dsn, "://")
	if scheme == -1 {
		return "***" + dsn[at:]
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
