package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/scraper"
	"github.com/luxapientia/wanyumba-scrapper/storage"
	"github.com/luxapientia/wanyumba-scrapper/ws"
)

// Server exposes the scraping control surface, the listings query API
// and the websocket push channel.
type Server struct {
	cfg   *config.Config
	orch  *scraper.Orchestrator
	store storage.Store
	hub   *ws.Hub
	http  *http.Server
}

func NewServer(cfg *config.Config, orch *scraper.Orchestrator, store storage.Store, hub *ws.Hub) *Server {
	s := &Server{
		cfg:   cfg,
		orch:  orch,
		store: store,
		hub:   hub,
	}

	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	sc := r.PathPrefix("/scraping").Subrouter()
	sc.HandleFunc("/scrape-listings", s.handleScrapeListings).Methods(http.MethodPost)
	sc.HandleFunc("/scrape-detailed", s.handleScrapeDetailed).Methods(http.MethodPost)
	sc.HandleFunc("/scrape-all-detailed", s.handleScrapeAllDetailed).Methods(http.MethodPost)
	sc.HandleFunc("/scrape-all-details", s.handleScrapeAllDetails).Methods(http.MethodPost)
	sc.HandleFunc("/stop-scraping", s.handleStopScraping).Methods(http.MethodPost)
	sc.HandleFunc("/start-auto-cycle", s.handleStartAutoCycle).Methods(http.MethodPost)
	sc.HandleFunc("/status", s.handleScrapingStatus).Methods(http.MethodGet)

	ls := r.PathPrefix("/listings").Subrouter()
	ls.HandleFunc("", s.handleGetListings).Methods(http.MethodGet)
	ls.HandleFunc("/", s.handleGetListings).Methods(http.MethodGet)
	ls.HandleFunc("/statistics", s.handleStatistics).Methods(http.MethodGet)
	ls.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	ls.HandleFunc("/{url:.+}", s.handleGetListing).Methods(http.MethodGet)
	ls.HandleFunc("/{url:.+}", s.handleDeleteListing).Methods(http.MethodDelete)

	r.HandleFunc("/agents", s.handleGetAgents).Methods(http.MethodGet)

	r.HandleFunc("/ws", hub.ServeWS)
	r.HandleFunc("/ws/status", s.handleWSStatus).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // synchronous sweeps take a while
	}
	return s
}

// ListenAndServe blocks until the server exits.
func (s *Server) ListenAndServe() error {
	log.Printf("API listening on %s", s.cfg.API.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := "*"
	if len(s.cfg.API.CORSOrigins) > 0 {
		origin = s.cfg.API.CORSOrigins[0]
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "active",
		"connections": s.hub.ConnectionCount(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "detail": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
