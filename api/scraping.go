package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/luxapientia/wanyumba-scrapper/scraper"
)

type scrapeRequest struct {
	TargetSite        string   `json:"target_site"`
	Async             bool     `json:"async"`
	URLs              []string `json:"urls,omitempty"`
	MaxPages          int      `json:"max_pages,omitempty"`
	SaveToDB          *bool    `json:"save_to_db,omitempty"`
	CycleDelayMinutes int      `json:"cycle_delay_minutes,omitempty"`
}

// options folds the request knobs into run options. save_to_db
// defaults to true when omitted.
func (req *scrapeRequest) options() scraper.RunOptions {
	opts := scraper.DefaultRunOptions()
	opts.MaxPages = req.MaxPages
	opts.CycleDelayMinutes = req.CycleDelayMinutes
	if req.SaveToDB != nil {
		opts.SaveToDB = *req.SaveToDB
	}
	return opts
}

// scrapeErrorStatus maps orchestrator sentinels to HTTP codes. An
// unknown site is a caller mistake, a concurrent run is a conflict and
// an empty worklist is a missing resource.
func scrapeErrorStatus(err error) int {
	switch {
	case errors.Is(err, scraper.ErrUnknownSite):
		return http.StatusBadRequest
	case errors.Is(err, scraper.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, scraper.ErrNoListings):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleScrapeListings(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.ScrapeListings(r.Context(), req.TargetSite, req.Async, req.options())
	if err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}

	if req.Async {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "started",
			"message":     fmt.Sprintf("listings scrape started for %s", req.TargetSite),
			"target_site": req.TargetSite,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         runStatus(result.Stopped),
		"target_site":    result.Site,
		"listings_found": result.ListingsFound,
		"listings_saved": result.ListingsSaved,
		"pages_scraped":  result.PagesScraped,
		"listings":       result.Listings,
	})
}

func (s *Server) handleScrapeDetailed(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	result, err := s.orch.ScrapeDetails(r.Context(), req.TargetSite, req.URLs, req.options())
	if err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}
	writeDetailResult(w, result)
}

func (s *Server) handleScrapeAllDetailed(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.ScrapeCombined(r.Context(), req.TargetSite, req.options())
	if err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}
	writeDetailResult(w, result)
}

func (s *Server) handleScrapeAllDetails(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.orch.FillMissingDetails(r.Context(), req.TargetSite)
	if err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}
	writeDetailResult(w, result)
}

func writeDetailResult(w http.ResponseWriter, result *scraper.DetailResult) {
	payload := map[string]any{
		"status":         runStatus(result.Stopped),
		"target_site":    result.Site,
		"total_urls":     result.TotalURLs,
		"listings_saved": result.ListingsSaved,
	}
	if result.Listings != nil {
		payload["listings"] = result.Listings
	}
	writeJSON(w, http.StatusOK, payload)
}

func runStatus(stopped bool) string {
	if stopped {
		return "stopped"
	}
	return "completed"
}

func (s *Server) handleStopScraping(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.orch.Stop(req.TargetSite); err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "stopping",
		"message":     fmt.Sprintf("stop requested for %s", req.TargetSite),
		"target_site": req.TargetSite,
	})
}

func (s *Server) handleStartAutoCycle(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.orch.StartAutoCycle(req.TargetSite, req.options()); err != nil {
		writeError(w, scrapeErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "started",
		"message":     fmt.Sprintf("auto-cycle started for %s", req.TargetSite),
		"target_site": req.TargetSite,
	})
}

func (s *Server) handleScrapingStatus(w http.ResponseWriter, r *http.Request) {
	if site := r.URL.Query().Get("target_site"); site != "" {
		status, err := s.orch.SiteStatus(site)
		if err != nil {
			writeError(w, scrapeErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Status())
}
