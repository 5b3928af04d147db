package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
	"github.com/luxapientia/wanyumba-scrapper/scraper"
	"github.com/luxapientia/wanyumba-scrapper/storage"
	"github.com/luxapientia/wanyumba-scrapper/ws"
)

// stubPager serves a fixed document, empty by default. With the
// optional block channel set it parks Navigate until the channel
// closes.
type stubPager struct {
	html  string
	block chan struct{}
}

func (p *stubPager) Navigate(ctx context.Context, u string) (*goquery.Document, error) {
	if p.block != nil {
		<-p.block
	}
	html := p.html
	if html == "" {
		html = "<html></html>"
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *stubPager) ScrollToBottom(ctx context.Context) error         { return nil }
func (p *stubPager) Click(ctx context.Context, selector string) error { return nil }
func (p *stubPager) Document(ctx context.Context) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader("<html></html>"))
}
func (p *stubPager) Close() {}

func newTestServer(t *testing.T, pager scraper.Pager) (*Server, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		API: config.APIConfig{Addr: ":0", CORSOrigins: []string{"*"}},
		Scraper: config.ScraperConfig{
			PageDelay:    time.Millisecond,
			ScrollSettle: time.Millisecond,
		},
		Sites: map[string]*config.SiteConfig{
			"jiji": {ID: "jiji", Name: "Jiji", BaseURL: "https://jiji.co.tz"},
		},
	}

	hub := ws.NewHub(nil)
	orch, err := scraper.NewOrchestrator(cfg, store, hub, func(sc *config.SiteConfig) scraper.Pager {
		return pager
	})
	if err != nil {
		t.Fatalf("build orchestrator: %v", err)
	}
	hub.SetSnapshot(orch.Status)

	return NewServer(cfg, orch, store, hub), store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)
	return rec
}

func seedListing(t *testing.T, store storage.Store, rawURL, source, title string) {
	t.Helper()
	err := store.UpsertListing(context.Background(), &models.Listing{
		RawURL: rawURL,
		Source: source,
		Title:  title,
		Status: models.ListingStatusActive,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", rawURL, err)
	}
}

func TestGetListingsEndpoint(t *testing.T) {
	s, store := newTestServer(t, &stubPager{})
	seedListing(t, store, "https://jiji.co.tz/a.html", "jiji", "House A")
	seedListing(t, store, "https://kupatana.com/b", "kupatana", "House B")

	rec := doJSON(t, s, http.MethodGet, "/listings?source=jiji", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Listings []models.Listing `json:"listings"`
		Count    int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Listings[0].Source != "jiji" {
		t.Fatalf("source filter broken: %+v", resp)
	}
}

func TestGetListingByURL(t *testing.T) {
	s, store := newTestServer(t, &stubPager{})
	rawURL := "https://jiji.co.tz/a.html"
	seedListing(t, store, rawURL, "jiji", "House A")

	path := "/listings/" + url.PathEscape(rawURL)
	rec := doJSON(t, s, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var got models.Listing
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RawURL != rawURL {
		t.Fatalf("wrong listing: %+v", got)
	}

	rec = doJSON(t, s, http.MethodGet, "/listings/"+url.PathEscape("https://jiji.co.tz/missing.html"), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing listing, got %d", rec.Code)
	}
}

func TestDeleteListingEndpoint(t *testing.T) {
	s, store := newTestServer(t, &stubPager{})
	rawURL := "https://jiji.co.tz/a.html"
	seedListing(t, store, rawURL, "jiji", "House A")

	path := "/listings/" + url.PathEscape(rawURL)
	rec := doJSON(t, s, http.MethodDelete, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	s, store := newTestServer(t, &stubPager{})
	seedListing(t, store, "https://jiji.co.tz/a.html", "jiji", "House A")

	rec := doJSON(t, s, http.MethodGet, "/listings/statistics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var stats models.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalListings != 1 || stats.BySource["jiji"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	rec := doJSON(t, s, http.MethodGet, "/listings/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScrapingStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	rec := doJSON(t, s, http.MethodGet, "/scraping/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var statuses map[string]models.ScrapeStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if statuses["jiji"].Status != models.StateIdle {
		t.Fatalf("expected idle jiji, got %+v", statuses)
	}
}

func TestScrapeListingsUnknownSite(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	rec := doJSON(t, s, http.MethodPost, "/scraping/scrape-listings", map[string]any{"target_site": "zillow"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestScrapeListingsConflict(t *testing.T) {
	pager := &stubPager{block: make(chan struct{})}
	s, _ := newTestServer(t, pager)

	rec := doJSON(t, s, http.MethodPost, "/scraping/scrape-listings", map[string]any{
		"target_site": "jiji",
		"async":       true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for async start, got %d: %s", rec.Code, rec.Body)
	}

	// The background sweep is parked in Navigate; a second run conflicts.
	rec = doJSON(t, s, http.MethodPost, "/scraping/scrape-listings", map[string]any{"target_site": "jiji"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body)
	}

	close(pager.block)
}

func TestScrapeListingsMaxPagesAndSaveFlag(t *testing.T) {
	// Every index page serves the same card, so only the page cap can
	// end this sweep.
	pager := &stubPager{html: `<html><body>
		<a class="b-list-advert-base" href="/houses/villa-1.html">
			<div class="b-list-advert__item-title">3 Bedroom Villa</div>
			<div class="qa-advert-price">TSh 1,200,000</div>
		</a>
	</body></html>`}
	s, store := newTestServer(t, pager)

	rec := doJSON(t, s, http.MethodPost, "/scraping/scrape-listings", map[string]any{
		"target_site": "jiji",
		"max_pages":   1,
		"save_to_db":  false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Status       string                `json:"status"`
		PagesScraped int                   `json:"pages_scraped"`
		Listings     []models.BasicListing `json:"listings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PagesScraped != 1 {
		t.Fatalf("page cap not honored, scraped %d pages", resp.PagesScraped)
	}
	if len(resp.Listings) != 1 || resp.Listings[0].Title != "3 Bedroom Villa" {
		t.Fatalf("scraped listings not returned: %+v", resp.Listings)
	}

	stored, err := store.GetListings(context.Background(), storage.ListingFilter{})
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("save_to_db=false still persisted %d rows", len(stored))
	}
}

func TestScrapeAllDetailsEmptyStore(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	rec := doJSON(t, s, http.MethodPost, "/scraping/scrape-all-details", map[string]any{"target_site": "jiji"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty store, got %d: %s", rec.Code, rec.Body)
	}
}

func TestStopScrapingEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	rec := doJSON(t, s, http.MethodPost, "/scraping/stop-scraping", map[string]any{"target_site": "jiji"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &stubPager{})

	req := httptest.NewRequest(http.MethodOptions, "/listings", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}
}
