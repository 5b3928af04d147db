package models

// Scrape status values. Stopped is a distinct terminal state: consumers
// must be able to tell a cancelled run from a completed or failed one.
const (
	StateIdle      = "idle"
	StateScraping  = "scraping"
	StateCompleted = "completed"
	StateError     = "error"
	StateStopped   = "stopped"
)

// Scrape run types.
const (
	ScrapeTypeListings  = "listings"
	ScrapeTypeDetails   = "details"
	ScrapeTypeAutoCycle = "auto_cycle"
)

// Auto-cycle phases.
const (
	PhaseBasicListings = "basic_listings"
	PhaseDetails       = "details"
	PhaseWaiting       = "waiting"
)

// ScrapeStatus is the per-scraper progress snapshot. It lives only in
// memory; consumers poll or subscribe, there is no replayable history.
type ScrapeStatus struct {
	Type       string `json:"type"`
	TargetSite string `json:"target_site"`

	CurrentPage   int  `json:"current_page"`
	TotalPages    *int `json:"total_pages"`
	PagesScraped  int  `json:"pages_scraped"`
	ListingsFound int  `json:"listings_found"`
	ListingsSaved int  `json:"listings_saved"`

	CurrentURL  string `json:"current_url"`
	TotalURLs   int    `json:"total_urls"`
	URLsScraped int    `json:"urls_scraped"`

	Status string `json:"status"`

	AutoCycleRunning bool   `json:"auto_cycle_running"`
	CycleNumber      *int   `json:"cycle_number"`
	Phase            string `json:"phase"`
	WaitMinutes      *int   `json:"wait_minutes"`
}

// StatusEvent is what goes out on the push channel: a snapshot tagged
// with the site it belongs to.
type StatusEvent struct {
	Type       string       `json:"type"` // always "scraping_status"
	TargetSite string       `json:"target_site"`
	Data       ScrapeStatus `json:"data"`
}
