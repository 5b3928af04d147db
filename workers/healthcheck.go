package workers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/luxapientia/wanyumba-scrapper/httputil"
	"github.com/luxapientia/wanyumba-scrapper/storage"
)

const (
	healthcheckInterval = 6 * time.Hour
	healthcheckBatch    = 25
)

// HealthcheckWorker verifies that the oldest active listings still
// resolve. A 404/410 or a redirect marks the listing inactive; sites
// here redirect removed listings back to the search index.
type HealthcheckWorker struct {
	store     storage.Store
	clients   *httputil.Clients
	sites     []string
	triggerCh chan struct{}
}

func NewHealthcheckWorker(store storage.Store, clients *httputil.Clients, sites []string) *HealthcheckWorker {
	return &HealthcheckWorker{
		store:     store,
		clients:   clients,
		sites:     sites,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run a pass immediately.
func (w *HealthcheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run loops until ctx ends, checking a batch per site every interval.
func (w *HealthcheckWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(healthcheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.triggerCh:
		}
		w.runPass(ctx)
	}
}

func (w *HealthcheckWorker) runPass(ctx context.Context) {
	for _, site := range w.sites {
		listings, err := w.store.GetStaleActiveListings(ctx, site, healthcheckBatch)
		if err != nil {
			log.Printf("healthcheck: load stale listings for %s: %v", site, err)
			continue
		}

		dead := 0
		for i := range listings {
			if ctx.Err() != nil {
				return
			}
			alive, err := w.checkURL(ctx, listings[i].RawURL)
			if err != nil {
				log.Printf("healthcheck: %s: %v", listings[i].RawURL, err)
				continue
			}
			if alive {
				continue
			}
			if err := w.store.MarkListingInactive(ctx, listings[i].RawURL); err != nil {
				log.Printf("healthcheck: mark inactive %s: %v", listings[i].RawURL, err)
				continue
			}
			dead++
		}
		if len(listings) > 0 {
			log.Printf("healthcheck: %s: checked %d, marked %d inactive", site, len(listings), dead)
		}
	}
}

// checkURL does a lightweight HEAD request. The scraping client does
// not follow redirects, so a 3xx comes back as-is.
func (w *HealthcheckWorker) checkURL(ctx context.Context, rawURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := w.clients.Scraping.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return false, nil
	default:
		// Blocked or flaky responses leave the listing untouched.
		return true, nil
	}
}
