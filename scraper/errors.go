package scraper

import "errors"

var (
	// ErrAlreadyRunning rejects a second concurrent run for a site.
	ErrAlreadyRunning = errors.New("scrape already running for this site")

	// ErrUnknownSite means no extractor is registered for the site ID.
	ErrUnknownSite = errors.New("unknown site")

	// ErrStopped marks a run ended by a cooperative stop request.
	ErrStopped = errors.New("scrape stopped")

	// ErrNoListings means a detail sweep found nothing to work on.
	ErrNoListings = errors.New("no listings to scrape")
)
