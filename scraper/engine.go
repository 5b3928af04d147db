package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
	"github.com/luxapientia/wanyumba-scrapper/storage"
)

const (
	defaultMaxScrolls = 50

	// consecutiveMissLimit ends a paged sweep. A single empty or broken
	// page is tolerated; sites occasionally serve one mid-run.
	consecutiveMissLimit = 2

	// consecutiveNoNewLimit ends a scroll sweep once scrolling stops
	// surfacing unseen listings.
	consecutiveNoNewLimit = 3
)

// Engine runs sweeps for one site. It owns the generic mechanics
// (pagination, scrolling, dedup, persistence, stop handling) and
// delegates everything site-specific to the Extractor.
type Engine struct {
	cfg     *config.SiteConfig
	ex      Extractor
	pager   Pager
	store   storage.Store
	tracker *Tracker
	stop    *atomic.Bool

	pageDelay    time.Duration
	scrollSettle time.Duration
}

// SweepResult summarizes one basic-listings sweep.
type SweepResult struct {
	Listings     []models.BasicListing
	PagesScraped int
	Saved        int
	Stopped      bool
}

// DetailSweep summarizes one detail run. Listings carries every record
// that was extracted, whether or not a store was attached.
type DetailSweep struct {
	Listings []*models.Listing
	Saved    int
}

func NewEngine(cfg *config.SiteConfig, ex Extractor, pager Pager, store storage.Store, tracker *Tracker, stop *atomic.Bool, scraperCfg config.ScraperConfig) *Engine {
	return &Engine{
		cfg:          cfg,
		ex:           ex,
		pager:        pager,
		store:        store,
		tracker:      tracker,
		stop:         stop,
		pageDelay:    scraperCfg.PageDelay,
		scrollSettle: scraperCfg.ScrollSettle,
	}
}

func (e *Engine) stopped() bool {
	return e.stop != nil && e.stop.Load()
}

// sleepInterruptible waits for d, returning early when a stop is
// requested or the context ends.
func (e *Engine) sleepInterruptible(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if e.stopped() || ctx.Err() != nil {
			return
		}
		step := 200 * time.Millisecond
		if remaining := time.Until(deadline); remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
}

// ScrapeBasics sweeps the site index and persists every card as it is
// found, when a store is attached. maxPages caps the page (or scroll)
// count; zero means unbounded. A stop request ends the sweep cleanly
// with partial results.
func (e *Engine) ScrapeBasics(ctx context.Context, maxPages int) (*SweepResult, error) {
	if e.ex.Pagination() == PaginationScroll {
		return e.scrollSweep(ctx, maxPages)
	}
	return e.pagedSweep(ctx, maxPages)
}

func (e *Engine) pagedSweep(ctx context.Context, maxPages int) (*SweepResult, error) {
	result := &SweepResult{}
	seen := make(map[string]struct{})
	misses := 0

	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		if e.stopped() || ctx.Err() != nil {
			result.Stopped = true
			return result, nil
		}

		url := e.ex.IndexURL(page)
		doc, err := e.pager.Navigate(ctx, url)

		var cards []models.BasicListing
		if err != nil {
			log.Printf("[%s] page %d failed: %v", e.cfg.ID, page, err)
		} else if e.ex.IsEndOfResults(doc) {
			log.Printf("[%s] page %d is an end-of-results page", e.cfg.ID, page)
		} else {
			cards = e.ex.ParseIndex(doc)
		}

		if len(cards) == 0 {
			misses++
			if misses >= consecutiveMissLimit {
				log.Printf("[%s] %d consecutive empty pages, sweep complete at page %d", e.cfg.ID, misses, page)
				break
			}
			// An empty page still counts against the politeness delay.
			e.sleepInterruptible(ctx, e.pageDelay)
			continue
		}
		misses = 0
		result.PagesScraped++

		fresh := dedup(cards, seen)
		result.Listings = append(result.Listings, fresh...)
		result.Saved += e.saveBasics(ctx, fresh)

		e.tracker.Update(func(s *models.ScrapeStatus) {
			s.CurrentPage = page
			s.PagesScraped = result.PagesScraped
			s.ListingsFound = len(result.Listings)
			s.ListingsSaved = result.Saved
		})
		log.Printf("[%s] page %d: %d listings (%d new, total %d)", e.cfg.ID, page, len(cards), len(fresh), len(result.Listings))

		e.sleepInterruptible(ctx, e.pageDelay)
	}

	return result, nil
}

func (e *Engine) scrollSweep(ctx context.Context, maxPages int) (*SweepResult, error) {
	result := &SweepResult{}
	seen := make(map[string]struct{})

	doc, err := e.pager.Navigate(ctx, e.ex.IndexURL(1))
	if err != nil {
		return nil, fmt.Errorf("open %s index: %w", e.cfg.ID, err)
	}

	collect := func(doc *goquery.Document) {
		fresh := dedup(e.ex.ParseIndex(doc), seen)
		if len(fresh) == 0 {
			return
		}
		result.Listings = append(result.Listings, fresh...)
		result.Saved += e.saveBasics(ctx, fresh)
	}
	collect(doc)

	maxScrolls := e.cfg.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = defaultMaxScrolls
	}
	if maxPages > 0 && maxPages < maxScrolls {
		maxScrolls = maxPages
	}

	noNew := 0
	for i := 0; i < maxScrolls; i++ {
		if e.stopped() || ctx.Err() != nil {
			result.Stopped = true
			return result, nil
		}

		if err := e.pager.ScrollToBottom(ctx); err != nil {
			log.Printf("[%s] scroll %d failed: %v", e.cfg.ID, i+1, err)
			break
		}
		e.sleepInterruptible(ctx, e.scrollSettle)

		doc, err := e.pager.Document(ctx)
		if err != nil {
			log.Printf("[%s] reparse after scroll %d failed: %v", e.cfg.ID, i+1, err)
			break
		}

		before := len(result.Listings)
		collect(doc)
		if len(result.Listings) == before {
			noNew++
			if noNew >= consecutiveNoNewLimit {
				log.Printf("[%s] no new listings after %d scrolls, sweep complete", e.cfg.ID, noNew)
				break
			}
		} else {
			noNew = 0
			result.PagesScraped++
		}

		e.tracker.Update(func(s *models.ScrapeStatus) {
			s.CurrentPage = i + 1
			s.PagesScraped = result.PagesScraped
			s.ListingsFound = len(result.Listings)
			s.ListingsSaved = result.Saved
		})
	}

	return result, nil
}

// dedup filters out cards whose URL is already in seen, recording the
// rest. Cards with no usable URL are discarded.
func dedup(cards []models.BasicListing, seen map[string]struct{}) []models.BasicListing {
	var fresh []models.BasicListing
	for _, c := range cards {
		if c.URL == "" {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh
}

// saveBasics persists index cards through the partial update path.
// Per-item failures are logged and skipped; a sweep never dies on one
// bad row. Without a store the batch is only collected, not saved.
func (e *Engine) saveBasics(ctx context.Context, cards []models.BasicListing) int {
	if e.store == nil {
		return 0
	}
	saved := 0
	for i := range cards {
		if err := e.store.UpsertListing(ctx, cards[i].Listing(e.cfg.ID)); err != nil {
			log.Printf("[%s] save %s: %v", e.cfg.ID, cards[i].URL, err)
			continue
		}
		saved++
	}
	return saved
}

// ExtractDetail scrapes one detail page into a full canonical record.
// Stop is checked before navigation, after the page loads and after
// parsing, so a stop request never waits on more than one page fetch.
func (e *Engine) ExtractDetail(ctx context.Context, rawURL string) (*models.Listing, error) {
	if e.stopped() {
		return nil, ErrStopped
	}

	doc, err := e.pager.Navigate(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("load detail page: %w", err)
	}

	if e.stopped() {
		return nil, ErrStopped
	}

	if prep, ok := e.ex.(DetailPreparer); ok {
		if err := prep.PrepareDetail(ctx, e.pager); err != nil {
			log.Printf("[%s] detail preparation on %s: %v", e.cfg.ID, rawURL, err)
		} else {
			if doc, err = e.pager.Document(ctx); err != nil {
				return nil, fmt.Errorf("reparse detail page: %w", err)
			}
		}
	}

	listing, err := e.ex.ParseDetail(doc, rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	if e.stopped() {
		return nil, ErrStopped
	}

	listing.RawURL = rawURL
	listing.Source = e.cfg.ID
	if listing.Status == "" {
		listing.Status = models.ListingStatusActive
	}
	listing.ScrapeTimestamp = time.Now()
	listing.CapImages()
	return listing, nil
}

// ScrapeDetails runs detail extraction over urls, saving each record as
// it lands when a store is attached. Per-URL failures are counted and
// skipped. Returns ErrStopped when a stop request cut the run short.
func (e *Engine) ScrapeDetails(ctx context.Context, urls []string) (*DetailSweep, error) {
	e.tracker.Update(func(s *models.ScrapeStatus) {
		s.TotalURLs = len(urls)
		s.URLsScraped = 0
	})

	rateLimit := time.Duration(e.cfg.RateLimitMS) * time.Millisecond

	sweep := &DetailSweep{}
	for i, u := range urls {
		listing, err := e.ExtractDetail(ctx, u)
		if errors.Is(err, ErrStopped) {
			return sweep, ErrStopped
		}

		e.tracker.Update(func(s *models.ScrapeStatus) {
			s.CurrentURL = u
			s.URLsScraped = i + 1
		})

		if err != nil {
			log.Printf("[%s] detail %s: %v", e.cfg.ID, u, err)
			continue
		}
		sweep.Listings = append(sweep.Listings, listing)

		if e.store != nil {
			if err := e.store.UpsertListing(ctx, listing); err != nil {
				log.Printf("[%s] save detail %s: %v", e.cfg.ID, u, err)
				continue
			}
			sweep.Saved++

			if err := storage.SaveAgentFromListing(ctx, e.store, listing); err != nil {
				log.Printf("[%s] save agent for %s: %v", e.cfg.ID, u, err)
			}

			e.tracker.Update(func(s *models.ScrapeStatus) {
				s.ListingsSaved = sweep.Saved
			})
		}

		if rateLimit > 0 {
			e.sleepInterruptible(ctx, rateLimit)
		}
	}

	return sweep, nil
}
