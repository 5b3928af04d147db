package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
	"github.com/luxapientia/wanyumba-scrapper/storage"
)

// errorCooldown is how long an auto-cycle backs off after a failed
// cycle before trying the next one. Variable so tests can shorten it.
var errorCooldown = 60 * time.Second

// waitPollInterval is how often a waiting auto-cycle checks for a stop
// request. Variable so tests can shorten it.
var waitPollInterval = 10 * time.Second

// RunOptions carries the per-request knobs of a scrape run. Callers
// start from DefaultRunOptions; the zero value would disable
// persistence.
type RunOptions struct {
	// MaxPages caps how many index pages (or scrolls) a basic sweep
	// visits. Zero means no cap.
	MaxPages int

	// SaveToDB persists results as they land. When false the run only
	// returns what it scraped.
	SaveToDB bool

	// CycleDelayMinutes overrides the configured wait between auto
	// cycles. Zero falls back to the config default.
	CycleDelayMinutes int
}

func DefaultRunOptions() RunOptions {
	return RunOptions{SaveToDB: true}
}

// PagerFactory builds the page-fetching session for a site. Production
// wires NewSession; tests substitute fakes.
type PagerFactory func(cfg *config.SiteConfig) Pager

// BasicResult is what a basic-listings run reports back to the caller.
type BasicResult struct {
	Site          string                `json:"target_site"`
	ListingsFound int                   `json:"listings_found"`
	ListingsSaved int                   `json:"listings_saved"`
	PagesScraped  int                   `json:"pages_scraped"`
	Stopped       bool                  `json:"stopped"`
	Listings      []models.BasicListing `json:"listings,omitempty"`
}

// DetailResult is what a detail run reports back to the caller.
// Listings is populated only for runs that did not persist, so the
// caller still gets the data.
type DetailResult struct {
	Site          string            `json:"target_site"`
	TotalURLs     int               `json:"total_urls"`
	ListingsSaved int               `json:"listings_saved"`
	Stopped       bool              `json:"stopped"`
	Listings      []*models.Listing `json:"listings,omitempty"`
}

// Orchestrator owns one runner per configured site and enforces the one
// active run per site rule. Browser sessions are created lazily and
// survive individual runs; they are torn down only at CloseAll.
type Orchestrator struct {
	cfg      *config.Config
	store    storage.Store
	sink     Broadcaster
	newPager PagerFactory

	mu      sync.Mutex
	runners map[string]*runner
}

type runner struct {
	site    *config.SiteConfig
	ex      Extractor
	tracker *Tracker

	running   atomic.Bool
	stop      atomic.Bool
	autoCycle atomic.Bool

	pagerMu sync.Mutex
	pager   Pager
}

func NewOrchestrator(cfg *config.Config, store storage.Store, sink Broadcaster, newPager PagerFactory) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		sink:     sink,
		newPager: newPager,
		runners:  make(map[string]*runner),
	}

	for id, siteCfg := range cfg.Sites {
		ex, err := NewExtractor(siteCfg)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", id, err)
		}
		o.runners[id] = &runner{
			site:    siteCfg,
			ex:      ex,
			tracker: NewTracker(id, sink),
		}
	}

	return o, nil
}

func (o *Orchestrator) runner(site string) (*runner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runners[site]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}
	return r, nil
}

// Sites lists the configured site IDs.
func (o *Orchestrator) Sites() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	sites := make([]string, 0, len(o.runners))
	for id := range o.runners {
		sites = append(sites, id)
	}
	return sites
}

func (r *runner) getPager(factory PagerFactory) Pager {
	r.pagerMu.Lock()
	defer r.pagerMu.Unlock()
	if r.pager == nil {
		r.pager = factory(r.site)
	}
	return r.pager
}

// acquire claims the runner for one run. The stop flag is cleared so a
// stale stop request cannot kill a fresh run.
func (r *runner) acquire() error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	r.stop.Store(false)
	return nil
}

func (r *runner) release() {
	r.running.Store(false)
}

func (o *Orchestrator) engine(r *runner, persist bool) *Engine {
	store := o.store
	if !persist {
		store = nil
	}
	return NewEngine(r.site, r.ex, r.getPager(o.newPager), store, r.tracker, &r.stop, o.cfg.Scraper)
}

// finish writes the terminal status for a run: stopped wins over error,
// error over completed.
func (r *runner) finish(stopped bool, runErr error) {
	r.tracker.Update(func(s *models.ScrapeStatus) {
		switch {
		case stopped || r.stop.Load():
			s.Status = models.StateStopped
		case runErr != nil:
			s.Status = models.StateError
		default:
			s.Status = models.StateCompleted
		}
	})
}

// ScrapeListings runs a basic index sweep. With async set the sweep
// runs in the background and the returned result only echoes the site.
func (o *Orchestrator) ScrapeListings(ctx context.Context, site string, async bool, opts RunOptions) (*BasicResult, error) {
	r, err := o.runner(site)
	if err != nil {
		return nil, err
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}

	if async {
		go func() {
			defer r.release()
			if _, err := o.runBasic(context.Background(), r, opts); err != nil {
				log.Printf("[%s] background listings sweep: %v", site, err)
			}
		}()
		return &BasicResult{Site: site}, nil
	}

	defer r.release()
	return o.runBasic(ctx, r, opts)
}

func (o *Orchestrator) runBasic(ctx context.Context, r *runner, opts RunOptions) (*BasicResult, error) {
	r.tracker.Reset(models.ScrapeTypeListings)
	if opts.MaxPages > 0 {
		mp := opts.MaxPages
		r.tracker.Update(func(s *models.ScrapeStatus) {
			s.TotalPages = &mp
		})
	}

	sweep, err := o.engine(r, opts.SaveToDB).ScrapeBasics(ctx, opts.MaxPages)
	r.finish(sweep != nil && sweep.Stopped, err)
	if err != nil {
		return nil, err
	}

	return &BasicResult{
		Site:          r.site.ID,
		ListingsFound: len(sweep.Listings),
		ListingsSaved: sweep.Saved,
		PagesScraped:  sweep.PagesScraped,
		Stopped:       sweep.Stopped,
		Listings:      sweep.Listings,
	}, nil
}

// ScrapeDetails runs detail extraction over a caller-supplied URL list.
func (o *Orchestrator) ScrapeDetails(ctx context.Context, site string, urls []string, opts RunOptions) (*DetailResult, error) {
	r, err := o.runner(site)
	if err != nil {
		return nil, err
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	r.tracker.Reset(models.ScrapeTypeDetails)
	return o.runDetails(ctx, r, urls, opts)
}

func (o *Orchestrator) runDetails(ctx context.Context, r *runner, urls []string, opts RunOptions) (*DetailResult, error) {
	sweep, err := o.engine(r, opts.SaveToDB).ScrapeDetails(ctx, urls)
	stopped := errors.Is(err, ErrStopped)
	if stopped {
		err = nil
	}
	r.finish(stopped, err)
	if err != nil {
		return nil, err
	}

	result := &DetailResult{
		Site:          r.site.ID,
		TotalURLs:     len(urls),
		ListingsSaved: sweep.Saved,
		Stopped:       stopped,
	}
	if !opts.SaveToDB {
		result.Listings = sweep.Listings
	}
	return result, nil
}

// ScrapeCombined sweeps the index and then details every URL it found,
// in one claimed run.
func (o *Orchestrator) ScrapeCombined(ctx context.Context, site string, opts RunOptions) (*DetailResult, error) {
	r, err := o.runner(site)
	if err != nil {
		return nil, err
	}
	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	basic, err := o.runBasic(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	if basic.Stopped {
		return &DetailResult{Site: site, Stopped: true}, nil
	}

	urls := make([]string, 0, len(basic.Listings))
	for _, b := range basic.Listings {
		urls = append(urls, b.URL)
	}

	r.tracker.Reset(models.ScrapeTypeDetails)
	return o.runDetails(ctx, r, urls, opts)
}

// FillMissingDetails details every stored listing for the site,
// visiting records that never had a detail scrape first, then
// refreshing the rest.
func (o *Orchestrator) FillMissingDetails(ctx context.Context, site string) (*DetailResult, error) {
	r, err := o.runner(site)
	if err != nil {
		return nil, err
	}

	urls, err := o.detailWorklist(ctx, site)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return nil, ErrNoListings
	}

	if err := r.acquire(); err != nil {
		return nil, err
	}
	defer r.release()

	r.tracker.Reset(models.ScrapeTypeDetails)
	return o.runDetails(ctx, r, urls, DefaultRunOptions())
}

// detailWorklist orders a site's stored URLs with missing-detail
// records first.
func (o *Orchestrator) detailWorklist(ctx context.Context, site string) ([]string, error) {
	listings, err := o.store.GetListings(ctx, storage.ListingFilter{Source: site})
	if err != nil {
		return nil, err
	}

	var missing, detailed []string
	for i := range listings {
		if listings[i].HasAgentContact() {
			detailed = append(detailed, listings[i].RawURL)
		} else {
			missing = append(missing, listings[i].RawURL)
		}
	}
	return append(missing, detailed...), nil
}

// StartAutoCycle launches the perpetual basic-then-details loop for a
// site. It returns immediately; the cycle runs until stopped. Auto
// cycles always persist; opts contributes the page cap and the wait
// between cycles.
func (o *Orchestrator) StartAutoCycle(site string, opts RunOptions) error {
	r, err := o.runner(site)
	if err != nil {
		return err
	}
	if err := r.acquire(); err != nil {
		return err
	}
	r.autoCycle.Store(true)

	go func() {
		defer func() {
			r.autoCycle.Store(false)
			r.release()
		}()
		o.autoCycleLoop(r, opts)
	}()

	return nil
}

func (o *Orchestrator) autoCycleLoop(r *runner, opts RunOptions) {
	ctx := context.Background()
	site := r.site.ID

	waitMinutes := opts.CycleDelayMinutes
	if waitMinutes <= 0 {
		waitMinutes = o.cfg.Scraper.CycleDelayMinutes
	}
	if waitMinutes <= 0 {
		waitMinutes = 30
	}

	for cycle := 1; ; cycle++ {
		if r.stop.Load() {
			break
		}

		cycleNum := cycle
		r.tracker.Update(func(s *models.ScrapeStatus) {
			s.Type = models.ScrapeTypeAutoCycle
			s.Status = models.StateScraping
			s.AutoCycleRunning = true
			s.CycleNumber = &cycleNum
			s.Phase = models.PhaseBasicListings
		})
		log.Printf("[%s] auto-cycle %d: basic listings", site, cycle)

		if err := o.runCyclePhases(ctx, r, opts.MaxPages); err != nil {
			log.Printf("[%s] auto-cycle %d failed: %v (cooling down)", site, cycle, err)
			r.tracker.Update(func(s *models.ScrapeStatus) {
				s.Status = models.StateError
			})
			o.waitOrStop(r, errorCooldown)
			continue
		}

		if r.stop.Load() {
			break
		}

		wm := waitMinutes
		r.tracker.Update(func(s *models.ScrapeStatus) {
			s.Status = models.StateCompleted
			s.Phase = models.PhaseWaiting
			s.WaitMinutes = &wm
		})
		log.Printf("[%s] auto-cycle %d complete, waiting %d minutes", site, cycle, waitMinutes)
		o.waitOrStop(r, time.Duration(waitMinutes)*time.Minute)
	}

	r.tracker.Update(func(s *models.ScrapeStatus) {
		s.Status = models.StateStopped
		s.AutoCycleRunning = false
		s.Phase = ""
	})
	log.Printf("[%s] auto-cycle stopped", site)
}

func (o *Orchestrator) runCyclePhases(ctx context.Context, r *runner, maxPages int) error {
	sweep, err := o.engine(r, true).ScrapeBasics(ctx, maxPages)
	if err != nil {
		return err
	}
	if sweep.Stopped {
		return nil
	}

	r.tracker.Update(func(s *models.ScrapeStatus) {
		s.Phase = models.PhaseDetails
	})

	urls, err := o.detailWorklist(ctx, r.site.ID)
	if err != nil {
		return err
	}
	if _, err := o.engine(r, true).ScrapeDetails(ctx, urls); err != nil && !errors.Is(err, ErrStopped) {
		return err
	}
	return nil
}

// waitOrStop sleeps for d in short increments so a stop request is
// honored within one poll interval.
func (o *Orchestrator) waitOrStop(r *runner, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if r.stop.Load() {
			return
		}
		step := waitPollInterval
		if remaining := time.Until(deadline); remaining < step {
			step = remaining
		}
		time.Sleep(step)
	}
}

// Stop requests a cooperative stop for the site's active run, if any.
// The browser session stays warm for the next run.
func (o *Orchestrator) Stop(site string) error {
	r, err := o.runner(site)
	if err != nil {
		return err
	}
	r.stop.Store(true)
	return nil
}

// StopAll requests a stop for every site.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.runners {
		r.stop.Store(true)
	}
}

// Running reports whether the site currently has an active run.
func (o *Orchestrator) Running(site string) bool {
	r, err := o.runner(site)
	if err != nil {
		return false
	}
	return r.running.Load()
}

// Status returns a snapshot of every site's scrape status.
func (o *Orchestrator) Status() map[string]models.ScrapeStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]models.ScrapeStatus, len(o.runners))
	for id, r := range o.runners {
		out[id] = r.tracker.Snapshot()
	}
	return out
}

// SiteStatus returns one site's snapshot.
func (o *Orchestrator) SiteStatus(site string) (models.ScrapeStatus, error) {
	r, err := o.runner(site)
	if err != nil {
		return models.ScrapeStatus{}, err
	}
	return r.tracker.Snapshot(), nil
}

// CloseAll stops every run and tears down all browser sessions. Called
// once at process shutdown.
func (o *Orchestrator) CloseAll() {
	o.StopAll()

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range o.runners {
		r.pagerMu.Lock()
		if r.pager != nil {
			r.pager.Close()
			r.pager = nil
		}
		r.pagerMu.Unlock()
	}
}
