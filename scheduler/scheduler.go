package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/scraper"
	"github.com/robfig/cron/v3"
)

// Triggerable allows workers to be kicked off alongside scheduled runs.
type Triggerable interface {
	Trigger()
}

// Scheduler fires basic index sweeps for all configured sites on a cron
// expression or fixed interval. Sites already mid-run are skipped, not
// queued.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}

	healthcheckWorker Triggerable
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// SetWorkers registers background workers to trigger with each run.
func (s *Scheduler) SetWorkers(healthcheck Triggerable) {
	s.healthcheckWorker = healthcheck
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runAll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, scraping runs via API only")
	}

	return nil
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, site := range s.orchestrator.Sites() {
		if _, err := s.orchestrator.ScrapeListings(ctx, site, true, scraper.DefaultRunOptions()); err != nil {
			if errors.Is(err, scraper.ErrAlreadyRunning) {
				log.Printf("Scheduled run: %s already running, skipping", site)
				continue
			}
			log.Printf("Scheduled run: %s: %v", site, err)
		}
	}

	if s.healthcheckWorker != nil {
		s.healthcheckWorker.Trigger()
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}
