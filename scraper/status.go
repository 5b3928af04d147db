package scraper

import (
	"sync"

	"github.com/luxapientia/wanyumba-scrapper/models"
)

// Broadcaster receives a snapshot after every status mutation. Delivery
// is best effort; a nil Broadcaster is valid and drops everything.
type Broadcaster interface {
	Broadcast(ev models.StatusEvent)
}

// Tracker holds the live progress of one site's scraper and pushes an
// immutable snapshot to the sink on every change. Consumers only ever
// see copies, so in-flight mutation can never leak.
type Tracker struct {
	mu   sync.Mutex
	site string
	cur  models.ScrapeStatus
	sink Broadcaster
}

func NewTracker(site string, sink Broadcaster) *Tracker {
	return &Tracker{
		site: site,
		cur: models.ScrapeStatus{
			TargetSite: site,
			Status:     models.StateIdle,
		},
		sink: sink,
	}
}

// Update applies fn to the current status under the lock, then emits a
// snapshot.
func (t *Tracker) Update(fn func(s *models.ScrapeStatus)) {
	t.mu.Lock()
	fn(&t.cur)
	t.cur.TargetSite = t.site
	snapshot := t.cur
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.Broadcast(models.StatusEvent{
			Type:       "scraping_status",
			TargetSite: t.site,
			Data:       snapshot,
		})
	}
}

// Reset replaces the status with a fresh one for a new run.
func (t *Tracker) Reset(scrapeType string) {
	t.Update(func(s *models.ScrapeStatus) {
		keepAuto := s.AutoCycleRunning
		keepCycle := s.CycleNumber
		keepPhase := s.Phase
		*s = models.ScrapeStatus{
			Type:             scrapeType,
			TargetSite:       t.site,
			Status:           models.StateScraping,
			AutoCycleRunning: keepAuto,
			CycleNumber:      keepCycle,
			Phase:            keepPhase,
		}
	})
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() models.ScrapeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
