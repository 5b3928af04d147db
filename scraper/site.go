package scraper

import (
	"context"
	"fmt"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// Pagination modes.
const (
	PaginationPaged  = "paged"
	PaginationScroll = "scroll"
)

// Extractor is the per-site contract. Implementations own selectors and
// URL layout; the shared engine owns sweep mechanics, dedup, stop
// handling and persistence.
type Extractor interface {
	// Site returns the site identifier, e.g. "jiji".
	Site() string

	// Pagination reports how the index is traversed.
	Pagination() string

	// IndexURL builds the index URL for a 1-based page number. Scroll
	// sites only ever get page 1.
	IndexURL(page int) string

	// ParseIndex extracts the listing cards from an index page. URLs
	// must come back absolute with query and fragment stripped.
	ParseIndex(doc *goquery.Document) []models.BasicListing

	// IsEndOfResults reports whether doc is a hard end marker (a 404
	// shell, an explicit empty-results page). A page that merely parses
	// to zero cards is handled by the engine's miss counting.
	IsEndOfResults(doc *goquery.Document) bool

	// ParseDetail extracts the full canonical record from a detail page.
	ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error)
}

// DetailPreparer is implemented by extractors whose detail pages need
// interaction before the contact data is in the DOM (e.g. a reveal
// button). The engine calls it between navigation and parsing.
type DetailPreparer interface {
	PrepareDetail(ctx context.Context, p Pager) error
}

var extractorFactories = map[string]func(cfg *config.SiteConfig) Extractor{
	"jiji":        func(cfg *config.SiteConfig) Extractor { return NewJiji(cfg) },
	"kupatana":    func(cfg *config.SiteConfig) Extractor { return NewKupatana(cfg) },
	"makazimapya": func(cfg *config.SiteConfig) Extractor { return NewMakaziMapya(cfg) },
	"ruaha":       func(cfg *config.SiteConfig) Extractor { return NewRuaha(cfg) },
	"sevenestate": func(cfg *config.SiteConfig) Extractor { return NewSevenEstate(cfg) },
	"iph":         func(cfg *config.SiteConfig) Extractor { return NewIPH(cfg) },
	"beforward":   func(cfg *config.SiteConfig) Extractor { return NewBeForward(cfg) },
}

// NewExtractor builds the extractor for a configured site.
func NewExtractor(cfg *config.SiteConfig) (Extractor, error) {
	factory, ok := extractorFactories[cfg.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, cfg.ID)
	}
	return factory(cfg), nil
}

// KnownSites lists the site IDs an extractor exists for, sorted.
func KnownSites() []string {
	sites := make([]string, 0, len(extractorFactories))
	for id := range extractorFactories {
		sites = append(sites, id)
	}
	sort.Strings(sites)
	return sites
}
